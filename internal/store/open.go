package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/queue"
	"github.com/GovTribe/notify/pkg/logx"
)

var ErrNotFound = errors.New("store: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (the default when a path is set)
//
// If Driver is empty or "none", Open fails; the engine cannot run without a
// store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API the engine depends on. The orchestrator,
// scheduler and queue each consume a narrow slice of it through their own
// interfaces.
type Store interface {
	FindUnprocessed(ctx context.Context, entityType string, since time.Time) ([]model.Activity, error)
	MarkProcessed(ctx context.Context, id string) error
	PutActivity(ctx context.Context, a model.Activity) error

	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	PutSnapshot(ctx context.Context, s *model.Snapshot) error

	FindTracking(ctx context.Context, entityID string) ([]*model.Recipient, error)
	GetRecipient(ctx context.Context, id string) (*model.Recipient, error)
	SaveRecipient(ctx context.Context, r *model.Recipient) error

	EnqueueJob(ctx context.Context, j queue.Job) error
	DueJobs(ctx context.Context, now time.Time, limit int) ([]queue.Job, error)
	MarkJobDone(ctx context.Context, id string) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
