package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/prefs"
	"github.com/GovTribe/notify/internal/queue"
	"github.com/GovTribe/notify/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- activities ----

func (s *sqliteStore) PutActivity(ctx context.Context, a model.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities(id, entity_type, payload, created_at, processed)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		a.ID, a.EntityType, string(payload), a.CreatedAt.UnixMilli(), boolInt(a.Processed),
	)
	return err
}

func (s *sqliteStore) FindUnprocessed(ctx context.Context, entityType string, since time.Time) ([]model.Activity, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT payload FROM activities
		 WHERE entity_type = ? AND processed = 0 AND created_at >= ?
		 ORDER BY created_at ASC`,
		entityType, since.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a model.Activity
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode activity: %w", err)
		}
		a.Processed = false
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE activities SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- snapshots ----

func (s *sqliteStore) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(id, payload) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		snap.ID, string(payload),
	)
	return err
}

func (s *sqliteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var payload string
	err := s.db.QueryRowxContext(ctx, `SELECT payload FROM snapshots WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// ---- recipients ----

// SaveRecipient persists one recipient record. Platform-derived defaults are
// materialized for any tracked item lacking an explicit setting before the
// write, and the tracking join rows are kept in sync in the same transaction.
func (s *sqliteStore) SaveRecipient(ctx context.Context, r *model.Recipient) error {
	if r == nil {
		return errors.New("nil recipient")
	}
	prefs.SyncDefaults(r)

	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recipients(id, payload) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		r.ID, string(payload),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracking WHERE recipient_id = ?`, r.ID); err != nil {
		return err
	}
	for itemID := range r.Tracked {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracking(recipient_id, item_id) VALUES(?,?)`, r.ID, itemID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetRecipient(ctx context.Context, id string) (*model.Recipient, error) {
	var payload string
	err := s.db.QueryRowxContext(ctx, `SELECT payload FROM recipients WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecipient(payload)
}

func (s *sqliteStore) FindTracking(ctx context.Context, entityID string) ([]*model.Recipient, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT r.payload FROM recipients r
		 JOIN tracking t ON t.recipient_id = r.id
		 WHERE t.item_id = ?
		 ORDER BY r.id`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Recipient
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		r, err := decodeRecipient(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeRecipient(payload string) (*model.Recipient, error) {
	var r model.Recipient
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode recipient: %w", err)
	}
	return &r, nil
}

// ---- push jobs ----

func (s *sqliteStore) EnqueueJob(ctx context.Context, j queue.Job) error {
	extra, err := json.Marshal(j.Extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO push_jobs(id, recipient_id, message, extra, due_at, done)
		 VALUES(?,?,?,?,?,0)`,
		j.ID, j.RecipientID, j.Message, string(extra), j.DueAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DueJobs(ctx context.Context, now time.Time, limit int) ([]queue.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, recipient_id, message, extra, due_at FROM push_jobs
		 WHERE done = 0 AND due_at <= ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Job
	for rows.Next() {
		var (
			j     queue.Job
			extra sql.NullString
			dueMS int64
		)
		if err := rows.Scan(&j.ID, &j.RecipientID, &j.Message, &extra, &dueMS); err != nil {
			return nil, err
		}
		if extra.Valid && extra.String != "" && extra.String != "null" {
			if err := json.Unmarshal([]byte(extra.String), &j.Extra); err != nil {
				return nil, fmt.Errorf("decode job extra: %w", err)
			}
		}
		j.DueAt = time.UnixMilli(dueMS)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkJobDone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_jobs SET done = 1 WHERE id = ?`, id)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
