package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/GovTribe/notify/internal/compose"
	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/prefs"
	"github.com/GovTribe/notify/internal/schedule"
	"github.com/GovTribe/notify/pkg/logx"
)

// ActivityStore is the polling surface over recorded activities.
type ActivityStore interface {
	// FindUnprocessed returns unprocessed activities of the entity type
	// created at or after since, ordered by creation time ascending.
	FindUnprocessed(ctx context.Context, entityType string, since time.Time) ([]model.Activity, error)
	MarkProcessed(ctx context.Context, id string) error
}

// EntityStore resolves the current snapshot of a target entity.
type EntityStore interface {
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
}

// RecipientStore resolves the recipients tracking an entity.
type RecipientStore interface {
	FindTracking(ctx context.Context, entityID string) ([]*model.Recipient, error)
}

// ChannelScheduler routes one composed message to one recipient channel.
type ChannelScheduler interface {
	Schedule(ctx context.Context, r *model.Recipient, ch model.Channel, msg schedule.Message) (schedule.Outcome, error)
}

// Config controls a delivery run.
type Config struct {
	// Window is how far back the poll reaches. Zero means 120 minutes.
	Window time.Duration
	// EntityType restricts polling; empty means "project".
	EntityType string
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 120 * time.Minute
	}
	if c.EntityType == "" {
		c.EntityType = model.EntityTypeProject
	}
	return c
}

// Stats is a snapshot of orchestrator counters for the ops surface.
type Stats struct {
	Runs      int       `json:"runs"`
	LastRunAt time.Time `json:"last_run_at"`
	LastSent  int       `json:"last_sent"`
	TotalSent int       `json:"total_sent"`
}

// Orchestrator drives delivery runs. A single run is sequential: one pass
// over a time-ordered cursor of activities, one pass over recipients per
// activity.
type Orchestrator struct {
	cfg        Config
	activities ActivityStore
	entities   EntityStore
	recipients RecipientStore
	scheduler  ChannelScheduler
	log        logx.Logger

	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, activities ActivityStore, entities EntityStore, recipients RecipientStore, scheduler ChannelScheduler, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		activities: activities,
		entities:   entities,
		recipients: recipients,
		scheduler:  scheduler,
		log:        log,
		now:        time.Now,
	}
}

// Run executes one delivery pass and returns the number of dispatched
// notifications. A canceled context aborts between activities; activities not
// yet marked stay unprocessed for the next invocation.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	start := o.now()
	since := start.Add(-o.cfg.Window)

	acts, err := o.activities.FindUnprocessed(ctx, o.cfg.EntityType, since)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, act := range acts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		sent += o.processActivity(ctx, act)

		// Marking is unconditional once the recipient loop finished, even
		// for zero-recipient or all-skipped activities. This bounds re-scan
		// growth and is the sole delivery dedup.
		if err := o.activities.MarkProcessed(ctx, act.ID); err != nil {
			o.log.Error("mark processed failed", logx.String("activity", act.ID), logx.Err(err))
		}
	}

	o.mu.Lock()
	o.stats.Runs++
	o.stats.LastRunAt = start
	o.stats.LastSent = sent
	o.stats.TotalSent += sent
	o.mu.Unlock()

	o.log.Info("delivery run finished",
		logx.Int("activities", len(acts)),
		logx.Int("sent", sent),
		logx.Duration("took", o.now().Sub(start)))
	return sent, nil
}

// processActivity dispatches one activity to every notifiable tracker and
// returns the dispatch count. Malformed activities (no target of the expected
// type, unresolvable snapshot) are skipped silently; the caller still marks
// them processed.
func (o *Orchestrator) processActivity(ctx context.Context, act model.Activity) int {
	targetID, ok := act.PrimaryTarget(o.cfg.EntityType)
	if !ok {
		return 0
	}

	trackers, err := o.recipients.FindTracking(ctx, targetID)
	if err != nil {
		o.log.Warn("tracker lookup failed", logx.String("activity", act.ID), logx.Err(err))
		return 0
	}
	if len(trackers) == 0 {
		return 0
	}

	snap, err := o.entities.GetSnapshot(ctx, targetID)
	if err != nil || snap == nil {
		o.log.Warn("snapshot lookup failed", logx.String("activity", act.ID), logx.String("entity", targetID), logx.Err(err))
		return 0
	}

	sent := 0
	for _, r := range trackers {
		res, ok := compose.Compose(act, compose.PerspectiveTracker, snap, r.Name)
		if !ok {
			continue
		}

		msg := schedule.Message{Text: res.Message, Tag: res.Tag, Snapshot: snap}
		for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelPush} {
			if !prefs.WillBeNotified(r, targetID, ch) {
				continue
			}
			outcome, err := o.scheduler.Schedule(ctx, r, ch, msg)
			if err != nil {
				// Failed dispatches are attempted dispatches: log and move
				// on, the activity is still marked processed.
				o.log.Warn("dispatch failed",
					logx.String("activity", act.ID),
					logx.String("recipient", r.ID),
					logx.String("channel", string(ch)),
					logx.Err(err))
			}
			if outcome != schedule.OutcomeSuppressed {
				sent++
				o.log.Info("notification dispatched",
					logx.String("recipient", r.ID),
					logx.String("channel", string(ch)),
					logx.String("outcome", outcome.String()),
					logx.String("message", res.Message))
			}
		}
	}
	return sent
}

// Stats returns a copy of the run counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
