package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/schedule"
	"github.com/GovTribe/notify/pkg/logx"
)

// Job is one deferred push, due at DueAt.
type Job struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipient_id"`
	Message     string            `json:"message"`
	Extra       map[string]string `json:"extra,omitempty"`
	DueAt       time.Time         `json:"due_at"`
}

// JobStore persists jobs across restarts.
type JobStore interface {
	EnqueueJob(ctx context.Context, j Job) error
	DueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkJobDone(ctx context.Context, id string) error
}

// RecipientGetter reloads the recipient at dispatch time, so rate-limit
// bookkeeping reflects the latest state rather than the state at enqueue.
type RecipientGetter interface {
	GetRecipient(ctx context.Context, id string) (*model.Recipient, error)
}

// Dispatcher performs the actual push including lastPushAt/pendingPush
// bookkeeping.
type Dispatcher interface {
	DeliverPush(ctx context.Context, r *model.Recipient, message string, extra map[string]string) error
}

// Config controls the queue worker.
type Config struct {
	// PollInterval is how often due jobs are checked. Zero means 30s.
	PollInterval time.Duration
	// Batch bounds how many due jobs one poll claims. Zero means 50.
	Batch int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 50
	}
	return c
}

// Service schedules deferred pushes and runs the worker that executes them.
type Service struct {
	cfg        Config
	jobs       JobStore
	recipients RecipientGetter
	dispatch   Dispatcher
	log        logx.Logger

	now func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, jobs JobStore, recipients RecipientGetter, dispatch Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		jobs:       jobs,
		recipients: recipients,
		dispatch:   dispatch,
		log:        log,
		now:        time.Now,
	}
}

// SetDispatcher installs the push dispatcher. The queue and the channel
// scheduler reference each other, so the dispatcher is wired after
// construction and must be set before Start or RunDue.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatch = d }

// Schedule persists a push job due after delay. Implements the channel
// scheduler's deferred queue.
func (s *Service) Schedule(ctx context.Context, delay time.Duration, job schedule.PushJob) error {
	if delay < 0 {
		delay = 0
	}
	j := Job{
		ID:          uuid.NewString(),
		RecipientID: job.RecipientID,
		Message:     job.Message,
		Extra:       job.Extra,
		DueAt:       s.now().Add(delay),
	}
	if err := s.jobs.EnqueueJob(ctx, j); err != nil {
		return err
	}
	s.log.Debug("push job enqueued", logx.String("job", j.ID), logx.String("recipient", j.RecipientID), logx.Time("due_at", j.DueAt))
	return nil
}

// Start launches the worker loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx, stopCh)
	}()
}

// Stop signals the worker and waits for it to exit.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}) {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		// Fast-exit check so a closed stopCh wins over a due tick.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue executes every job whose due time has passed and returns the count
// dispatched. Exposed so one-shot runs can drain the queue without the
// worker.
func (s *Service) RunDue(ctx context.Context) int {
	now := s.now()
	jobs, err := s.jobs.DueJobs(ctx, now, s.cfg.Batch)
	if err != nil {
		s.log.Warn("due job poll failed", logx.Err(err))
		return 0
	}

	ran := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			return ran
		}
		s.execJob(ctx, j)
		ran++
	}
	return ran
}

func (s *Service) execJob(ctx context.Context, j Job) {
	// A job is marked done whether or not the dispatch succeeds; the
	// orchestrator's policy is no in-band retry anywhere in the pipeline.
	defer func() {
		if err := s.jobs.MarkJobDone(ctx, j.ID); err != nil {
			s.log.Error("mark job done failed", logx.String("job", j.ID), logx.Err(err))
		}
	}()

	r, err := s.recipients.GetRecipient(ctx, j.RecipientID)
	if err != nil || r == nil {
		s.log.Warn("deferred push dropped: recipient gone", logx.String("job", j.ID), logx.String("recipient", j.RecipientID), logx.Err(err))
		return
	}

	if err := s.dispatch.DeliverPush(ctx, r, j.Message, j.Extra); err != nil {
		s.log.Warn("deferred push failed", logx.String("job", j.ID), logx.String("recipient", j.RecipientID), logx.Err(err))
		return
	}
	s.log.Info("deferred push sent", logx.String("job", j.ID), logx.String("recipient", j.RecipientID))
}
