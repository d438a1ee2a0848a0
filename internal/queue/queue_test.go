package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/schedule"
	"github.com/GovTribe/notify/pkg/logx"
)

type fakeJobStore struct {
	jobs []Job
	done map[string]bool
	err  error
}

func (f *fakeJobStore) EnqueueJob(ctx context.Context, j Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, j)
	return nil
}

func (f *fakeJobStore) DueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Job
	for _, j := range f.jobs {
		if !f.done[j.ID] && !j.DueAt.After(now) {
			out = append(out, j)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeJobStore) MarkJobDone(ctx context.Context, id string) error {
	if f.done == nil {
		f.done = map[string]bool{}
	}
	f.done[id] = true
	return nil
}

type fakeGetter struct {
	recipients map[string]*model.Recipient
}

func (f *fakeGetter) GetRecipient(ctx context.Context, id string) (*model.Recipient, error) {
	r, ok := f.recipients[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

type fakeDispatcher struct {
	delivered []string
	err       error
}

func (f *fakeDispatcher) DeliverPush(ctx context.Context, r *model.Recipient, message string, extra map[string]string) error {
	f.delivered = append(f.delivered, r.ID)
	return f.err
}

func newTestService(at time.Time, jobs *fakeJobStore, recips *fakeGetter, d *fakeDispatcher) *Service {
	s := New(Config{}, jobs, recips, d, logx.Nop())
	s.now = func() time.Time { return at }
	return s
}

func TestScheduleEnqueuesWithDueTime(t *testing.T) {
	now := time.Date(2026, time.March, 9, 22, 30, 0, 0, time.UTC)
	jobs := &fakeJobStore{}
	s := newTestService(now, jobs, &fakeGetter{}, &fakeDispatcher{})

	err := s.Schedule(context.Background(), 9*time.Hour+30*time.Minute, schedule.PushJob{
		RecipientID: "u1",
		Message:     "hello",
		Extra:       map[string]string{"tag": "bam"},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs.jobs))
	}
	j := jobs.jobs[0]
	if j.ID == "" {
		t.Fatalf("job id must be assigned")
	}
	if !j.DueAt.Equal(now.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("dueAt = %v", j.DueAt)
	}
	if j.RecipientID != "u1" || j.Message != "hello" || j.Extra["tag"] != "bam" {
		t.Fatalf("job = %+v", j)
	}
}

func TestScheduleClampsNegativeDelay(t *testing.T) {
	now := time.Date(2026, time.March, 9, 22, 30, 0, 0, time.UTC)
	jobs := &fakeJobStore{}
	s := newTestService(now, jobs, &fakeGetter{}, &fakeDispatcher{})

	if err := s.Schedule(context.Background(), -time.Hour, schedule.PushJob{RecipientID: "u1"}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !jobs.jobs[0].DueAt.Equal(now) {
		t.Fatalf("dueAt = %v, want now", jobs.jobs[0].DueAt)
	}
}

func TestRunDueDispatchesAndMarks(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{jobs: []Job{
		{ID: "j1", RecipientID: "u1", Message: "hello", DueAt: now.Add(-time.Minute)},
		{ID: "j2", RecipientID: "u1", Message: "later", DueAt: now.Add(time.Hour)},
	}}
	recips := &fakeGetter{recipients: map[string]*model.Recipient{
		"u1": {ID: "u1", DeviceTokens: []string{"tok"}},
	}}
	d := &fakeDispatcher{}
	s := newTestService(now, jobs, recips, d)

	if ran := s.RunDue(context.Background()); ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
	if len(d.delivered) != 1 || d.delivered[0] != "u1" {
		t.Fatalf("delivered = %v", d.delivered)
	}
	if !jobs.done["j1"] {
		t.Fatalf("due job must be marked done")
	}
	if jobs.done["j2"] {
		t.Fatalf("future job must stay queued")
	}
}

func TestRunDueMarksDoneOnDispatchFailure(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{jobs: []Job{
		{ID: "j1", RecipientID: "u1", DueAt: now.Add(-time.Minute)},
	}}
	recips := &fakeGetter{recipients: map[string]*model.Recipient{"u1": {ID: "u1"}}}
	d := &fakeDispatcher{err: errors.New("gateway down")}
	s := newTestService(now, jobs, recips, d)

	s.RunDue(context.Background())
	if !jobs.done["j1"] {
		t.Fatalf("failed dispatch must still mark the job done")
	}
}

func TestRunDueDropsJobForMissingRecipient(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{jobs: []Job{
		{ID: "j1", RecipientID: "gone", DueAt: now.Add(-time.Minute)},
	}}
	d := &fakeDispatcher{}
	s := newTestService(now, jobs, &fakeGetter{}, d)

	s.RunDue(context.Background())
	if len(d.delivered) != 0 {
		t.Fatalf("no dispatch expected for a missing recipient")
	}
	if !jobs.done["j1"] {
		t.Fatalf("orphaned job must be marked done")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestService(time.Now(), &fakeJobStore{}, &fakeGetter{}, &fakeDispatcher{})
	ctx := context.Background()

	s.Start(ctx)
	s.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx)
}
