package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/schedule"
	"github.com/GovTribe/notify/pkg/logx"
)

type fakeActivityStore struct {
	acts   []model.Activity
	marked map[string]bool
	err    error
}

func (f *fakeActivityStore) FindUnprocessed(ctx context.Context, entityType string, since time.Time) ([]model.Activity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Activity
	for _, a := range f.acts {
		if !f.marked[a.ID] && a.EntityType == entityType && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivityStore) MarkProcessed(ctx context.Context, id string) error {
	if f.marked == nil {
		f.marked = map[string]bool{}
	}
	f.marked[id] = true
	return nil
}

type fakeEntityStore struct {
	snaps map[string]*model.Snapshot
	err   error
}

func (f *fakeEntityStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps[id], nil
}

type fakeRecipientStore struct {
	tracking map[string][]*model.Recipient
	err      error
}

func (f *fakeRecipientStore) FindTracking(ctx context.Context, entityID string) ([]*model.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tracking[entityID], nil
}

type scheduled struct {
	recipient string
	channel   model.Channel
	text      string
}

type fakeScheduler struct {
	calls   []scheduled
	outcome schedule.Outcome
	err     error
}

func (f *fakeScheduler) Schedule(ctx context.Context, r *model.Recipient, ch model.Channel, msg schedule.Message) (schedule.Outcome, error) {
	f.calls = append(f.calls, scheduled{recipient: r.ID, channel: ch, text: msg.Text})
	return f.outcome, f.err
}

func webTracker(id, name, entityID string) *model.Recipient {
	return &model.Recipient{
		ID:        id,
		Name:      name,
		Email:     id + "@example.test",
		Platforms: []string{model.PlatformWeb},
		Tracked:   map[string]*model.NotificationSetting{entityID: nil},
	}
}

func addedActivity(id, entityID string, at time.Time) model.Activity {
	return model.Activity{
		ID:         id,
		EntityType: model.EntityTypeProject,
		Targets:    []model.Target{{Type: model.EntityTypeProject, ID: entityID}},
		Actions:    model.Actions{Added: true},
		CreatedAt:  at,
	}
}

func newTestOrchestrator(acts *fakeActivityStore, ents *fakeEntityStore, recs *fakeRecipientStore, sch *fakeScheduler) *Orchestrator {
	o := New(Config{}, acts, ents, recs, sch, logx.Nop())
	o.now = func() time.Time { return time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestRunDeliversAndMarks(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	sch := &fakeScheduler{outcome: schedule.OutcomeSentNow}

	o := newTestOrchestrator(acts, ents, recs, sch)
	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(sch.calls) != 1 {
		t.Fatalf("scheduler calls = %d, want 1", len(sch.calls))
	}
	if sch.calls[0].channel != model.ChannelEmail || sch.calls[0].recipient != "u1" {
		t.Fatalf("call = %+v", sch.calls[0])
	}
	if want := `Alice Smith opened for bid "Widget Study"`; sch.calls[0].text != want {
		t.Fatalf("text = %q, want %q", sch.calls[0].text, want)
	}
	if !acts.marked["a1"] {
		t.Fatalf("activity must be marked processed")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	sch := &fakeScheduler{outcome: schedule.OutcomeSentNow}
	o := newTestOrchestrator(acts, ents, recs, sch)

	if sent, _ := o.Run(context.Background()); sent != 1 {
		t.Fatalf("first run sent = %d, want 1", sent)
	}
	if sent, _ := o.Run(context.Background()); sent != 0 {
		t.Fatalf("second run sent = %d, want 0", sent)
	}
	if len(sch.calls) != 1 {
		t.Fatalf("scheduler calls = %d, want 1", len(sch.calls))
	}
}

func TestRunMarksZeroRecipientActivities(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	o := newTestOrchestrator(acts, &fakeEntityStore{}, &fakeRecipientStore{}, &fakeScheduler{})

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if !acts.marked["a1"] {
		t.Fatalf("zero-recipient activity must still be marked")
	}
}

func TestRunMarksMalformedActivities(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	malformed := model.Activity{
		ID:         "a1",
		EntityType: model.EntityTypeProject,
		Targets:    []model.Target{{Type: "person", ID: "x"}},
		Actions:    model.Actions{Added: true},
		CreatedAt:  now.Add(-time.Hour),
	}
	acts := &fakeActivityStore{acts: []model.Activity{malformed}}
	sch := &fakeScheduler{}
	o := newTestOrchestrator(acts, &fakeEntityStore{}, &fakeRecipientStore{}, sch)

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 0 || len(sch.calls) != 0 {
		t.Fatalf("malformed activity must be skipped")
	}
	if !acts.marked["a1"] {
		t.Fatalf("malformed activity must still be marked")
	}
}

func TestRunMarksWhenSnapshotMissing(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	o := newTestOrchestrator(acts, &fakeEntityStore{}, recs, &fakeScheduler{})

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if !acts.marked["a1"] {
		t.Fatalf("activity with missing snapshot must still be marked")
	}
}

func TestRunMarksDespiteTransportError(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	sch := &fakeScheduler{outcome: schedule.OutcomeSentNow, err: errors.New("smtp down")}
	o := newTestOrchestrator(acts, ents, recs, sch)

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run error must not surface per-dispatch failures: %v", err)
	}
	// The dispatch was attempted; it counts and the activity is marked.
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if !acts.marked["a1"] {
		t.Fatalf("activity must be marked despite the transport error")
	}
}

func TestRunSkipsMutedRecipients(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	muted := webTracker("u1", "Alice Smith", "p1")
	muted.Tracked["p1"] = &model.NotificationSetting{Enabled: false}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{"p1": {muted}}}
	sch := &fakeScheduler{outcome: schedule.OutcomeSentNow}
	o := newTestOrchestrator(acts, ents, recs, sch)

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 0 || len(sch.calls) != 0 {
		t.Fatalf("muted recipient must be skipped")
	}
	if !acts.marked["a1"] {
		t.Fatalf("activity must still be marked")
	}
}

func TestRunSuppressedDoesNotCount(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	sch := &fakeScheduler{outcome: schedule.OutcomeSuppressed}
	o := newTestOrchestrator(acts, ents, recs, sch)

	sent, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0 for suppressed outcomes", sent)
	}
}

func TestRunStats(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{addedActivity("a1", "p1", now.Add(-time.Hour))}}
	ents := &fakeEntityStore{snaps: map[string]*model.Snapshot{
		"p1": {ID: "p1", Name: "Widget Study", WorkflowStatus: model.StatusOpen},
	}}
	recs := &fakeRecipientStore{tracking: map[string][]*model.Recipient{
		"p1": {webTracker("u1", "Alice Smith", "p1")},
	}}
	o := newTestOrchestrator(acts, ents, recs, &fakeScheduler{outcome: schedule.OutcomeSentNow})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := o.Stats()
	if st.Runs != 2 {
		t.Fatalf("runs = %d, want 2", st.Runs)
	}
	if st.TotalSent != 1 || st.LastSent != 0 {
		t.Fatalf("total = %d last = %d, want 1/0", st.TotalSent, st.LastSent)
	}
	if !st.LastRunAt.Equal(now) {
		t.Fatalf("lastRunAt = %v, want %v", st.LastRunAt, now)
	}
}

func TestRunWindowExcludesOldActivities(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	acts := &fakeActivityStore{acts: []model.Activity{
		addedActivity("old", "p1", now.Add(-3*time.Hour)),
		addedActivity("new", "p1", now.Add(-time.Hour)),
	}}
	o := newTestOrchestrator(acts, &fakeEntityStore{}, &fakeRecipientStore{}, &fakeScheduler{})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if acts.marked["old"] {
		t.Fatalf("activity outside the window must not be touched")
	}
	if !acts.marked["new"] {
		t.Fatalf("activity inside the window must be marked")
	}
}
