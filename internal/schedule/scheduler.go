package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GovTribe/notify/internal/compose"
	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/pkg/logx"
)

// Outcome is the scheduling decision for one (recipient, channel) dispatch.
type Outcome int

const (
	OutcomeSuppressed Outcome = iota
	OutcomeSentNow
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSentNow:
		return "sent"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "suppressed"
	}
}

// pushRateWindow is the minimum spacing between two pushes to one recipient.
const pushRateWindow = time.Hour

const subjectLimit = 60

// MailTransport sends one plain-text email. Rendering beyond subject/body is
// the transport's concern; tctx carries the template context.
type MailTransport interface {
	Send(ctx context.Context, to, subject, body string, tctx map[string]string) error
}

// PushTransport delivers one push message to a set of device tokens.
type PushTransport interface {
	Send(ctx context.Context, tokens []string, message string, extra map[string]string) error
}

// PushJob describes a deferred push for the delayed-job queue.
type PushJob struct {
	RecipientID string
	Message     string
	Extra       map[string]string
}

// DeferredQueue accepts a push job to be executed after the given delay.
type DeferredQueue interface {
	Schedule(ctx context.Context, delay time.Duration, job PushJob) error
}

// RecipientSaver persists a single recipient record. Push bookkeeping
// (lastPushAt, pendingPush) is only ever written through this single-record
// path.
type RecipientSaver interface {
	SaveRecipient(ctx context.Context, r *model.Recipient) error
}

// Message is one composed notification handed to the scheduler.
type Message struct {
	Text     string
	Tag      string
	Snapshot *model.Snapshot

	// SendNow forces an immediate push regardless of the recipient's
	// preferred window. Rate limiting still applies.
	SendNow bool
}

// Scheduler enforces channel delivery policy.
type Scheduler struct {
	mail    MailTransport
	push    PushTransport
	queue   DeferredQueue
	recips  RecipientSaver
	baseURL string
	log     logx.Logger

	now func() time.Time
}

func New(mail MailTransport, push PushTransport, queue DeferredQueue, recips RecipientSaver, baseURL string, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		mail:    mail,
		push:    push,
		queue:   queue,
		recips:  recips,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// Schedule routes one message to one recipient on one channel and reports
// the outcome. Transport errors are returned alongside OutcomeSentNow: the
// dispatch was attempted and is not retried here.
func (s *Scheduler) Schedule(ctx context.Context, r *model.Recipient, ch model.Channel, msg Message) (Outcome, error) {
	switch ch {
	case model.ChannelEmail:
		return s.scheduleEmail(ctx, r, msg)
	case model.ChannelPush:
		return s.schedulePush(ctx, r, msg)
	default:
		return OutcomeSuppressed, fmt.Errorf("schedule: unknown channel %q", ch)
	}
}

func (s *Scheduler) scheduleEmail(ctx context.Context, r *model.Recipient, msg Message) (Outcome, error) {
	if msg.Text == "" {
		return OutcomeSuppressed, nil
	}

	var name, slug string
	if msg.Snapshot != nil {
		name = msg.Snapshot.Name
		slug = msg.Snapshot.Slug
	}
	subject := "Update: " + compose.Limit(name, subjectLimit)
	tctx := map[string]string{
		"userName":      firstName(r.Name),
		"projectName":   name,
		"updateDetails": msg.Text,
		"url":           s.baseURL + "/project/" + slug + "/activity",
		"mute":          s.baseURL + "/project/" + slug + "/mute",
	}
	if msg.Snapshot != nil && msg.Snapshot.Version > 0 {
		tctx["version"] = compose.Ordinal(msg.Snapshot.Version)
	}

	err := s.mail.Send(ctx, r.Email, subject, msg.Text, tctx)
	if err == nil {
		s.log.Info("email sent", logx.String("recipient", r.ID), logx.String("subject", subject))
	}
	return OutcomeSentNow, err
}

func (s *Scheduler) schedulePush(ctx context.Context, r *model.Recipient, msg Message) (Outcome, error) {
	if msg.Text == "" {
		return OutcomeSuppressed, nil
	}
	now := s.now()
	if !CanReceivePush(r, now) {
		return OutcomeSuppressed, nil
	}

	extra := map[string]string{}
	if msg.Tag != "" {
		extra["tag"] = msg.Tag
	}
	if msg.Snapshot != nil {
		extra["entity"] = msg.Snapshot.ID
	}

	if msg.SendNow || inSendWindow(now, r.DayStart) {
		err := s.DeliverPush(ctx, r, msg.Text, extra)
		if err == nil {
			s.log.Info("push sent", logx.String("recipient", r.ID))
		}
		return OutcomeSentNow, err
	}

	delay := untilNextWindow(now, r.DayStart)
	if err := s.queue.Schedule(ctx, delay, PushJob{RecipientID: r.ID, Message: msg.Text, Extra: extra}); err != nil {
		return OutcomeSuppressed, err
	}
	r.PendingPush = true
	if err := s.recips.SaveRecipient(ctx, r); err != nil {
		return OutcomeDeferred, err
	}
	s.log.Info("push queued", logx.String("recipient", r.ID), logx.Duration("delay", delay))
	return OutcomeDeferred, nil
}

// DeliverPush performs the actual gateway dispatch, then stamps lastPushAt
// and clears pendingPush. It serves both immediate sends and deferred-job
// triggers.
func (s *Scheduler) DeliverPush(ctx context.Context, r *model.Recipient, message string, extra map[string]string) error {
	err := s.push.Send(ctx, r.DeviceTokens, message, extra)

	now := s.now()
	r.LastPushAt = &now
	r.PendingPush = false
	if saveErr := s.recips.SaveRecipient(ctx, r); saveErr != nil {
		s.log.Warn("push bookkeeping save failed", logx.String("recipient", r.ID), logx.Err(saveErr))
		if err == nil {
			err = saveErr
		}
	}
	return err
}

// CanReceivePush applies the push suppression rules: a recipient without
// device tokens, pushed within the rate window, or with a push already
// pending never receives another one.
func CanReceivePush(r *model.Recipient, now time.Time) bool {
	if r == nil || len(r.DeviceTokens) == 0 {
		return false
	}
	if r.LastPushAt != nil && now.Sub(*r.LastPushAt) <= pushRateWindow {
		return false
	}
	if r.PendingPush {
		return false
	}
	return true
}

// inSendWindow reports whether now falls on the recipient's preferred send
// minute. An unset or malformed dayStart means midnight.
func inSendWindow(now time.Time, dayStart string) bool {
	h, m := parseDayStart(dayStart)
	return now.Hour() == h && now.Minute() == m
}

// untilNextWindow computes the delay until the next occurrence of the
// preferred send minute.
func untilNextWindow(now time.Time, dayStart string) time.Duration {
	h, m := parseDayStart(dayStart)
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func parseDayStart(s string) (hour, minute int) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0
	}
	return h, m
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
