package prefs

import (
	"testing"

	"github.com/GovTribe/notify/internal/model"
)

func tracker(platforms ...string) *model.Recipient {
	return &model.Recipient{
		ID:        "u1",
		Name:      "Alice Smith",
		Platforms: platforms,
		Tracked:   map[string]*model.NotificationSetting{"p1": nil},
	}
}

func TestDefaultsFromPlatforms(t *testing.T) {
	cases := []struct {
		name      string
		platforms []string
		email     bool
		push      bool
	}{
		{"web only", []string{model.PlatformWeb}, true, false},
		{"mobile only", []string{model.PlatformMobilePush}, false, true},
		{"both", []string{model.PlatformWeb, model.PlatformMobilePush}, true, true},
		{"neither", nil, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tracker(tc.platforms...)
			if got := WillBeNotified(r, "p1", model.ChannelEmail); got != tc.email {
				t.Fatalf("email = %v, want %v", got, tc.email)
			}
			if got := WillBeNotified(r, "p1", model.ChannelPush); got != tc.push {
				t.Fatalf("push = %v, want %v", got, tc.push)
			}
		})
	}
}

func TestUntrackedNeverNotified(t *testing.T) {
	r := tracker(model.PlatformWeb)
	if WillBeNotified(r, "other", model.ChannelEmail) {
		t.Fatalf("untracked item must not notify")
	}
	if _, err := Settings(r, "other"); err != ErrNotTracking {
		t.Fatalf("err = %v, want ErrNotTracking", err)
	}
	if WillBeNotified(nil, "p1", model.ChannelEmail) {
		t.Fatalf("nil recipient must not notify")
	}
}

func TestExplicitSettingWins(t *testing.T) {
	r := tracker(model.PlatformWeb)
	r.Tracked["p1"] = &model.NotificationSetting{
		Enabled: true,
		Channels: map[model.Channel]*model.ChannelSetting{
			model.ChannelEmail: {Enabled: false},
			model.ChannelPush:  {Enabled: true, Frequency: model.FrequencyInstant},
		},
	}
	if WillBeNotified(r, "p1", model.ChannelEmail) {
		t.Fatalf("explicitly disabled email must not notify")
	}
	if !WillBeNotified(r, "p1", model.ChannelPush) {
		t.Fatalf("explicitly enabled push must notify")
	}
}

func TestDisabledSettingSilencesAllChannels(t *testing.T) {
	r := tracker(model.PlatformWeb)
	r.Tracked["p1"] = &model.NotificationSetting{
		Enabled: false,
		Channels: map[model.Channel]*model.ChannelSetting{
			model.ChannelEmail: {Enabled: true},
		},
	}
	if WillBeNotified(r, "p1", model.ChannelEmail) {
		t.Fatalf("master switch off must silence the channel")
	}
	if got := Channels(r, "p1"); len(got) != 0 {
		t.Fatalf("channels = %v, want none", got)
	}
}

func TestEnableDisableIdempotent(t *testing.T) {
	r := tracker(model.PlatformWeb)

	Disable(r, "p1", model.ChannelEmail)
	Disable(r, "p1", model.ChannelEmail)
	if WillBeNotified(r, "p1", model.ChannelEmail) {
		t.Fatalf("disabled twice must stay disabled")
	}

	Enable(r, "p1", model.ChannelEmail)
	Enable(r, "p1", model.ChannelEmail)
	if !WillBeNotified(r, "p1", model.ChannelEmail) {
		t.Fatalf("enabled twice must stay enabled")
	}
}

func TestDisableMaterializesOnlyTargetChannel(t *testing.T) {
	r := tracker(model.PlatformWeb, model.PlatformMobilePush)

	Disable(r, "p1", model.ChannelEmail)

	s := r.Tracked["p1"]
	if s == nil {
		t.Fatalf("expected a materialized setting")
	}
	if _, ok := s.Channels[model.ChannelPush]; ok {
		t.Fatalf("untouched channel must not be materialized")
	}
	// With an explicit setting in place, the push default no longer applies.
	if WillBeNotified(r, "p1", model.ChannelPush) {
		t.Fatalf("explicit setting replaces platform defaults entirely")
	}
}

func TestEnableOnUntrackedStartsTracking(t *testing.T) {
	r := &model.Recipient{ID: "u1"}
	Enable(r, "p9", model.ChannelPush)
	if !IsTracking(r, "p9") {
		t.Fatalf("enable must create the tracked entry")
	}
	if !WillBeNotified(r, "p9", model.ChannelPush) {
		t.Fatalf("enabled channel must notify")
	}
}

func TestSyncDefaults(t *testing.T) {
	r := tracker(model.PlatformWeb)
	explicit := &model.NotificationSetting{Enabled: false}
	r.Tracked["p2"] = explicit

	SyncDefaults(r)

	if !IsConfigured(r, "p1") {
		t.Fatalf("unconfigured item must be materialized")
	}
	if r.Tracked["p2"] != explicit {
		t.Fatalf("explicit setting must be left alone")
	}
	if !WillBeNotified(r, "p1", model.ChannelEmail) {
		t.Fatalf("materialized default must keep the web recipient notifiable")
	}
}

func TestChannels(t *testing.T) {
	r := tracker(model.PlatformWeb, model.PlatformMobilePush)
	got := Channels(r, "p1")
	if len(got) != 2 || got[0] != model.ChannelEmail || got[1] != model.ChannelPush {
		t.Fatalf("channels = %v, want [email push]", got)
	}
}
