// Package prefs implements per-recipient, per-tracked-item notification
// preferences. A tracked item without an explicit setting falls back to
// defaults derived from the recipient's platform capabilities; such a
// recipient stays notifiable until explicitly muted.
//
// Every operation takes the recipient explicitly; there is no ambient
// session or current-user state.
package prefs

import (
	"errors"

	"github.com/GovTribe/notify/internal/model"
)

// ErrNotTracking is returned when settings are requested for an item the
// recipient does not track. Callers should check IsTracking first or treat
// the error as "not notified".
var ErrNotTracking = errors.New("prefs: recipient is not tracking item")

// IsTracking reports whether the recipient tracks the item at all.
func IsTracking(r *model.Recipient, itemID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Tracked[itemID]
	return ok
}

// IsConfigured reports whether an explicit setting exists for the item.
func IsConfigured(r *model.Recipient, itemID string) bool {
	if r == nil {
		return false
	}
	s, ok := r.Tracked[itemID]
	return ok && s != nil
}

// Settings returns the effective setting for a tracked item: the explicit one
// when configured, otherwise the platform-derived default.
func Settings(r *model.Recipient, itemID string) (*model.NotificationSetting, error) {
	if !IsTracking(r, itemID) {
		return nil, ErrNotTracking
	}
	if s := r.Tracked[itemID]; s != nil {
		return s, nil
	}
	return DefaultSettings(r.Platforms), nil
}

// WillBeNotified reports whether a notification on the given channel should
// reach the recipient for the item. Untracked items are never notified;
// unconfigured items use the platform-derived defaults.
func WillBeNotified(r *model.Recipient, itemID string, ch model.Channel) bool {
	s, err := Settings(r, itemID)
	if err != nil {
		return false
	}
	if !s.Enabled {
		return false
	}
	cs, ok := s.Channels[ch]
	return ok && cs != nil && cs.Enabled
}

// Channels lists the channels a notification for the item should go out on.
func Channels(r *model.Recipient, itemID string) []model.Channel {
	var out []model.Channel
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelPush} {
		if WillBeNotified(r, itemID, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Enable turns the channel on for the item. Idempotent; materializes a
// setting holding only the target channel's state when none exists yet.
func Enable(r *model.Recipient, itemID string, ch model.Channel) {
	setChannel(r, itemID, ch, true)
}

// Disable turns the channel off for the item. Idempotent; materializes a
// setting holding only the target channel's state when none exists yet.
func Disable(r *model.Recipient, itemID string, ch model.Channel) {
	setChannel(r, itemID, ch, false)
}

func setChannel(r *model.Recipient, itemID string, ch model.Channel, enabled bool) {
	if r == nil {
		return
	}
	if r.Tracked == nil {
		r.Tracked = map[string]*model.NotificationSetting{}
	}
	s := r.Tracked[itemID]
	if s == nil {
		s = &model.NotificationSetting{
			Enabled:  true,
			Channels: map[model.Channel]*model.ChannelSetting{},
		}
		r.Tracked[itemID] = s
	}
	if s.Channels == nil {
		s.Channels = map[model.Channel]*model.ChannelSetting{}
	}
	cs := s.Channels[ch]
	if cs == nil {
		cs = &model.ChannelSetting{Frequency: model.FrequencyInstant}
		s.Channels[ch] = cs
	}
	cs.Enabled = enabled
}

// SyncDefaults materializes platform-derived defaults for every tracked item
// that lacks an explicit setting. The persistence layer calls this whenever
// recipient state is saved.
func SyncDefaults(r *model.Recipient) {
	if r == nil {
		return
	}
	for id, s := range r.Tracked {
		if s == nil {
			r.Tracked[id] = DefaultSettings(r.Platforms)
		}
	}
}

// DefaultSettings derives a setting from platform capabilities: web implies
// email, mobile-push implies push, both at instant frequency. A recipient
// with neither capability gets no channels and stays unreachable until
// explicitly configured.
func DefaultSettings(platforms []string) *model.NotificationSetting {
	s := &model.NotificationSetting{
		Enabled:  true,
		Channels: map[model.Channel]*model.ChannelSetting{},
	}
	for _, p := range platforms {
		switch p {
		case model.PlatformWeb:
			s.Channels[model.ChannelEmail] = &model.ChannelSetting{
				Enabled:   true,
				Frequency: model.FrequencyInstant,
				Meta:      map[string]string{"format": "html"},
			}
		case model.PlatformMobilePush:
			s.Channels[model.ChannelPush] = &model.ChannelSetting{
				Enabled:   true,
				Frequency: model.FrequencyInstant,
			}
		}
	}
	return s
}
