package model

import "time"

// Channel is a delivery medium with independent enablement and scheduling
// policy.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Platform capability tags carried by a recipient. Capabilities drive the
// default channel derivation: web implies email, mobile-push implies push.
const (
	PlatformWeb        = "web"
	PlatformMobilePush = "mobile-push"
)

// FrequencyInstant is the only recognized delivery frequency.
const FrequencyInstant = "instant"

// ChannelSetting is one channel's state inside a NotificationSetting.
type ChannelSetting struct {
	Enabled   bool              `json:"enabled"`
	Frequency string            `json:"frequency,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// NotificationSetting is a recipient's explicit configuration for one tracked
// item. A nil setting on a tracked item means "tracked but unconfigured";
// defaults are then derived from the recipient's platforms.
type NotificationSetting struct {
	Enabled  bool                        `json:"enabled"`
	Channels map[Channel]*ChannelSetting `json:"channels"`
}

// Recipient is a user or counterparty capable of receiving notifications.
type Recipient struct {
	ID           string     `json:"_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Platforms    []string   `json:"platforms,omitempty"`
	DeviceTokens []string   `json:"deviceTokens,omitempty"`
	LastPushAt   *time.Time `json:"lastPushAt,omitempty"`
	PendingPush  bool       `json:"pendingPush,omitempty"`

	// DayStart is the recipient's preferred push window as "HH:MM" local
	// time. Empty means no preference (pushes are deferred to midnight).
	DayStart string `json:"dayStart,omitempty"`

	// Tracked maps tracked-entity id to the explicit notification setting.
	// Presence of the key alone marks the item as tracked.
	Tracked map[string]*NotificationSetting `json:"tracked,omitempty"`
}

// HasPlatform reports whether the recipient carries the capability tag.
func (r *Recipient) HasPlatform(p string) bool {
	for _, have := range r.Platforms {
		if have == p {
			return true
		}
	}
	return false
}
