package config

// Config is the full notifyd configuration.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "2m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Mail     MailConfig     `json:"mail"`
	Push     PushConfig     `json:"push"`
	Delivery DeliveryConfig `json:"delivery"`
	Queue    QueueConfig    `json:"queue,omitempty"`
	HTTP     HTTPConfig     `json:"http,omitempty"`

	// BaseURL is the public site root used to build activity/mute links
	// embedded in notification email.
	BaseURL string `json:"base_url,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./notify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type MailConfig struct {
	Server     string `json:"server"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Pass       string `json:"pass"`
	From       string `json:"from"`
	FromHeader string `json:"from_header"`
}

type PushConfig struct {
	URL        string `json:"url"`
	AppKey     string `json:"app_key,omitempty"`
	Secret     string `json:"secret,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"` // Go duration string
}

// DeliveryConfig controls the orchestrator.
type DeliveryConfig struct {
	// Window is how far back each run polls for activities. Defaults to 2h.
	Window string `json:"window,omitempty"`
	// EntityType restricts polling. Defaults to "project".
	EntityType string `json:"entity_type,omitempty"`
	// Schedule is the daemon-mode run cadence as a cron spec
	// (robfig/cron, "@every 2m" style descriptors included).
	Schedule string `json:"schedule,omitempty"`
}

// QueueConfig controls the deferred push worker.
type QueueConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // Go duration string
	Batch        int    `json:"batch,omitempty"`
}

// HTTPConfig controls the optional ops HTTP server (health, run status,
// mute/notify endpoints). Prefer binding to localhost.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8087"
}
