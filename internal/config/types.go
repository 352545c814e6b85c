package config

// Config is the full digestd configuration.
//
// The file on disk may be YAML or JSON; YAML is coerced to JSON before
// strict decoding (unknown fields are rejected). All durations are Go
// duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Digest    DigestConfig    `json:"digest,omitempty"`
	Sources   SourcesConfig   `json:"sources"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls when digest runs are triggered.
// Spec is a standard 5-field cron expression (seconds optional).
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// DigestConfig tunes rendering.
//
// PreviewLength bounds the content preview in both renderings (runes).
// 0 means the built-in default; truncation never happens silently below it.
type DigestConfig struct {
	PreviewLength int    `json:"preview_length,omitempty"`
	Title         string `json:"title,omitempty"`
}

// RetryConfig shapes the resilient fetch policy for one source.
// Zero values fall back to per-category defaults.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts,omitempty"`
	BaseDelay   string  `json:"base_delay,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
}

type SourcesConfig struct {
	Slack *SlackSourceConfig `json:"slack,omitempty"`
	Mail  *MailSourceConfig  `json:"mail,omitempty"`
	Mock  *MockSourceConfig  `json:"mock,omitempty"`
}

type SlackSourceConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	// Window is the fallback collection window when no checkpoint exists.
	Window string      `json:"window,omitempty"`
	Retry  RetryConfig `json:"retry,omitempty"`
}

type MailSourceConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// TLS is a pointer so "omitted" defaults to true (implicit TLS).
	TLS     *bool       `json:"tls,omitempty"`
	Mailbox string      `json:"mailbox,omitempty"`
	Window  string      `json:"window,omitempty"`
	Retry   RetryConfig `json:"retry,omitempty"`
}

type MockSourceConfig struct {
	Enabled bool `json:"enabled"`
}

type DeliveryConfig struct {
	// Channels are shoutrrr URLs (smtp://, discord://, ...).
	Channels []DeliveryChannelConfig `json:"channels,omitempty"`
	Telegram *TelegramDeliveryConfig `json:"telegram,omitempty"`
	Timeout  string                  `json:"timeout,omitempty"`
}

type DeliveryChannelConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type TelegramDeliveryConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// StorageConfig selects the checkpoint/audit store backend.
//
// Driver values:
//   - "" or "none": storage disabled
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
