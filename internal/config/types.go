package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "15s", "1h").
type Config struct {
	Receiver ReceiverConfig `json:"receiver"`
	Primary  PrimaryConfig  `json:"primary"`
	Fallback FallbackConfig `json:"fallback"`
	Paging   PagingConfig   `json:"paging"`
	Alerts   AlertsConfig   `json:"alerts"`

	// Store holds alert counters, markers and cached chat ids.
	Store StoreConfig `json:"store"`
	// ThresholdStore holds threshold settings and counters. If omitted, Store is used.
	ThresholdStore *StoreConfig `json:"threshold_store,omitempty"`

	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`

	// DryRun logs messages instead of sending them.
	DryRun bool `json:"dry_run,omitempty"`
}

// ReceiverConfig identifies the destination group. Exactly one field must be set.
type ReceiverConfig struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// PrimaryConfig describes the delivery server.
//
// Defaults:
//   - timeout: "5s"
//   - retry_limit: 5
type PrimaryConfig struct {
	URL        string `json:"url"`
	AuthToken  string `json:"auth_token"` // do not log
	Timeout    string `json:"timeout,omitempty"`
	RetryLimit int    `json:"retry_limit,omitempty"`
}

// FallbackConfig describes the Telegram bot used when the primary fails.
// An empty bot_token disables the fallback channel.
//
// Defaults:
//   - timeout: "15s"
//   - retry_limit: 5
//   - rate_per_sec: 1
type FallbackConfig struct {
	BotToken   string  `json:"bot_token,omitempty"` // do not log
	APIURL     string  `json:"api_url,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	RetryLimit int     `json:"retry_limit,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// PagingConfig controls message splitting. max_size is in characters (default 3000).
type PagingConfig struct {
	MaxSize int `json:"max_size,omitempty"`
}

// AlertsConfig controls alert deduplication.
type AlertsConfig struct {
	// Dedup enables the per-text suppression window for alert sends.
	Dedup bool `json:"dedup"`
	// Delay is the suppression window (default "5m").
	Delay string `json:"delay,omitempty"`
}

// StoreConfig selects the counting store backend.
//
// Example:
//
//	"store": { "driver": "redis", "addr": "127.0.0.1:6379", "key_prefix": "notifyrelay:" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"` // do not log
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`

	// PruneSchedule is a cron spec (or @every) for expiry sweeps on file/sqlite.
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  bool              `json:"console"`
	File     FileLogConfig     `json:"file"`
	Telegram TelegramLogConfig `json:"telegram"`
}

type FileLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// TelegramLogConfig mirrors log records at or above min_level to a chat
// through the fallback bot.
type TelegramLogConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MetricsConfig enables a Pushgateway push at exit.
type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	PushgatewayURL string `json:"pushgateway_url,omitempty"`
	JobName        string `json:"job_name,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	Instance       string `json:"instance,omitempty"`
}
