package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Watch    WatchConfig    `json:"watch"`
	Pairs    PairsConfig    `json:"pairs,omitempty"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// WatchConfig controls the primary fetch/diff/notify pipeline.
//
// All durations are Go duration strings (e.g. "90s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "5m"
//   - date_window_days: 30
//   - max_slot_notifications: 5
type WatchConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`

	// DateWindowDays is how far ahead of today each fetch looks.
	DateWindowDays int `json:"date_window_days,omitempty"`

	// MaxSlotNotifications caps how many new slots a single cycle may
	// announce. The earliest-occurring slots win; the rest are dropped.
	MaxSlotNotifications int `json:"max_slot_notifications,omitempty"`
}

// PairsConfig controls the consecutive-pair pipeline. It runs on its
// own timer, over a single provider's feed, with its own in-memory
// dedupe state.
//
// Mode selects what gets announced:
//   - "pairs": only consecutive 30-minute pairs (default)
//   - "all":   every previously-unseen slot
type PairsConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"` // default "1m"
	Provider string `json:"provider,omitempty"` // default "lode"
	Mode     string `json:"mode,omitempty"`
	// MaxNotifications caps new pairs announced per cycle (default 3).
	MaxNotifications int `json:"max_notifications,omitempty"`
}

// NotifierConfig controls the async delivery pipeline. If the whole
// section is omitted, defaults apply (2 workers, queue 512, 3 msg/s).
type NotifierConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
	// RetryBase is a Go duration string (e.g. "500ms").
	RetryBase string `json:"retry_base,omitempty"`
}
