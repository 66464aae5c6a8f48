package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // TRACE..ERROR, default INFO
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the sweep loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "30s"
//   - retry_max: 3
//   - retry_base: "100ms"
//   - retry_max_delay: "2s"
//   - history_size: 200
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`
	// Timezone is the default IANA zone for rules created without one.
	Timezone      string `json:"timezone,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
}

// DispatchConfig controls trigger fan-out.
type DispatchConfig struct {
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./chimed.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "memory" (default) | "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
