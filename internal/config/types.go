package config

// Config is the whole on-disk configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Settings Settings       `json:"settings"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Schedule ScheduleConfig `json:"schedule"`
	Debug    DebugConfig    `json:"debug"`
}

// ServerConfig controls the listener. All durations are Go duration strings
// (e.g. "500ms", "5s").
type ServerConfig struct {
	Addr       string `json:"addr"`
	Path       string `json:"path"`
	StatusPath string `json:"status_path"`

	WriteTimeout    string `json:"write_timeout"`
	PollInterval    string `json:"poll_interval"`
	ShutdownTimeout string `json:"shutdown_timeout"`

	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64 `json:"read_limit"`
}

// Settings is the snapshot a run reads at start.
//
// SendDelay is in seconds (fractions allowed). NextTemplate is the round-robin
// cursor; it is rewritten after every dispatch so a restarted run continues
// with the next template.
type Settings struct {
	Templates       []string `json:"templates"`
	SendDelay       float64  `json:"send_delay"`
	MaxConcurrent   int      `json:"max_concurrent"`
	StopAfter       int      `json:"stop_after"`
	EnableStopAfter bool     `json:"enable_stop_after"`
	WildcardDir     string   `json:"wildcard_dir"`
	RecursionDepth  int      `json:"recursion_depth"`
	NextTemplate    int      `json:"next_template"`

	// CompleteStatuses lists status values that end a prompt's in-flight period.
	CompleteStatuses []string `json:"complete_statuses,omitempty"`
}

// Clone returns a deep copy so a run can hold a snapshot the manager won't mutate.
func (s Settings) Clone() Settings {
	cp := s
	cp.Templates = append([]string(nil), s.Templates...)
	if s.CompleteStatuses != nil {
		cp.CompleteStatuses = append([]string(nil), s.CompleteStatuses...)
	}
	return cp
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Sink    LoggingSink `json:"sink"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingSink struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional prompt history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/minerva.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig starts runs on a cron schedule.
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
}

// DebugConfig controls the optional ops listener (pprof, health, prompt history).
// A non-loopback addr requires a token unless allow_insecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
