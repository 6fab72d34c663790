package config

import "strings"

const (
	DefaultTemplate       = "a [STYLE] [TYPE] character"
	DefaultAddr           = "localhost:8080"
	DefaultPath           = "/"
	DefaultStatusPath     = "/status"
	DefaultWildcardDir    = "wildcards"
	DefaultRecursionDepth = 5
	DefaultReadLimit      = 64 << 10
	DefaultDebugAddr      = "127.0.0.1:6060"
)

// DefaultCompleteStatuses are the status values that take a prompt out of flight.
// "progress_complete" is what the browser client reports.
var DefaultCompleteStatuses = []string{"complete", "progress_complete"}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	cfg := &Config{
		Settings: Settings{
			SendDelay:       5,
			MaxConcurrent:   3,
			StopAfter:       20,
			EnableStopAfter: true,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills omitted fields. It never overrides explicit values.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Server
	if strings.TrimSpace(s.Addr) == "" {
		s.Addr = DefaultAddr
	}
	if strings.TrimSpace(s.Path) == "" {
		s.Path = DefaultPath
	}
	if strings.TrimSpace(s.StatusPath) == "" {
		s.StatusPath = DefaultStatusPath
	}
	if s.WriteTimeout == "" {
		s.WriteTimeout = "5s"
	}
	if s.PollInterval == "" {
		s.PollInterval = "500ms"
	}
	if s.ShutdownTimeout == "" {
		s.ShutdownTimeout = "5s"
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = DefaultReadLimit
	}

	st := &cfg.Settings
	if len(st.Templates) == 0 {
		st.Templates = []string{DefaultTemplate}
	}
	if st.MaxConcurrent == 0 {
		st.MaxConcurrent = 3
	}
	if strings.TrimSpace(st.WildcardDir) == "" {
		st.WildcardDir = DefaultWildcardDir
	}
	if st.RecursionDepth == 0 {
		st.RecursionDepth = DefaultRecursionDepth
	}
	if len(st.CompleteStatuses) == 0 {
		st.CompleteStatuses = append([]string(nil), DefaultCompleteStatuses...)
	}

	if strings.TrimSpace(cfg.Debug.Addr) == "" {
		cfg.Debug.Addr = DefaultDebugAddr
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Sink.RatePerSec == 0 {
		cfg.Logging.Sink.RatePerSec = 20
	}
}
