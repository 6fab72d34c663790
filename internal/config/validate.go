package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"minerva/internal/schedule"
	logx "minerva/pkg/logx"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...))
}

// Validate checks a config after defaults were applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config", "is nil")
	}
	if err := ValidateSettings(cfg.Settings); err != nil {
		return err
	}

	srv := cfg.Server
	for field, raw := range map[string]string{
		"server.write_timeout":    srv.WriteTimeout,
		"server.poll_interval":    srv.PollInterval,
		"server.shutdown_timeout": srv.ShutdownTimeout,
		"storage.busy_timeout":    cfg.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(field, raw); err != nil {
			return err
		}
	}
	if srv.ReadLimit < 0 {
		return invalid("server.read_limit", "must be >= 0")
	}
	if !strings.HasPrefix(srv.Path, "/") {
		return invalid("server.path", "must start with /")
	}
	if !strings.HasPrefix(srv.StatusPath, "/") {
		return invalid("server.status_path", "must start with /")
	}
	if srv.Path == srv.StatusPath {
		return invalid("server.status_path", "must differ from server.path")
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return invalid("logging.level", "unknown level %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Sink.MinLevel) {
		return invalid("logging.sink.min_level", "unknown level %q", cfg.Logging.Sink.MinLevel)
	}
	if cfg.Logging.Sink.RatePerSec < 0 {
		return invalid("logging.sink.rate_per_sec", "must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return invalid("storage.path", "required for driver %q", cfg.Storage.Driver)
		}
	default:
		return invalid("storage.driver", "unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Debug.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Debug.Addr); err != nil {
			return invalid("debug.addr", "%v", err)
		}
	}

	if cfg.Schedule.Enabled {
		if _, err := schedule.Parse(cfg.Schedule.Spec); err != nil {
			return invalid("schedule.spec", "%v", err)
		}
		if _, err := schedule.LoadLocation(cfg.Schedule.Timezone); err != nil {
			return invalid("schedule.timezone", "%v", err)
		}
	}
	return nil
}

// ValidateSettings checks the run snapshot on its own.
func ValidateSettings(s Settings) error {
	if len(s.Templates) == 0 {
		return invalid("settings.templates", "at least one template is required")
	}
	for i, t := range s.Templates {
		if strings.TrimSpace(t) == "" {
			return invalid("settings.templates", "template %d is blank", i)
		}
	}
	if s.SendDelay < 0 {
		return invalid("settings.send_delay", "must be >= 0")
	}
	if s.MaxConcurrent < 1 {
		return invalid("settings.max_concurrent", "must be >= 1")
	}
	if s.StopAfter < 0 {
		return invalid("settings.stop_after", "must be >= 0")
	}
	if s.RecursionDepth < 0 {
		return invalid("settings.recursion_depth", "must be >= 0")
	}
	if s.NextTemplate < 0 {
		return invalid("settings.next_template", "must be >= 0")
	}
	if strings.TrimSpace(s.WildcardDir) == "" {
		return invalid("settings.wildcard_dir", "is required")
	}
	return nil
}
