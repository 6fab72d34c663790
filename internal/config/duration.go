package config

import (
	"strings"
	"time"
)

// Fallbacks for server timings left blank or set to zero.
const (
	DefaultWriteTimeout    = 5 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
)

// ParseDurationField parses a Go duration string from the config file. Blank
// means zero; negative values are rejected. Errors wrap ErrInvalid and name
// the field.
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid(field, "%q is not a duration (want e.g. \"500ms\" or \"5s\")", raw)
	}
	if d < 0 {
		return 0, invalid(field, "must not be negative, got %s", d)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def used for zero.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Timings are the parsed server durations a run uses.
type Timings struct {
	WriteTimeout    time.Duration // per-send write deadline
	PollInterval    time.Duration // capacity re-check period
	ShutdownTimeout time.Duration // listener drain on stop
}

// Timings parses the server durations, filling zero values with defaults.
func (s ServerConfig) Timings() (Timings, error) {
	var (
		t   Timings
		err error
	)
	if t.WriteTimeout, err = ParseDurationOrDefault("server.write_timeout", s.WriteTimeout, DefaultWriteTimeout); err != nil {
		return Timings{}, err
	}
	if t.PollInterval, err = ParseDurationOrDefault("server.poll_interval", s.PollInterval, DefaultPollInterval); err != nil {
		return Timings{}, err
	}
	if t.ShutdownTimeout, err = ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return Timings{}, err
	}
	return t, nil
}

// Seconds converts send_delay (fractional seconds) to a Duration.
func Seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
