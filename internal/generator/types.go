package generator

import (
	"context"
	"errors"
	"time"

	"minerva/internal/config"
	"minerva/internal/wildcard"
)

// State is the generator's position in its loop.
type State string

const (
	StateIdle               State = "idle"
	StateWaitingForClient   State = "waiting-for-client"
	StateWaitingForCapacity State = "waiting-for-capacity"
	StateDispatching        State = "dispatching"
	StateCoolingDown        State = "cooling-down"
	StateStopped            State = "stopped"
)

// ErrStopAfterReached is returned by Run when the stop-after limit ended the run.
var ErrStopAfterReached = errors.New("stop-after limit reached")

// Prompt is the outbound wire payload.
type Prompt struct {
	PromptID string `json:"prompt_id"`
	Text     string `json:"text"`
}

// Persister stores the round-robin cursor after each dispatch. It must not
// touch any other setting, which may have been edited since the run began.
type Persister interface {
	SaveCursor(ctx context.Context, next int) error
}

// Config is everything one run needs.
type Config struct {
	Settings config.Settings
	Table    wildcard.Table

	// Rand drives template expansion; nil uses math/rand's global source.
	Rand wildcard.Rand

	// PollInterval bounds how stale the capacity check may get.
	PollInterval time.Duration
	// SendTimeout bounds each client's send.
	SendTimeout time.Duration

	// NewID issues prompt identifiers; nil uses random UUIDs.
	NewID func() string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.Settings.RecursionDepth < 0 {
		c.Settings.RecursionDepth = 0
	}
	if c.Table == nil {
		c.Table = wildcard.Table{}
	}
	return c
}
