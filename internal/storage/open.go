package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "minerva/pkg/logx"
)

// ErrUnknownDriver is returned by Open for a driver other than none, file or sqlite.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store keeps the prompt history of every run. The server's recorder is the
// only writer; the ops listener reads it through Recent.
type Store interface {
	// AppendPrompt adds a dispatched prompt.
	AppendPrompt(ctx context.Context, r PromptRecord) error
	// UpdateStatus sets the latest status a client reported for id.
	UpdateStatus(ctx context.Context, id, status string, at time.Time) error
	// Recent returns up to limit prompts, newest first.
	Recent(ctx context.Context, limit int) ([]PromptRecord, error)
	Close() error
}

// Open returns the prompt history store for cfg.Driver, or (nil, nil) when
// history is off ("" or "none").
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	}
	return nil, fmt.Errorf("%w %q (want none, file or sqlite)", ErrUnknownDriver, cfg.Driver)
}
