package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PromptRecord is one dispatched prompt with its latest status.
// Keep it compact and schema-stable.
type PromptRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Template  string    `json:"template"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Delivered int       `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
