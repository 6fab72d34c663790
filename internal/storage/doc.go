// Package storage keeps an optional history of dispatched prompts.
//
// It currently supports:
//   - "file": append-only JSON Lines (<prefix>.prompts.jsonl)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage
