// Package tracker keeps the lifecycle status of every prompt dispatched in a run.
package tracker

import (
	"strings"
	"sync"
)

const (
	StatusSent     = "sent"
	StatusComplete = "complete"
)

// Tracker maps prompt id -> last reported status. Entries stay for the whole
// run (Forget only drops a prompt no client received); entries whose status is
// a completion status are not counted as in flight.
type Tracker struct {
	mu       sync.RWMutex
	status   map[string]string
	inFlight int

	complete map[string]struct{}
}

// New returns an empty tracker. completeStatuses lists the values that end a
// prompt's in-flight period; when empty, only StatusComplete does.
func New(completeStatuses ...string) *Tracker {
	t := &Tracker{status: map[string]string{}, complete: map[string]struct{}{}}
	for _, s := range completeStatuses {
		if s = strings.TrimSpace(s); s != "" {
			t.complete[s] = struct{}{}
		}
	}
	if len(t.complete) == 0 {
		t.complete[StatusComplete] = struct{}{}
	}
	return t
}

// IsComplete reports whether status ends the in-flight period.
func (t *Tracker) IsComplete(status string) bool {
	_, ok := t.complete[status]
	return ok
}

// Record inserts or overwrites id's status. It reports false when the stored
// status already equals status, so callers can skip duplicate side effects.
func (t *Tracker) Record(id, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordLocked(id, status)
}

// Update applies a client report to a known id. known is false for ids this
// tracker never recorded. A completed prompt stays completed: a later
// non-completion status is ignored (changed is false), so client reports can
// only lower the in-flight count.
func (t *Tracker) Update(id, status string) (known, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.status[id]
	if !ok {
		return false, false
	}
	if t.IsComplete(prev) && !t.IsComplete(status) {
		return true, false
	}
	return true, t.recordLocked(id, status)
}

func (t *Tracker) recordLocked(id, status string) bool {
	prev, ok := t.status[id]
	if ok && prev == status {
		return false
	}
	wasOpen := ok && !t.IsComplete(prev)
	isOpen := !t.IsComplete(status)
	switch {
	case isOpen && !wasOpen:
		t.inFlight++
	case !isOpen && wasOpen:
		t.inFlight--
	}
	t.status[id] = status
	return true
}

// Forget drops id. It is meant for a prompt that reached no client, which
// never counts as dispatched.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.status[id]
	if !ok {
		return
	}
	if !t.IsComplete(prev) {
		t.inFlight--
	}
	delete(t.status, id)
}

// Status returns id's last status.
func (t *Tracker) Status(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.status[id]
	return s, ok
}

// InFlight counts entries whose status is not a completion status.
func (t *Tracker) InFlight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inFlight
}

// Len is the number of prompts recorded.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.status)
}

// Snapshot copies the current id -> status map.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.status))
	for k, v := range t.status {
		out[k] = v
	}
	return out
}

// Reset clears every entry.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.status = map[string]string{}
	t.inFlight = 0
	t.mu.Unlock()
}
