package server

import (
	"context"
	"time"

	"minerva/internal/eventbus"
	"minerva/internal/storage"
	"minerva/internal/tracker"
	logx "minerva/pkg/logx"
)

const recordTimeout = 5 * time.Second

// Recorder writes a run's dispatched prompts and their status changes to a
// history store. Store failures are logged and never end the run.
type Recorder struct {
	store storage.Store
	runID string
	log   logx.Logger

	// A client may report before the dispatch event is published; such
	// statuses wait in pending until the prompt is appended.
	appended map[string]struct{}
	pending  map[string]string
}

func NewRecorder(store storage.Store, runID string, log logx.Logger) *Recorder {
	return &Recorder{
		store:    store,
		runID:    runID,
		log:      log,
		appended: map[string]struct{}{},
		pending:  map[string]string{},
	}
}

// Run consumes events until the channel is closed, so nothing published
// before the unsubscribe is lost.
func (r *Recorder) Run(events <-chan eventbus.Event) {
	for ev := range events {
		r.record(ev)
	}
}

func (r *Recorder) record(ev eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	switch d := ev.Data.(type) {
	case eventbus.PromptDispatched:
		status := tracker.StatusSent
		if p, ok := r.pending[d.ID]; ok {
			status = p
			delete(r.pending, d.ID)
		}
		r.appended[d.ID] = struct{}{}
		err := r.store.AppendPrompt(ctx, storage.PromptRecord{
			ID:        d.ID,
			RunID:     r.runID,
			Template:  d.Template,
			Text:      d.Text,
			Status:    status,
			Delivered: d.Delivered,
			CreatedAt: ev.Time,
			UpdatedAt: ev.Time,
		})
		if err != nil {
			r.log.Warn("prompt history append failed", logx.String("prompt_id", d.ID), logx.Err(err))
		}
	case eventbus.PromptStatus:
		if _, ok := r.appended[d.ID]; !ok {
			r.pending[d.ID] = d.Status
			return
		}
		if err := r.store.UpdateStatus(ctx, d.ID, d.Status, ev.Time); err != nil {
			r.log.Warn("prompt history update failed", logx.String("prompt_id", d.ID), logx.Err(err))
		}
	}
}
