// Package generator runs the prompt loop of one server run: wait for a client,
// wait for capacity, expand and broadcast the next template, cool down, repeat.
package generator

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"minerva/internal/broadcast"
	"minerva/internal/config"
	"minerva/internal/eventbus"
	"minerva/internal/tracker"
	"minerva/internal/wildcard"
	logx "minerva/pkg/logx"
)

type Generator struct {
	cfg     Config
	tracker *tracker.Tracker
	clients *broadcast.Channel
	persist Persister
	bus     eventbus.Bus
	log     logx.Logger

	mu       sync.Mutex
	state    State
	sent     int
	settings config.Settings // NextTemplate advances per dispatch
}

// New builds a generator for one run. persist and bus may be nil.
func New(cfg Config, tr *tracker.Tracker, clients *broadcast.Channel, persist Persister, bus eventbus.Bus, log logx.Logger) *Generator {
	cfg = cfg.withDefaults()
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Generator{
		cfg:      cfg,
		tracker:  tr,
		clients:  clients,
		persist:  persist,
		bus:      bus,
		log:      log,
		state:    StateIdle,
		settings: cfg.Settings.Clone(),
	}
}

func (g *Generator) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Sent is the number of prompts dispatched in this run.
func (g *Generator) Sent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent
}

// NextTemplate is the template the next dispatch will use.
func (g *Generator) NextTemplate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.settings.Templates
	if len(t) == 0 {
		return ""
	}
	return t[g.settings.NextTemplate%len(t)]
}

func (g *Generator) stopAfterReached() bool {
	s := g.cfg.Settings
	return s.EnableStopAfter && g.Sent() >= s.StopAfter
}

// Run loops until ctx is done or the stop-after limit is reached, in which
// case it returns ErrStopAfterReached. A canceled ctx returns ctx.Err().
func (g *Generator) Run(ctx context.Context) error {
	defer g.setState(StateStopped)
	for {
		if g.stopAfterReached() {
			g.log.Info("stop-after limit reached; stopping prompt generation", logx.Int("sent", g.Sent()), logx.Int("stop_after", g.cfg.Settings.StopAfter))
			return ErrStopAfterReached
		}
		if !g.waitForClient(ctx) {
			return ctx.Err()
		}
		if !g.waitForCapacity(ctx) {
			return ctx.Err()
		}
		// Clients may have left while we waited for capacity.
		if g.clients.Len() == 0 {
			continue
		}
		g.dispatch(ctx)
		if !g.cooldown(ctx) {
			return ctx.Err()
		}
	}
}

// waitForClient blocks until at least one connection is registered. It wakes
// on channel changes, so no polling is needed.
func (g *Generator) waitForClient(ctx context.Context) bool {
	if g.clients.Len() > 0 {
		return true
	}
	g.setState(StateWaitingForClient)
	g.log.Debug("waiting for a client")
	for {
		changed := g.clients.Changed()
		if g.clients.Len() > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}

// waitForCapacity polls the tracker until fewer than max_concurrent prompts
// are in flight. Stalls are normal and are not logged repeatedly.
func (g *Generator) waitForCapacity(ctx context.Context) bool {
	limit := g.cfg.Settings.MaxConcurrent
	if g.tracker.InFlight() < limit {
		return true
	}
	g.setState(StateWaitingForCapacity)
	g.log.Debug("waiting for capacity", logx.Int("in_flight", g.tracker.InFlight()), logx.Int("max_concurrent", limit))

	tick := time.NewTicker(g.cfg.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
			if g.tracker.InFlight() < limit {
				return true
			}
		}
	}
}

func (g *Generator) dispatch(ctx context.Context) {
	g.setState(StateDispatching)

	g.mu.Lock()
	idx := g.settings.NextTemplate % len(g.settings.Templates)
	template := g.settings.Templates[idx]
	g.mu.Unlock()

	p := Prompt{
		PromptID: g.cfg.NewID(),
		Text:     wildcard.Expand(template, g.cfg.Table, g.cfg.Settings.RecursionDepth, g.cfg.Rand),
	}
	payload, err := json.Marshal(p)
	if err != nil {
		g.log.Error("prompt encode failed", logx.Err(err))
		return
	}
	g.log.Info("prompt generated", logx.String("prompt_id", p.PromptID), logx.String("text", p.Text), logx.Int("template", idx))

	// Register before sending: a client may report back before SendAll returns.
	g.tracker.Record(p.PromptID, tracker.StatusSent)

	res := g.clients.SendAll(ctx, payload, g.cfg.SendTimeout)
	for _, f := range res.Failed {
		g.log.Warn("prompt send failed; dropping client", logx.String("client", f.Conn.ID()), logx.Err(f.Err))
		g.clients.Remove(f.Conn)
		if c, ok := f.Conn.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if res.Delivered() == 0 {
		g.tracker.Forget(p.PromptID)
		g.log.Error("prompt dispatch failed", logx.String("prompt_id", p.PromptID), logx.Int("failed", len(res.Failed)))
		return
	}

	g.mu.Lock()
	g.sent++
	sent := g.sent
	g.settings.NextTemplate = (idx + 1) % len(g.settings.Templates)
	cursor := g.settings.NextTemplate
	g.mu.Unlock()

	g.log.Info("prompt sent to clients", logx.String("prompt_id", p.PromptID), logx.Int("delivered", res.Delivered()), logx.Int("sent", sent))
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{Type: eventbus.TypePromptDispatch, Data: eventbus.PromptDispatched{
			ID:        p.PromptID,
			Text:      p.Text,
			Template:  template,
			Delivered: res.Delivered(),
			Failed:    len(res.Failed),
			Sent:      sent,
		}})
	}

	if g.persist != nil {
		if err := g.persist.SaveCursor(ctx, cursor); err != nil {
			g.log.Warn("template cursor persist failed", logx.Err(err))
		}
	}
}

// cooldown waits send_delay or until ctx is done.
func (g *Generator) cooldown(ctx context.Context) bool {
	d := config.Seconds(g.cfg.Settings.SendDelay)
	if d <= 0 {
		return ctx.Err() == nil
	}
	g.setState(StateCoolingDown)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
