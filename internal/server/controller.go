package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"minerva/internal/broadcast"
	"minerva/internal/config"
	"minerva/internal/eventbus"
	"minerva/internal/generator"
	"minerva/internal/runtime/supervisor"
	"minerva/internal/storage"
	"minerva/internal/tracker"
	"minerva/internal/wildcard"
	logx "minerva/pkg/logx"
)

// SettingsSource provides the config a run starts from and persists the
// settings the run updates. *config.Manager implements it.
type SettingsSource interface {
	Get() *config.Config
	Save(ctx context.Context, s config.Settings) error
	SaveCursor(ctx context.Context, next int) error
}

// Stats is the status endpoint payload.
type Stats struct {
	Running      bool   `json:"running"`
	Sent         int    `json:"sent"`
	InFlight     int    `json:"in_flight"`
	Clients      int    `json:"clients"`
	State        string `json:"state"`
	NextTemplate string `json:"next_template"`
}

type Option func(*Controller)

func WithBus(bus eventbus.Bus) Option { return func(c *Controller) { c.bus = bus } }

// WithStore records every run's prompts into store.
func WithStore(store storage.Store) Option { return func(c *Controller) { c.store = store } }

// WithRand makes template expansion reproducible.
func WithRand(rng wildcard.Rand) Option { return func(c *Controller) { c.rng = rng } }

// Controller starts and stops runs. At most one run is live at a time.
type Controller struct {
	src   SettingsSource
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
	rng   wildcard.Rand

	mu  sync.Mutex
	run *run
}

func NewController(src SettingsSource, log logx.Logger, opts ...Option) *Controller {
	c := &Controller{src: src, log: log}
	for _, o := range opts {
		o(c)
	}
	if c.bus == nil {
		c.bus = eventbus.New()
	}
	return c
}

// run is one start-to-stop lifetime.
type run struct {
	id       string
	sup      *supervisor.Supervisor
	gen      *generator.Generator
	tracker  *tracker.Tracker
	clients  *broadcast.Channel
	handler  *Handler
	srv      *http.Server
	addr     string
	done     chan struct{} // closed once the listener is released and every task returned
	shutdown time.Duration
}

func (r *run) live() bool {
	if r == nil || r.sup.Context().Err() != nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *run) stats() Stats {
	return Stats{
		Running:      r.live(),
		Sent:         r.gen.Sent(),
		InFlight:     r.tracker.InFlight(),
		Clients:      r.clients.Len(),
		State:        string(r.gen.State()),
		NextTemplate: r.gen.NextTemplate(),
	}
}

type runConfig struct {
	server   config.ServerConfig
	settings config.Settings
	config.Timings
}

func (c *Controller) snapshot() (runConfig, error) {
	cfg := c.src.Get()
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return runConfig{}, err
	}
	t, err := cfg.Server.Timings()
	if err != nil {
		return runConfig{}, err
	}
	return runConfig{server: cfg.Server, settings: cfg.Settings.Clone(), Timings: t}, nil
}

// Start begins a run unless one is live. A run that is still tearing down is
// waited for first, so its listener is free to rebind. The run lasts until
// Stop, the stop-after limit, or ctx is done. Failures are *StartupError.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.run; prev != nil {
		if prev.live() {
			c.log.Debug("start ignored; run already live", logx.String("run", prev.id))
			return nil
		}
		select {
		case <-prev.done:
		case <-ctx.Done():
			return startupErr("teardown", ctx.Err())
		}
	}

	rc, err := c.snapshot()
	if err != nil {
		return startupErr("config", err)
	}
	table, err := wildcard.Load(rc.settings.WildcardDir)
	if err != nil {
		return startupErr("wildcards", err)
	}

	if err := c.src.Save(ctx, rc.settings); err != nil {
		c.log.Warn("settings persist failed", logx.Err(err))
	}

	ln, err := net.Listen("tcp", rc.server.Addr)
	if err != nil {
		return startupErr("listen", err)
	}

	r := c.newRun(ctx, rc, table, ln)
	c.run = r
	c.log.Info("server started",
		logx.String("run", r.id),
		logx.String("addr", r.addr),
		logx.String("path", rc.server.Path),
		logx.Int("templates", len(rc.settings.Templates)),
		logx.Int("wildcards", len(table)),
	)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeRunStarted, Data: r.id})
	return nil
}

func (c *Controller) newRun(ctx context.Context, rc runConfig, table wildcard.Table, ln net.Listener) *run {
	id := uuid.NewString()
	log := c.log.With(logx.String("run", id))

	tr := tracker.New(rc.settings.CompleteStatuses...)
	clients := broadcast.NewChannel()
	gen := generator.New(generator.Config{
		Settings:     rc.settings,
		Table:        table,
		Rand:         c.rng,
		PollInterval: rc.PollInterval,
		SendTimeout:  rc.WriteTimeout,
	}, tr, clients, c.src, c.bus, log.With(logx.String("comp", "generator")))

	h := NewHandler(HandlerConfig{
		Tracker:      tr,
		Clients:      clients,
		Bus:          c.bus,
		WriteTimeout: rc.WriteTimeout,
		ReadLimit:    rc.server.ReadLimit,
	}, log.With(logx.String("comp", "handler")))

	r := &run{
		id:       id,
		gen:      gen,
		tracker:  tr,
		clients:  clients,
		handler:  h,
		addr:     ln.Addr().String(),
		done:     make(chan struct{}),
		shutdown: rc.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle(rc.server.Path, h)
	mux.HandleFunc(rc.server.StatusPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.stats())
	})
	r.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	var (
		events  <-chan eventbus.Event
		unsub   func()
		recDone = make(chan struct{})
	)
	if c.store != nil {
		events, unsub = c.bus.Subscribe(256)
		rec := NewRecorder(c.store, id, log.With(logx.String("comp", "recorder")))
		go func() {
			defer close(recDone)
			rec.Run(events)
		}()
	} else {
		close(recDone)
	}

	r.sup = supervisor.New(ctx, supervisor.WithLogger(log), supervisor.WithCancelOnError(true))
	r.sup.Go("http", func(context.Context) error {
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	r.sup.Go("generator", func(ctx context.Context) error {
		err := gen.Run(ctx)
		if errors.Is(err, generator.ErrStopAfterReached) {
			r.sup.Cancel(err)
			return nil
		}
		return err
	})
	r.sup.Go0("teardown", func(ctx context.Context) {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), r.shutdown)
		defer cancel()
		if err := r.srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown incomplete", logx.Err(err))
			_ = r.srv.Close()
		}
		h.Close()
	})

	go func() {
		<-r.sup.Done()
		reason := stopReason(context.Cause(r.sup.Context()))
		log.Info("server stopped", logx.String("reason", reason), logx.Int("sent", gen.Sent()))
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeRunStopped, Data: eventbus.RunStopped{Reason: reason, Sent: gen.Sent()}})
		if unsub != nil {
			unsub()
		}
		<-recDone
		close(r.done)
	}()
	return r
}

func stopReason(cause error) string {
	switch {
	case errors.Is(cause, generator.ErrStopAfterReached):
		return "stop-after"
	case errors.Is(cause, ErrStopped):
		return "stopped"
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return "canceled"
	case cause == nil:
		return "unknown"
	default:
		return "error: " + cause.Error()
	}
}

// Stop cancels the live run and returns without waiting; Done reports when
// teardown finished. Stopping with no live run is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if !r.live() {
		return
	}
	c.log.Info("stop requested", logx.String("run", r.id))
	r.sup.Cancel(ErrStopped)
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.live()
}

// Done is closed when the current run has fully torn down. With no run it is
// already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.run.done
}

// Addr is the listen address of the current run, or "" with none.
func (c *Controller) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.run.live() {
		return ""
	}
	return c.run.addr
}

// Err is the first task failure of the current run.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return nil
	}
	return c.run.sup.Err()
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r != nil {
		return r.stats()
	}
	st := Stats{State: string(generator.StateIdle)}
	if cfg := c.src.Get(); cfg != nil && len(cfg.Settings.Templates) > 0 {
		s := cfg.Settings
		st.NextTemplate = s.Templates[s.NextTemplate%len(s.Templates)]
	}
	return st
}
