package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "minerva/pkg/logx"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts a cron expression, a descriptor, or a positive Go duration.
func Parse(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.New("schedule required")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return nil, errors.New("interval must be > 0")
		}
		return cron.Every(d), nil
	}
	sch, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return sch, nil
}

// LoadLocation resolves tz; empty means time.Local.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

type Config struct {
	Spec     string
	Timezone string
}

// Trigger is invoked on every firing.
type Trigger func(ctx context.Context) error

type Service struct {
	cfg     Config
	trigger Trigger
	log     logx.Logger

	mu    sync.Mutex
	c     *cron.Cron
	ctx   context.Context
	entry cron.EntryID
}

func New(cfg Config, trigger Trigger, log logx.Logger) *Service {
	return &Service{cfg: cfg, trigger: trigger, log: log}
}

// Start registers the schedule and starts the cron runner. Calling Start on a
// running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	sch, err := Parse(s.cfg.Spec)
	if err != nil {
		return err
	}
	loc, err := LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Timezone, err)
	}

	s.ctx = ctx
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	s.entry = s.c.Schedule(sch, cron.FuncJob(s.fire))
	s.c.Start()
	s.log.Info("schedule started", logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()), logx.Any("next", s.c.Entry(s.entry).Next))
	return nil
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled trigger", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	s.log.Info("schedule fired", logx.String("spec", s.cfg.Spec))
	if err := s.trigger(ctx); err != nil {
		s.log.Error("scheduled start failed", logx.Err(err))
	}
}

// Next reports the next firing time, or zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop halts the cron runner and waits for a running trigger to return.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("schedule stopped")
}
