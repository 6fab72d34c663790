package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"minerva/internal/config"
	"minerva/internal/eventbus"
	"minerva/internal/observability/ops"
	"minerva/internal/runtime/supervisor"
	"minerva/internal/schedule"
	"minerva/internal/server"
	"minerva/internal/storage"
	logx "minerva/pkg/logx"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var idle bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prompt server",
		Long: "serve starts a run and keeps the process up until SIGINT/SIGTERM. " +
			"Without a schedule or --idle it exits once the run ends on its own.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.configPath, idle)
		},
	}
	cmd.Flags().BoolVar(&idle, "idle", false, "do not start a run now; leave starting to the schedule")
	return cmd
}

func serve(ctx context.Context, cfgPath string, idle bool) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bus := eventbus.New()
	logs, root := logx.New(logConfig(cfg.Logging), busSink(bus))
	defer logs.Close()
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	log := root.With(logx.String("comp", "serve"))

	sc, err := storageConfig(cfg.Storage)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	ctrl := server.NewController(cfgm, root.With(logx.String("comp", "server")),
		server.WithBus(bus), server.WithStore(store))

	sup := supervisor.New(ctx, supervisor.WithLogger(log))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sup.Stop(sctx, context.Canceled); err != nil {
			log.Warn("background tasks did not stop cleanly", logx.Err(err))
		}
	}()

	var history ops.History
	if store != nil {
		history = store
	}
	opsSvc := ops.New(opsConfig(cfg.Debug), history, root.With(logx.String("comp", "ops")))
	if err := opsSvc.Start(ctx); err != nil {
		return fmt.Errorf("start ops listener: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		opsSvc.Stop(sctx)
	}()

	sup.Go("config.watch", cfgm.Watch)
	sub := cfgm.Subscribe(4)
	sup.Go0("config.apply", func(c context.Context) {
		defer cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				logs.Apply(logConfig(next.Logging))
				if err := opsSvc.Reconfigure(c, opsConfig(next.Debug)); err != nil {
					log.Warn("ops listener reconfigure failed", logx.Err(err))
				}
				log.Info("config updated; settings apply to the next run", logx.Bool("running", ctrl.IsRunning()))
			}
		}
	})

	events, unsub := bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Log entries come from the logger itself.
				if e.Type == eventbus.TypeLogEntry {
					continue
				}
				log.Debug("event", logx.String("type", e.Type))
			}
		}
	})

	if cfg.Schedule.Enabled {
		sched := schedule.New(schedule.Config{Spec: cfg.Schedule.Spec, Timezone: cfg.Schedule.Timezone},
			ctrl.Start, root.With(logx.String("comp", "schedule")))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start schedule: %w", err)
		}
		defer sched.Stop()
	}

	if !idle {
		if err := ctrl.Start(ctx); err != nil {
			return err
		}
	}
	sdNotify(log, daemon.SdNotifyReady)

	if !idle && !cfg.Schedule.Enabled {
		select {
		case <-ctx.Done():
		case <-ctrl.Done():
			log.Info("run finished; exiting")
		}
	} else {
		<-ctx.Done()
	}

	sdNotify(log, daemon.SdNotifyStopping)
	ctrl.Stop()
	grace := config.DefaultShutdownTimeout
	if t, err := cfg.Server.Timings(); err == nil {
		grace = t.ShutdownTimeout
	}
	select {
	case <-ctrl.Done():
	case <-time.After(grace + time.Second):
		log.Warn("run teardown timed out")
	}
	return ctrl.Err()
}

func busSink(bus eventbus.Bus) logx.Sink {
	return logx.SinkFunc(func(_ context.Context, e logx.Entry) {
		bus.Publish(eventbus.Event{Type: eventbus.TypeLogEntry, Time: e.Time, Data: e})
	})
}

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}
