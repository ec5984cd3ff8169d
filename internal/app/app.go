// Package app wires the daemon together: config, logging, store, feed,
// presenter, dispatch loop, control plane, and the maintenance cron.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/browser"
	"github.com/robfig/cron/v3"

	"ghnotifier/internal/config"
	"ghnotifier/internal/decide"
	"ghnotifier/internal/dispatch"
	"ghnotifier/internal/eventbus"
	"ghnotifier/internal/feed"
	"ghnotifier/internal/lifecycle"
	"ghnotifier/internal/presenter"
	"ghnotifier/internal/presenter/desktop"
	"ghnotifier/internal/presenter/telegram"
	"ghnotifier/internal/runtime/supervisor"
	"ghnotifier/internal/snooze"
	"ghnotifier/internal/tray"

	logx "ghnotifier/pkg/logx"
)

const shutdownGrace = 15 * time.Second

// Options configure one daemon instance.
type Options struct {
	// ConfigPath overrides the default config file location.
	ConfigPath string
	// Renderer receives control-plane snapshots (a tray menu frontend).
	// Nil is fine; the daemon runs headless.
	Renderer tray.Renderer
	// OnControlPlane hands the wired controller to the frontend so menu
	// activations can be submitted as commands. Called once, before the
	// loops start.
	OnControlPlane func(*tray.Controller)
	// OnReady fires once startup completed and the loops are running
	// (sd_notify readiness).
	OnReady func()
}

// Run starts the daemon and blocks until ctx is cancelled or startup fails.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		var err error
		if cfgPath, err = config.DefaultConfigPath(); err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("component", "config")))
	log.Info("starting", logx.String("config", cfgPath))

	bus := eventbus.New()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	pres, err := buildPresenter(ctx, cfg, log)
	if err != nil {
		return err
	}

	token := cfg.GitHub.ResolveToken()
	if token == "" {
		pres.Warn(ctx, "GitHub token missing",
			"Set github.token in "+cfgPath+" or export GITHUB_TOKEN.")
		return fmt.Errorf("github token missing (config github.token or GITHUB_TOKEN)")
	}
	client, err := feed.New(ctx, feed.Config{
		Token:      token,
		BaseURL:    cfg.GitHub.APIBaseURL,
		RatePerSec: cfg.GitHub.RatePerSec,
	}, log.With(logx.String("component", "feed")))
	if err != nil {
		pres.Warn(ctx, "GitHub client unavailable", err.Error())
		return fmt.Errorf("feed client: %w", err)
	}

	respTimeout, err := config.ParseDurationOrDefault(
		"notify.response_timeout", cfg.Notify.ResponseTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	dispOpts, err := dispatchOptions(cfg)
	if err != nil {
		return err
	}
	ckptPath, err := config.CheckpointPath()
	if err != nil {
		return fmt.Errorf("resolve checkpoint path: %w", err)
	}

	engine := decide.NewEngine(store, bus, log.With(logx.String("component", "decide")))
	runner := lifecycle.NewRunner(client, pres, browser.OpenURL, bus,
		lifecycle.Config{ResponseTimeout: respTimeout},
		log.With(logx.String("component", "lifecycle")))

	sup := supervisor.New(ctx, supervisor.WithLogger(log))
	loop := dispatch.New(client, engine, runner, dispatch.NewCheckpoint(ckptPath),
		sup, bus, dispOpts, log.With(logx.String("component", "dispatch")))

	ctl := tray.NewController(store, bus, opts.Renderer, cancel,
		log.With(logx.String("component", "tray")))
	if opts.OnControlPlane != nil {
		opts.OnControlPlane(ctl)
	}

	maint, err := startMaintenance(ctx, cfg, store, bus, log)
	if err != nil {
		return err
	}
	defer maint.Stop()

	sup.GoRestart("dispatch.loop", loop.Run)
	sup.GoRestart("config.watch", mgr.Watch)
	sup.Go("tray.controller", ctl.Run)
	sup.Go("config.apply", func(ctx context.Context) error {
		return applyReloads(ctx, mgr, logSvc, loop, runner, bus, log)
	})

	if opts.OnReady != nil {
		opts.OnReady()
	}

	<-ctx.Done()
	log.Info("shutting down", logx.Int64("in_flight", sup.Active()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil && err != context.Canceled {
		log.Warn("shutdown incomplete", logx.Err(err))
		return err
	}
	return nil
}

func openStore(cfg *config.Config, log logx.Logger) (*snooze.Store, error) {
	path := cfg.Storage.Path
	if path == "" {
		var err error
		if path, err = config.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return snooze.Open(snooze.Config{Path: path, BusyTimeout: busy},
		log.With(logx.String("component", "snooze")))
}

func buildPresenter(ctx context.Context, cfg *config.Config, log logx.Logger) (presenter.Presenter, error) {
	switch cfg.Notify.Backend {
	case "", "desktop":
		p, err := desktop.New(ctx, log.With(logx.String("component", "presenter")))
		if err != nil {
			return nil, fmt.Errorf("desktop presenter: %w", err)
		}
		return p, nil
	case "telegram":
		p, err := telegram.New(ctx, telegram.Config{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		}, log.With(logx.String("component", "presenter")))
		if err != nil {
			return nil, fmt.Errorf("telegram presenter: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("notify.backend: unknown backend %q", cfg.Notify.Backend)
	}
}

// startMaintenance schedules expired-snooze cleanup. Default "@hourly".
func startMaintenance(ctx context.Context, cfg *config.Config, store *snooze.Store,
	bus eventbus.Bus, log logx.Logger) (*cron.Cron, error) {
	schedule := cfg.Storage.PruneSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := store.PruneExpired(ctx, time.Now())
		if err != nil {
			log.Warn("snooze prune failed", logx.Err(err))
			return
		}
		if n > 0 {
			log.Info("expired snoozes pruned", logx.Int("count", n))
			bus.Publish(eventbus.Event{Type: eventbus.TypeSnoozeChanged, Data: "prune"})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("storage.prune_schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

// applyReloads pushes committed config changes into the running components.
func applyReloads(ctx context.Context, mgr *config.Manager, logSvc *logx.Service,
	loop *dispatch.Loop, runner *lifecycle.Runner, bus eventbus.Bus, log logx.Logger) error {
	sub := mgr.Subscribe(4)
	defer mgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			logSvc.Apply(logConfig(cfg))
			if opts, err := dispatchOptions(cfg); err != nil {
				log.Warn("reload: dispatch options rejected", logx.Err(err))
			} else {
				loop.UpdateOptions(opts)
			}
			if d, err := config.ParseDurationOrDefault(
				"notify.response_timeout", cfg.Notify.ResponseTimeout, 10*time.Second); err != nil {
				log.Warn("reload: response timeout rejected", logx.Err(err))
			} else {
				runner.SetResponseTimeout(d)
			}
			bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded})
			log.Info("config reloaded")
		}
	}
}

func dispatchOptions(cfg *config.Config) (dispatch.Options, error) {
	poll, err := config.ParseDurationOrDefault(
		"dispatch.poll_interval", cfg.Dispatch.PollInterval, 60*time.Second)
	if err != nil {
		return dispatch.Options{}, err
	}
	pacing, err := config.ParseDurationOrDefault(
		"dispatch.pacing_delay", cfg.Dispatch.PacingDelay, 12*time.Second)
	if err != nil {
		return dispatch.Options{}, err
	}
	return dispatch.Options{
		PollInterval: poll,
		PacingDelay:  pacing,
		MaxInFlight:  cfg.Dispatch.MaxInFlight,
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
