// Package app wires configuration, sources, digest building, delivery,
// scheduling, and storage into one runnable service.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digestd/internal/config"
	"digestd/internal/delivery"
	"digestd/internal/digest"
	"digestd/internal/eventbus"
	"digestd/internal/runtime/supervisor"
	"digestd/internal/scheduler"
	"digestd/internal/source"
	"digestd/internal/storage"
	logx "digestd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	orch  *source.Orchestrator
	sched *scheduler.Service

	// mu guards the pieces swapped by hot reload.
	mu         sync.Mutex
	dispatcher *delivery.Dispatcher
	opts       digest.Options
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		opts:    mapDigestOptions(cfg),
	}

	// Storage (optional).
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a.orch = source.NewOrchestrator(log.With(logx.String("comp", "collect")), bus)
	regs, err := a.buildRegistrations(cfg)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}
	a.orch.SetRegistrations(regs)

	disp, err := a.buildDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	a.dispatcher = disp

	a.sched = scheduler.New(mapSchedulerConfig(cfg), func(ctx context.Context) {
		if err := a.RunOnce(ctx); err != nil {
			a.log.Error("scheduled run failed", logx.Err(err))
			a.mu.Lock()
			d := a.dispatcher
			a.mu.Unlock()
			d.NotifyFailure(ctx, err)
		}
	}, log.With(logx.String("comp", "scheduler")))
	if err := a.sched.Validate(mapSchedulerConfig(cfg)); err != nil {
		return nil, err
	}

	log.Info("app initialized",
		logx.Any("sources", a.orch.Sources()),
		logx.Any("channels", disp.Channels()),
		logx.Bool("scheduler", cfg.Scheduler.Enabled))
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := validateConfig(cfg); err != nil {
			return err
		}
		return a.sched.Validate(mapSchedulerConfig(cfg))
	})

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(c, last, cfg)
				last = cfg
			}
		}
	})

	// Event trail at debug level; components publish their own outcomes.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	return nil
}

// applyReload applies a validated config, section by section. Storage is
// the one section that cannot change live.
func (a *App) applyReload(ctx context.Context, old, cfg *config.Config) {
	sections := config.ChangedSections(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("applying config reload", logx.Any("changed", sections))

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		case "scheduler":
			if err := a.sched.Apply(mapSchedulerConfig(cfg)); err != nil {
				a.log.Warn("scheduler reload failed; keeping previous", logx.Err(err))
			}
		case "digest":
			a.mu.Lock()
			a.opts = mapDigestOptions(cfg)
			a.mu.Unlock()
		case "sources":
			regs, err := a.buildRegistrations(cfg)
			if err != nil {
				a.log.Warn("sources reload failed; keeping previous", logx.Err(err))
				continue
			}
			if len(regs) == 0 {
				a.log.Warn("sources reload would disable every source; keeping previous")
				continue
			}
			a.orch.SetRegistrations(regs)
			a.log.Info("sources replaced", logx.Any("sources", a.orch.Sources()))
		case "delivery":
			disp, err := a.buildDispatcher(cfg)
			if err != nil {
				a.log.Warn("delivery reload failed; keeping previous", logx.Err(err))
				continue
			}
			a.mu.Lock()
			a.dispatcher = disp
			a.mu.Unlock()
			a.log.Info("delivery channels replaced", logx.Any("channels", disp.Channels()))
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}
}

// Stop shuts components down in dependency order, each under a bounded
// slice of the caller's deadline.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if a.sched != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}

	if a.sup != nil {
		a.sup.Cancel()
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.sup.Wait(waitCtx); err != nil && err != context.DeadlineExceeded {
			a.log.Debug("supervisor drained with error", logx.Err(err))
		}
		cancel()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
