// Package app wires configuration, logging, the task store, the sync engine,
// the refresh scheduler, and the HTTP API into one daemon lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"sponsorsync/internal/audit"
	"sponsorsync/internal/config"
	"sponsorsync/internal/eventbus"
	"sponsorsync/internal/httpapi"
	"sponsorsync/internal/runtime/supervisor"
	"sponsorsync/internal/scheduler"
	"sponsorsync/internal/source"
	"sponsorsync/internal/storage"
	"sponsorsync/internal/store"
	"sponsorsync/internal/syncer"
	logx "sponsorsync/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  *store.Store
	engine *syncer.Engine
	sched  *scheduler.Service
	api    *httpapi.Service

	ledger storage.Store
	rec    *audit.Recorder
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
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
	st := store.New()

	// Audit ledger (optional).
	var ledger storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		ledger, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		log.Info("audit ledger enabled", logx.String("driver", sc.Driver))
	}

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := mapFetchTimeout(cfg)
	if err != nil {
		return nil, err
	}
	engine := syncer.New(st, adapters, log.With(logx.String("comp", "syncer")), bus, fetchTimeout)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, engine, st, log.With(logx.String("comp", "scheduler")))

	apiCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(apiCfg, st, engine, log.With(logx.String("comp", "httpapi")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  st,
		engine: engine,
		sched:  sched,
		api:    api,
		ledger: ledger,
		rec:    audit.New(bus, ledger, log.With(logx.String("comp", "audit"))),
	}, nil
}

// buildAdapters resolves the configured source list into adapters, in merge
// order. The google_calendar source is a fixture unless live mode is on.
func buildAdapters(ctx context.Context, cfg *config.Config) ([]source.Adapter, error) {
	names := sourceNames(cfg)
	adapters := make([]source.Adapter, 0, len(names))
	for _, name := range names {
		switch name {
		case "salesforce":
			adapters = append(adapters, source.Salesforce())
		case "asana":
			adapters = append(adapters, source.Asana())
		case "google_calendar":
			gcCfg, live, err := mapGoogleCalendarConfig(cfg)
			if err != nil {
				return nil, err
			}
			if !live {
				adapters = append(adapters, source.GoogleCalendarFixture())
				continue
			}
			ad, err := source.NewGoogleCalendar(ctx, gcCfg)
			if err != nil {
				return nil, fmt.Errorf("google calendar source: %w", err)
			}
			adapters = append(adapters, ad)
		default:
			return nil, fmt.Errorf("sync.sources: unknown source %q", name)
		}
	}
	return adapters, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapServerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapFetchTimeout(cfg); err != nil {
			return err
		}
		if _, _, err := mapGoogleCalendarConfig(cfg); err != nil {
			return err
		}
		for _, name := range sourceNames(cfg) {
			switch name {
			case "salesforce", "asana", "google_calendar":
			default:
				return fmt.Errorf("sync.sources: unknown source %q", name)
			}
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	a.rec.Start(a.sup.Context())
	a.api.Start(a.sup.Context())
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	// Pre-registered sponsors get an initial sync in the background so the
	// store is warm before the first scheduled tick.
	if sponsors := a.cfgm.Get().Sync.Sponsors; len(sponsors) > 0 {
		a.sup.Go0("sync.bootstrap", func(c context.Context) {
			for _, id := range sponsors {
				if c.Err() != nil {
					return
				}
				if _, err := a.engine.SyncSponsor(c, id, syncer.TriggerScheduled); err != nil {
					a.log.Warn("bootstrap sync failed", logx.String("sponsor", id), logx.Err(err))
				}
			}
		})
	}

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into the running services.
// Source list, fetch timeout, and storage changes need a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if schedCfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(ctx, schedCfg)
	}

	if apiCfg, err := mapServerConfig(cfg); err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
	} else {
		a.api.Reconfigure(ctx, apiCfg)
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("httpapi", 3*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("audit", 2*time.Second, func(context.Context) error { a.rec.Stop(); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.ledger != nil {
			return a.ledger.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
