// Package app is the composition root: it wires config, logging, the task
// store, the dispatcher and the scheduler into one process.
package app

import (
	"context"
	"sync"

	"chimed/internal/config"
	"chimed/internal/dispatch"
	"chimed/internal/scheduler"
	"chimed/internal/store"
	logx "chimed/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store store.Store
	disp  *dispatch.Dispatcher
	sched *scheduler.Service

	mu        sync.Mutex
	started   bool
	watchStop context.CancelFunc
	unsubLog  dispatch.Unsubscribe
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", driverName(stCfg)))

	disp := dispatch.New(mapDispatchConfig(cfg), log.With(logx.String("comp", "dispatch")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, st, disp, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: st,
		disp:  disp,
		sched: sched,
	}, nil
}

// Scheduler exposes the public task operations (create/pause/snooze/...).
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Dispatcher exposes listener registration for notification consumers.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true

	// Built-in listener: every trigger leaves a log line even with no
	// notification frontend attached.
	a.unsubLog = a.disp.OnTriggered(func(ev dispatch.Event) {
		a.log.Info("reminder triggered",
			logx.String("task_id", ev.TaskID.String()),
			logx.String("task", ev.Name),
			logx.Time("scheduled", ev.Scheduled),
			logx.Bool("snoozed", ev.Snoozed),
			logx.Bool("sound", ev.Alert.Sound),
		)
	})

	if a.sched.Enabled() {
		a.sched.Start(ctx)
	} else {
		a.log.Warn("scheduler disabled by config; reminders will not fire")
	}

	// Config hot-reload: re-apply scheduler/logging knobs on change.
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchStop = cancel
	updates := a.cfgm.Subscribe(4)
	go func() { _ = a.cfgm.Watch(watchCtx) }()
	go func() {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(ctx, cfg)
			}
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.watchStop
	a.watchStop = nil
	unsub := a.unsubLog
	a.unsubLog = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.sched.Stop(ctx)
	a.disp.Close()
	if unsub != nil {
		unsub()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	_ = a.logs.Close()
	a.log.Info("app stopped")
	return nil
}

// applyConfig pushes a reloaded config into the live services. Storage
// driver changes need a restart; everything else applies in place.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("config reload: bad scheduler section", logx.Err(err))
		return
	}
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(schedCfg)
	switch {
	case schedCfg.Enabled && !wasEnabled:
		a.sched.Start(ctx)
	case !schedCfg.Enabled && wasEnabled:
		a.sched.Stop(ctx)
	}
	a.log.Info("config reloaded")
}

func driverName(cfg store.Config) string {
	if cfg.Driver == "" {
		return "memory"
	}
	return cfg.Driver
}
