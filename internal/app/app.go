package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"promptcron/internal/ai"
	"promptcron/internal/config"
	"promptcron/internal/eventbus"
	"promptcron/internal/httpapi"
	"promptcron/internal/loader"
	"promptcron/internal/mailer"
	"promptcron/internal/observability/pprof"
	"promptcron/internal/pipeline"
	"promptcron/internal/registry"
	"promptcron/internal/runtime/supervisor"
	"promptcron/internal/schedule"
	"promptcron/internal/storage"
	"promptcron/internal/task/engine"
	"promptcron/internal/task/scheduler"
	logx "promptcron/pkg/logx"
)

type App struct {
	cfgm    *config.ConfigManager
	cfg     *config.Config
	cfgSub  chan *config.Config
	secrets config.Secrets
	sup     *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	counter *eventbus.Counter

	store  storage.Store
	reg    *registry.Registry
	engine *engine.Service
	sched  *scheduler.Service
	pipe   *pipeline.Pipeline
	ai     ai.Responder
	mail   mailer.Sender
	loader *loader.Loader
	http   *httpapi.Server
	pprof  *pprof.Service

	// schedMu makes a registry mutation and its trigger mirror one step.
	schedMu  sync.Mutex
	register func(schedule.Schedule) error

	notify          func(state string)
	shutdownTimeout time.Duration
	startedAt       time.Time
}

type options struct {
	responder ai.Responder
	sender    mailer.Sender
	notify    func(state string)
}

type Option func(*options)

// WithResponder replaces the configured AI provider.
func WithResponder(r ai.Responder) Option { return func(o *options) { o.responder = r } }

// WithSender replaces the configured SMTP mailer.
func WithSender(s mailer.Sender) Option { return func(o *options) { o.sender = s } }

func withNotify(fn func(string)) Option { return func(o *options) { o.notify = fn } }

func sdNotify(state string) { _, _ = daemon.SdNotify(false, state) }

var _ httpapi.Backend = (*App)(nil)

// New loads the config and constructs every component. Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.notify == nil {
		o.notify = sdNotify
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	secrets := config.SecretsFromEnv()

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger())

	bus := eventbus.New()

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(stCfg, logSvc.Logger())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", stCfg.Driver))
	closeOnErr := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	responder := o.responder
	if responder == nil {
		aiCfg, err := mapAIConfig(cfg, secrets)
		if err != nil {
			return closeOnErr(err)
		}
		responder, err = ai.New(aiCfg, ai.WithLogger(logSvc.Logger()))
		if err != nil {
			return closeOnErr(err)
		}
	}

	sender := o.sender
	if sender == nil {
		mCfg, err := mapMailConfig(cfg, secrets)
		if err != nil {
			return closeOnErr(err)
		}
		m, err := mailer.New(mCfg, logSvc.Logger())
		if err != nil {
			return closeOnErr(err)
		}
		sender = m
	}
	if as, ok := sender.(logx.AlertSender); ok && cfg.Logging.Alert.Enabled {
		logSvc.SetAlertSender(as)
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	eng := engine.New(engCfg, logSvc.Logger().With(logx.String("comp", "taskengine")), bus)

	pCfg, err := mapPipelineConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	pipe := pipeline.New(pCfg, responder, sender, logSvc.Logger(), bus)

	sCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	sched := scheduler.New(sCfg, eng, pipe.Fire, logSvc.Logger().With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		secrets: secrets,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		counter: eventbus.NewCounter(),
		store:   store,
		reg:     registry.New(store, logSvc.Logger()),
		engine:  eng,
		sched:   sched,
		pipe:    pipe,
		ai:      responder,
		mail:    sender,
		notify:  o.notify,
	}
	a.register = sched.Register
	a.pprof = pprof.New(mapPprofConfig(cfg, secrets), logSvc.Logger())

	if lc, enabled, err := mapLoaderConfig(cfg); err != nil {
		return closeOnErr(err)
	} else if enabled {
		a.loader = loader.New(lc, sched, a.reg.Exists, logSvc.Logger(), bus)
	}

	if hc, enabled, err := mapHTTPConfig(cfg); err != nil {
		return closeOnErr(err)
	} else if enabled {
		a.http = httpapi.New(hc, a, logSvc.Logger())
	}

	a.shutdownTimeout, err = config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return closeOnErr(err)
	}
	return a, nil
}

func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start arms persisted schedules and starts every component.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.startedAt = time.Now()

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(256)
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
					a.counter.Observe(e)
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// The engine outlives the supervisor so Stop can drain queued firings.
	a.engine.Start(context.WithoutCancel(a.sup.Context()))

	armed, err := a.armPersisted(a.sup.Context())
	if err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched.Start(a.sup.Context())
	a.log.Info("persisted schedules armed", logx.Int("count", armed))

	if a.loader != nil {
		a.sup.GoRestart("loader", a.loader.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.sup.Cancel()
			return fmt.Errorf("http listen: %w", err)
		}
	}

	// Profiling is optional; a refused or failed bind never stops the app.
	if err := a.pprof.Start(); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	a.cfgSub = a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, a.cfgSub) })
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// armPersisted registers every stored schedule. A schedule that cannot be
// armed is logged and left persisted so the operator can delete it.
func (a *App) armPersisted(ctx context.Context) (int, error) {
	all, err := a.reg.List(ctx)
	if err != nil {
		return 0, err
	}
	armed := 0
	for _, sc := range all {
		if err := a.register(sc); err != nil {
			a.log.Error("persisted schedule not armed", logx.String("id", sc.ID), logx.Err(err))
			continue
		}
		armed++
	}
	return armed, nil
}

// Stop shuts down in order: HTTP, loader, scheduler, engine (drain), storage.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return a.closeResources()
	}
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping")

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- fn(stepCtx) }()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", a.shutdownTimeout, func(c context.Context) error {
		if a.http == nil {
			return nil
		}
		return a.http.Shutdown(c)
	})
	step("pprof", time.Second, a.pprof.Stop)
	// Cancelling the supervisor stops the loader, config watch and event loop.
	a.sup.Cancel()
	step("loader", time.Second, func(context.Context) error {
		if a.loader != nil {
			a.loader.UnregisterAll()
		}
		return nil
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", a.shutdownTimeout, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.cfgm.Unsubscribe(a.cfgSub)
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if c, ok := a.mail.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// NextRuns previews upcoming fire times of an armed schedule.
func (a *App) NextRuns(id string, n int) []time.Time { return a.sched.NextRuns(id, n) }

// RunSchedule fires id now, outside its trigger.
func (a *App) RunSchedule(ctx context.Context, id string) error {
	return a.sched.FireNow(ctx, strings.TrimSpace(id))
}
