package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"promptcron/internal/eventbus"
	"promptcron/internal/task/engine"
	logx "promptcron/pkg/logx"
)

func New(cfg Config, eng *engine.Service, fire FireFunc, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PreviewRuns <= 0 {
		cfg.PreviewRuns = 3
	}
	return &Service{
		cfg:         cfg,
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		engine:      eng,
		fire:        fire,
		parser:      specParser,
		entries:     map[string]*entry{},
		lastEnqWarn: map[string]time.Time{},
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	if cfg.PreviewRuns <= 0 {
		cfg.PreviewRuns = 3
	}
	s.cfg = cfg
	s.mu.Unlock()
}

// Start creates the cron instance, arms every registered schedule and starts
// triggering. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	for _, id := range s.order {
		s.armLocked(s.entries[id])
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("schedules", len(s.order)))
}

// Stop disarms all triggers and waits for running cron callbacks to return.
// Registered schedules are kept and re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, e := range s.entries {
		e.entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			s.log.Warn("stop timed out waiting for cron callbacks")
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
