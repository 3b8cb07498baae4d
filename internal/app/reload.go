package app

import (
	"context"
	"strings"

	"promptcron/internal/config"
	"promptcron/internal/eventbus"
	logx "promptcron/pkg/logx"
)

// reloadLoop applies the live sections of each accepted config. Sections
// that need a rebuild are only reported.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(next)
		}
	}
}

func (a *App) applyConfig(next *config.Config) {
	changed, attrs, restart := config.SummarizeConfigChange(a.cfg, next)
	if len(changed) == 0 {
		return
	}
	a.logs.Apply(mapLogConfig(next))
	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("scheduler config not applied", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}
	if pc, err := mapPipelineConfig(next); err != nil {
		a.log.Warn("pipeline config not applied", logx.Err(err))
	} else {
		a.pipe.Apply(pc)
	}
	if err := a.pprof.Reconfigure(context.Background(), mapPprofConfig(next, a.secrets)); err != nil {
		a.log.Warn("pprof reconfigure failed", logx.Err(err))
	}
	a.cfg = next

	fields := append([]logx.Field{logx.Strings("changed", changed)}, attrs...)
	a.log.Info("config reloaded", fields...)
	if len(restart) > 0 {
		a.log.Warn("config change requires restart", logx.String("sections", strings.Join(restart, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: changed})
}
