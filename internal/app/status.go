package app

import (
	"time"

	"promptcron/internal/eventbus"
	"promptcron/internal/runtime/supervisor"
	"promptcron/internal/task/engine"
	"promptcron/internal/task/scheduler"
)

type Status struct {
	StartedAt  time.Time            `json:"startedAt"`
	Uptime     string               `json:"uptime"`
	Scheduler  scheduler.Snapshot   `json:"scheduler"`
	TaskEngine engine.Snapshot      `json:"taskEngine"`
	Declared   []string             `json:"declared"`
	Events     []eventbus.CountStat `json:"events"`
	Goroutines *supervisor.Snapshot `json:"goroutines,omitempty"`
}

// Status is served by GET /api/status.
func (a *App) Status() any { return a.status() }

func (a *App) status() Status {
	st := Status{
		StartedAt:  a.startedAt,
		Scheduler:  a.sched.Snapshot(),
		TaskEngine: a.engine.Snapshot(),
		Declared:   []string{},
		Events:     a.counter.Snapshot(),
	}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Round(time.Second).String()
	}
	if a.loader != nil {
		for _, sc := range a.loader.Schedules() {
			st.Declared = append(st.Declared, sc.ID)
		}
	}
	if a.sup != nil {
		snap := a.sup.Snapshot()
		st.Goroutines = &snap
	}
	return st
}
