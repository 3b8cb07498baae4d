package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"promptcron/internal/eventbus"
	"promptcron/internal/schedule"
	"promptcron/internal/task/engine"
	logx "promptcron/pkg/logx"
)

// Register arms sc under sc.ID. An existing trigger for the same id is
// disarmed first, under the same lock, so the two never coexist.
// Failures are *RegistrationError.
func (s *Service) Register(sc schedule.Schedule) error {
	id := strings.TrimSpace(sc.ID)
	if id == "" {
		return &RegistrationError{ID: sc.ID, Err: errors.New("id required")}
	}
	spec, sched, err := Build(sc)
	if err != nil {
		return &RegistrationError{ID: id, Err: err}
	}
	e := &entry{sc: sc.Clone(), spec: spec, sched: sched}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.removeLocked(id)
	s.entries[id] = e
	s.order = append(s.order, id)
	s.armLocked(e)

	fields := []logx.Field{logx.String("id", id), logx.String("spec", spec), logx.Bool("replaced", replaced)}
	if sc.SourceFile != "" {
		fields = append(fields, logx.String("source_file", sc.SourceFile))
	}
	if next := nextN(sched, time.Now(), s.cfg.PreviewRuns); len(next) > 0 {
		fields = append(fields, logx.String("next", formatRuns(next)))
	} else {
		fields = append(fields, logx.String("next", "never"))
	}
	s.log.Info("schedule registered", fields...)
	return nil
}

// Unregister disarms id. It reports false when nothing was registered.
func (s *Service) Unregister(id string) bool {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if removed {
		s.log.Info("schedule unregistered", logx.String("id", id))
	}
	return removed
}

// Registered reports whether id currently has a trigger.
func (s *Service) Registered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// NextRuns previews the next n fire times of a registered schedule.
func (s *Service) NextRuns(id string, n int) []time.Time {
	s.mu.Lock()
	e := s.entries[id]
	s.mu.Unlock()
	if e == nil || n <= 0 {
		return nil
	}
	return nextN(e.sched, time.Now(), n)
}

// FireNow enqueues an immediate, out-of-schedule firing of id.
func (s *Service) FireNow(ctx context.Context, id string) error {
	s.mu.Lock()
	e := s.entries[id]
	s.mu.Unlock()
	if e == nil {
		return &RegistrationError{ID: id, Err: ErrNotRegistered}
	}
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Submit(ctx, s.task(e.sc))
}

func (s *Service) removeLocked(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if s.c != nil && e.entryID != 0 {
		s.c.Remove(e.entryID)
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Service) armLocked(e *entry) {
	if s.c == nil || e == nil {
		return
	}
	sc := e.sc
	e.entryID = s.c.Schedule(e.sched, cron.FuncJob(func() { s.trigger(sc) }))
}

// trigger runs on the cron goroutine: it only hands the firing to the engine.
func (s *Service) trigger(sc schedule.Schedule) {
	now := time.Now()
	s.log.Info("schedule fired", logx.String("id", sc.ID))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleFired, Time: now, Data: FiredEvent{ID: sc.ID, At: now}})
	}
	if s.engine == nil {
		return
	}
	if err := s.engine.Enqueue(s.task(sc)); err != nil {
		s.reportEnqueueError(sc.ID, err)
	}
}

func (s *Service) task(sc schedule.Schedule) engine.Task {
	s.mu.Lock()
	timeout := s.cfg.FireTimeout
	s.mu.Unlock()
	fire := s.fire
	return engine.Task{
		Name:    "fire:" + sc.ID,
		Key:     sc.ID,
		Timeout: timeout,
		Overlap: engine.OverlapAllow,
		Run: func(ctx context.Context) error {
			if fire == nil {
				return nil
			}
			return fire(ctx, sc)
		},
	}
}

func formatRuns(ts []time.Time) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format(time.RFC3339))
	}
	return b.String()
}
