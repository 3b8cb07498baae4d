package app

import (
	"context"
	"errors"
	"strings"

	"promptcron/internal/eventbus"
	"promptcron/internal/registry"
	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// ListSchedules returns the persisted schedules in creation order.
func (a *App) ListSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	return a.reg.List(ctx)
}

// CreateSchedule validates, persists and arms a schedule. If arming fails
// the record is removed again so storage never holds an unarmed schedule.
func (a *App) CreateSchedule(ctx context.Context, in schedule.Input) (schedule.Schedule, error) {
	a.schedMu.Lock()
	defer a.schedMu.Unlock()

	id := strings.TrimSpace(in.ID)
	if a.loader != nil && a.loader.Has(id) {
		return schedule.Schedule{}, &schedule.ValidationError{
			Field:  "id",
			Reason: "declared by a schedule file",
			Err:    registry.ErrDuplicate,
		}
	}

	sc, err := a.reg.Create(ctx, in)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if err := a.register(sc); err != nil {
		if rmErr := a.reg.Remove(ctx, sc.ID); rmErr != nil {
			a.log.Error("rollback failed", logx.String("id", sc.ID), logx.Err(rmErr))
			return schedule.Schedule{}, errors.Join(err, rmErr)
		}
		return schedule.Schedule{}, err
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ScheduleCreated, Data: sc.ID})
	a.log.Info("schedule created", logx.String("id", sc.ID), logx.Int("recipients", len(sc.Emails)))
	return sc, nil
}

// DeleteSchedule disarms and removes id. It reports false when id is unknown.
func (a *App) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	a.schedMu.Lock()
	defer a.schedMu.Unlock()

	ok, err := a.reg.Delete(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	a.sched.Unregister(id)
	a.bus.Publish(eventbus.Event{Type: eventbus.ScheduleDeleted, Data: id})
	a.log.Info("schedule deleted", logx.String("id", id))
	return true, nil
}
