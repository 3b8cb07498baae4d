// Package registry is the durable collection of schedules.
//
// It validates and persists; mirroring changes into the trigger engine is the
// caller's job. Every mutation is a full read-modify-write of the store under
// an exclusive lock, so concurrent creates can never drop each other's writes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"promptcron/internal/schedule"
	"promptcron/internal/storage"
	logx "promptcron/pkg/logx"
)

var (
	ErrNotFound  = errors.New("schedule not found")
	ErrDuplicate = errors.New("schedule id already exists")
)

type Registry struct {
	mu    sync.RWMutex
	store storage.Store
	log   logx.Logger

	newID func() string
}

func New(store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store: store,
		log:   log.With(logx.String("comp", "registry")),
		newID: func() string { return uuid.NewString() },
	}
}

// List returns all schedules in storage order.
func (r *Registry) List(ctx context.Context) ([]schedule.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	return all, nil
}

// Exists reports whether id is persisted.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Exists(ctx, id)
}

// Create validates in, assigns an id when missing and appends the record.
// Validation failures are *schedule.ValidationError; a duplicate id is a
// ValidationError on field "id" wrapping ErrDuplicate. Nothing is written on
// failure.
func (r *Registry) Create(ctx context.Context, in schedule.Input) (schedule.Schedule, error) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = r.newID()
	}
	sc, err := schedule.Validate(in)
	if err != nil {
		return schedule.Schedule{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dup, err := r.store.Exists(ctx, sc.ID)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("check schedule id: %w", err)
	}
	if dup {
		return schedule.Schedule{}, &schedule.ValidationError{
			Field:  "id",
			Reason: fmt.Sprintf("%q already exists", sc.ID),
			Err:    ErrDuplicate,
		}
	}
	all, err := r.store.Load(ctx)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("load schedules: %w", err)
	}
	next := append(all[:len(all):len(all)], sc)
	if err := r.store.Save(ctx, next); err != nil {
		return schedule.Schedule{}, fmt.Errorf("save schedules: %w", err)
	}
	r.log.Info("schedule created", logx.String("id", sc.ID), logx.String("type", string(sc.Schedule.Type)))
	return sc.Clone(), nil
}

// Delete removes id. It reports false (and leaves the store untouched) when
// no such schedule exists.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load schedules: %w", err)
	}
	next := make([]schedule.Schedule, 0, len(all))
	for _, sc := range all {
		if sc.ID != id {
			next = append(next, sc)
		}
	}
	if len(next) == len(all) {
		return false, nil
	}
	if err := r.store.Save(ctx, next); err != nil {
		return false, fmt.Errorf("save schedules: %w", err)
	}
	r.log.Info("schedule deleted", logx.String("id", id))
	return true, nil
}

// Remove is Delete in error form: ErrNotFound when id is absent.
func (r *Registry) Remove(ctx context.Context, id string) error {
	ok, err := r.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
