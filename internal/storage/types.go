package storage

import (
	"context"
	"errors"
	"time"

	"promptcron/internal/schedule"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values: "file" (default), "csv", "sqlite", "postgres", "redis".
// Path is used by file/csv/sqlite; DSN by postgres/redis.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Key         string        // redis key prefix; default "promptcron:schedules"
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence collaborator of the registry: full read, full
// write and existence check over an ordered collection.
type Store interface {
	Load(ctx context.Context) ([]schedule.Schedule, error)
	Save(ctx context.Context, all []schedule.Schedule) error
	Exists(ctx context.Context, id string) (bool, error)
	Close() error
}

// persisted strips fields that only live in memory.
func persisted(s schedule.Schedule) schedule.Schedule {
	cp := s.Clone()
	cp.SourceFile = ""
	return cp
}
