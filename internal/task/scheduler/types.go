package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"promptcron/internal/eventbus"
	"promptcron/internal/schedule"
	"promptcron/internal/task/engine"
	logx "promptcron/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	// FireTimeout bounds one firing (all variants). 0 uses the engine default.
	FireTimeout time.Duration
	// PreviewRuns is how many upcoming fire times are logged on registration.
	PreviewRuns int
}

// FireFunc runs one firing of a schedule.
type FireFunc func(ctx context.Context, sc schedule.Schedule) error

// ErrNotRegistered is wrapped by FireNow for unknown ids.
var ErrNotRegistered = errors.New("not registered")

// RegistrationError reports that a schedule could not be turned into a trigger.
type RegistrationError struct {
	ID  string
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register schedule %q: %v", e.ID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

type entry struct {
	sc      schedule.Schedule
	spec    string
	sched   cron.Schedule
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	engine *engine.Service
	fire   FireFunc

	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*entry
	order   []string

	// Enqueue error throttling, keyed by schedule id.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	ID         string    `json:"id"`
	Spec       string    `json:"spec"`
	Next       time.Time `json:"next,omitempty"`
	Prev       time.Time `json:"prev,omitempty"`
	StartDate  time.Time `json:"start_date,omitempty"`
	EndDate    time.Time `json:"end_date,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Schedules []ScheduleInfo `json:"schedules"`
}

// FiredEvent is the payload of schedule.fired.
type FiredEvent struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}
