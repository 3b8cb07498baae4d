package eventbus

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the engine.
const (
	ScheduleCreated = "schedule.created"
	ScheduleDeleted = "schedule.deleted"
	ScheduleLoaded  = "schedule.loaded"
	ScheduleFired   = "schedule.fired"
	VariantSent     = "variant.sent"
	VariantFailed   = "variant.failed"
	FiringDone      = "firing.completed"
	TaskStarted     = "task.started"
	TaskFinished    = "task.finished"
	TaskFailed      = "task.failed"
	TaskDropped     = "task.dropped"
	ConfigReloaded  = "config.reloaded"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Holding the write lock guarantees no Publish is mid-send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Counter tallies events by type. Feed it from a subscription loop.
type Counter struct {
	mu     sync.Mutex
	counts map[string]uint64
	last   map[string]time.Time
}

func NewCounter() *Counter {
	return &Counter{counts: map[string]uint64{}, last: map[string]time.Time{}}
}

func (c *Counter) Observe(e Event) {
	c.mu.Lock()
	c.counts[e.Type]++
	c.last[e.Type] = e.Time
	c.mu.Unlock()
}

// CountStat is one row of Counter.Snapshot.
type CountStat struct {
	Type  string    `json:"type"`
	Count uint64    `json:"count"`
	Last  time.Time `json:"last"`
}

func (c *Counter) Snapshot() []CountStat {
	c.mu.Lock()
	out := make([]CountStat, 0, len(c.counts))
	for t, n := range c.counts {
		out = append(out, CountStat{Type: t, Count: n, Last: c.last[t]})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
