// Package loader registers schedules declared in a directory of YAML/JSON
// files. Declared schedules are armed in the trigger engine but never
// persisted in the registry.
//
// File shape:
//
//	schedules:
//	  - id: weather
//	    emails: [ops@example.com]
//	    prompt: "Weather in {{city}}?"
//	    email_title: "Weather {{city}}"
//	    prompt_variables: {city: [Paris, Tokyo]}
//	    schedule: {type: daily, time: "09:00", timezone: Europe/Paris}
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"promptcron/internal/config"
	"promptcron/internal/eventbus"
	"promptcron/internal/fswatch"
	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

var exts = []string{".yaml", ".yml", ".json"}

// Registrar is the trigger engine side of the loader.
type Registrar interface {
	Register(sc schedule.Schedule) error
	Unregister(id string) bool
}

// ReservedFunc reports whether id belongs to the persisted registry.
type ReservedFunc func(ctx context.Context, id string) (bool, error)

type Config struct {
	Dir      string
	Watch    bool
	Debounce time.Duration
}

// Result summarises one Sync.
type Result struct {
	Registered   int
	Unregistered int
	Unchanged    int
	Invalid      int
	Skipped      int
}

type loaded struct {
	sc   schedule.Schedule
	hash uint64
}

type Loader struct {
	cfg      Config
	reg      Registrar
	reserved ReservedFunc
	log      logx.Logger
	bus      eventbus.Bus

	syncMu sync.Mutex // serializes Sync

	mu     sync.RWMutex
	loaded map[string]loaded
}

func New(cfg Config, reg Registrar, reserved ReservedFunc, log logx.Logger, bus eventbus.Bus) *Loader {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{
		cfg:      cfg,
		reg:      reg,
		reserved: reserved,
		log:      log.With(logx.String("comp", "loader"), logx.String("dir", cfg.Dir)),
		bus:      bus,
		loaded:   map[string]loaded{},
	}
}

// Run syncs once, then (when watching) re-syncs on every change until ctx is done.
func (l *Loader) Run(ctx context.Context) error {
	if _, err := l.Sync(ctx); err != nil {
		l.log.Warn("initial schedule load failed", logx.Err(err))
	}
	if !l.cfg.Watch {
		<-ctx.Done()
		return nil
	}
	return fswatch.Run(ctx, fswatch.Options{
		Dir:      l.cfg.Dir,
		Match:    fswatch.Exts(exts...),
		Debounce: l.cfg.Debounce,
		Log:      l.log,
	}, func() {
		if _, err := l.Sync(ctx); err != nil {
			l.log.Warn("schedule reload failed", logx.Err(err))
		}
	})
}

// Sync reads the directory and reconciles the trigger engine with it:
// new or changed schedules are (re)registered, vanished ones unregistered.
func (l *Loader) Sync(ctx context.Context) (Result, error) {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()

	var res Result
	want, invalid, err := l.readDir()
	if err != nil {
		return res, err
	}
	res.Invalid = invalid

	l.mu.RLock()
	prev := make(map[string]loaded, len(l.loaded))
	for id, e := range l.loaded {
		prev[id] = e
	}
	l.mu.RUnlock()

	next := make(map[string]loaded, len(want))
	for _, sc := range want {
		if l.reserved != nil {
			taken, err := l.reserved(ctx, sc.ID)
			if err != nil {
				return res, fmt.Errorf("check registry for %q: %w", sc.ID, err)
			}
			if taken {
				l.log.Warn("declared schedule id is used by the registry; skipped",
					logx.String("id", sc.ID), logx.String("source_file", sc.SourceFile))
				res.Skipped++
				continue
			}
		}

		h := hashSchedule(sc)
		if old, ok := prev[sc.ID]; ok && old.hash == h {
			next[sc.ID] = old
			res.Unchanged++
			continue
		}
		if err := l.reg.Register(sc); err != nil {
			l.log.Error("declared schedule not registered",
				logx.String("id", sc.ID), logx.String("source_file", sc.SourceFile), logx.Err(err))
			res.Invalid++
			continue
		}
		next[sc.ID] = loaded{sc: sc, hash: h}
		res.Registered++
		l.publish(sc)
	}

	for id := range prev {
		if _, ok := next[id]; ok {
			continue
		}
		if l.reg.Unregister(id) {
			res.Unregistered++
		}
	}

	l.mu.Lock()
	l.loaded = next
	l.mu.Unlock()

	l.log.Info("declared schedules synced",
		logx.Int("registered", res.Registered),
		logx.Int("unregistered", res.Unregistered),
		logx.Int("unchanged", res.Unchanged),
		logx.Int("invalid", res.Invalid),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Has reports whether id is a currently loaded declared schedule.
func (l *Loader) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.loaded[id]
	return ok
}

// Schedules returns the loaded schedules sorted by id.
func (l *Loader) Schedules() []schedule.Schedule {
	l.mu.RLock()
	out := make([]schedule.Schedule, 0, len(l.loaded))
	for _, e := range l.loaded {
		out = append(out, e.sc.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnregisterAll disarms every loaded schedule. Used on shutdown.
func (l *Loader) UnregisterAll() {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.loaded {
		l.reg.Unregister(id)
	}
	l.loaded = map[string]loaded{}
}

// readDir returns valid schedules in file-name order and the number of
// rejected records. Duplicate ids keep the first occurrence.
func (l *Loader) readDir() ([]schedule.Schedule, int, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var (
		out     []schedule.Schedule
		invalid int
		seen    = map[string]string{}
	)
	for _, de := range entries {
		if de.IsDir() || !fswatch.Exts(exts...)(de.Name()) || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		path := filepath.Join(l.cfg.Dir, de.Name())
		inputs, err := ReadFile(path)
		if err != nil {
			l.log.Warn("schedule file rejected", logx.String("file", de.Name()), logx.Err(err))
			invalid++
			continue
		}
		for i, in := range inputs {
			sc, err := schedule.Validate(in)
			if err != nil {
				l.log.Warn("declared schedule invalid",
					logx.String("file", de.Name()), logx.Int("index", i), logx.String("id", in.ID), logx.Err(err))
				invalid++
				continue
			}
			if first, dup := seen[sc.ID]; dup {
				l.log.Warn("duplicate declared schedule id; keeping first",
					logx.String("id", sc.ID), logx.String("file", de.Name()), logx.String("first", first))
				invalid++
				continue
			}
			seen[sc.ID] = de.Name()
			sc.SourceFile = de.Name()
			out = append(out, sc)
		}
	}
	return out, invalid, nil
}

type fileDoc struct {
	Schedules []schedule.Input `json:"schedules"`
}

// ReadFile strictly decodes one schedule file. Records must carry an id.
func ReadFile(path string) ([]schedule.Input, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	jb, err := config.CoerceToJSON(path, b)
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("trailing data")
	}
	for i, in := range doc.Schedules {
		if strings.TrimSpace(in.ID) == "" {
			return nil, fmt.Errorf("schedules[%d]: id is required", i)
		}
	}
	return doc.Schedules, nil
}

func hashSchedule(sc schedule.Schedule) uint64 {
	b, _ := json.Marshal(sc)
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (l *Loader) publish(sc schedule.Schedule) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: eventbus.ScheduleLoaded, Data: sc.ID})
}
