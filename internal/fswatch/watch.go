// Package fswatch watches one directory with fsnotify and calls back,
// debounced, when a matching entry changes.
//
// fsnotify can get into a bad state with some editors and platforms (the
// watcher stops delivering events or closes its channels). Run recreates the
// watcher with a jittered exponential backoff until ctx is done.
package fswatch

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "promptcron/pkg/logx"
)

const (
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
	defaultDebounce    = 250 * time.Millisecond
)

type Options struct {
	Dir string
	// Match filters by base name. nil matches everything in Dir.
	Match    func(base string) bool
	Debounce time.Duration
	Log      logx.Logger
}

// Base returns a Match func for a single file name (case-insensitive).
func Base(name string) func(string) bool {
	name = filepath.Base(name)
	return func(base string) bool { return strings.EqualFold(base, name) }
}

// Exts returns a Match func accepting the given extensions (".yaml", ...).
func Exts(exts ...string) func(string) bool {
	return func(base string) bool {
		ext := strings.ToLower(filepath.Ext(base))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

// Run blocks until ctx is done. onChange runs on a timer goroutine; calls are
// serialized.
func Run(ctx context.Context, opts Options, onChange func()) error {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("dir", opts.Dir))
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	match := opts.Match
	if match == nil {
		match = func(string) bool { return true }
	}

	d := &debouncer{wait: opts.Debounce, fn: onChange}
	defer d.stop()

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sleep := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn("watch init failed", logx.Err(err))
			if !sleep() {
				return nil
			}
			continue
		}
		if err := w.Add(opts.Dir); err != nil {
			_ = w.Close()
			log.Warn("watch add failed", logx.Err(err))
			if !sleep() {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		log.Debug("watcher started")

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if !match(filepath.Base(ev.Name)) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					log.Debug("change detected", logx.String("file", filepath.Base(ev.Name)), logx.String("op", ev.Op.String()))
					d.trigger()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				msg := strings.ToLower(err.Error())
				// Overflow means events were missed; reload once and keep going.
				if strings.Contains(msg, "overflow") {
					log.Warn("watch overflow; forcing reload", logx.Err(err))
					d.trigger()
					continue
				}
				log.Warn("watch error", logx.Err(err))
				if strings.Contains(msg, "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("watcher stopped; restarting", logx.Duration("backoff", backoff))
		if !sleep() {
			return nil
		}
	}
}

type debouncer struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	running sync.Mutex
	stopped bool
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() {
		d.running.Lock()
		defer d.running.Unlock()
		d.fn()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
