package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestMatchers(t *testing.T) {
	t.Parallel()

	if !Base("/etc/promptcron/config.yaml")("CONFIG.yaml") {
		t.Fatal("Base should match case-insensitively")
	}
	if Base("config.yaml")("other.yaml") {
		t.Fatal("Base matched a different file")
	}
	m := Exts(".yaml", ".yml", ".json")
	for name, want := range map[string]bool{"a.yaml": true, "b.YML": true, "c.json": true, "d.txt": false, "e": false} {
		if got := m(name); got != want {
			t.Fatalf("Exts(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRunDebouncesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls atomic.Int32
	fired := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Dir: dir, Match: Exts(".yaml"), Debounce: 50 * time.Millisecond}, func() {
			calls.Add(1)
			fired <- struct{}{}
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(dir, "a.yaml")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(p, []byte("schedules: []\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange was not called")
	}
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("onChange called %d times, want 1 (debounced)", n)
	}
}
