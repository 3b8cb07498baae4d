package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

type fakeRegistrar struct {
	mu        sync.Mutex
	armed     map[string]schedule.Schedule
	registers int
	failFor   map[string]bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{armed: map[string]schedule.Schedule{}, failFor: map[string]bool{}}
}

func (f *fakeRegistrar) Register(sc schedule.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[sc.ID] {
		return errors.New("bad trigger")
	}
	f.registers++
	f.armed[sc.ID] = sc
	return nil
}

func (f *fakeRegistrar) Unregister(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[id]
	delete(f.armed, id)
	return ok
}

func (f *fakeRegistrar) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.armed))
	for id := range f.armed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

const weatherYAML = `schedules:
  - id: weather
    emails: [ops@example.com]
    prompt: "Weather in {{city}}?"
    email_title: "Weather {{city}}"
    prompt_variables:
      city: [Paris, Tokyo]
    schedule:
      type: daily
      time: "09:00"
      timezone: Europe/Paris
`

const digestJSON = `{"schedules":[{"id":"digest","emails":["a@example.com"],"prompt":"News digest","email_title":"Digest","prompt_variables":{},"schedule":{"type":"weekly","time":"7:30","timezone":"UTC","days":["Monday","friday"]},"start_date":"2025-01-01"}]}`

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSyncRegistersAndDiffs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "weather.yaml", weatherYAML)
	write(t, dir, "digest.json", digestJSON)
	write(t, dir, "notes.txt", "ignored")

	reg := newFakeRegistrar()
	l := New(Config{Dir: dir}, reg, nil, logx.Nop(), nil)
	ctx := context.Background()

	res, err := l.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Registered != 2 || res.Invalid != 0 {
		t.Fatalf("first sync = %+v", res)
	}
	if got := strings.Join(reg.ids(), ","); got != "digest,weather" {
		t.Fatalf("armed = %s", got)
	}
	if sc := reg.armed["digest"]; sc.SourceFile != "digest.json" || sc.Schedule.Time != "07:30" || sc.StartDate == nil {
		t.Fatalf("digest not normalised: %+v", sc)
	}

	// unchanged files are not re-registered
	res, _ = l.Sync(ctx)
	if res.Unchanged != 2 || res.Registered != 0 || reg.registers != 2 {
		t.Fatalf("second sync = %+v (registers=%d)", res, reg.registers)
	}

	// edit one, remove the other
	write(t, dir, "weather.yaml", strings.Replace(weatherYAML, `"09:00"`, `"10:15"`, 1))
	if err := os.Remove(filepath.Join(dir, "digest.json")); err != nil {
		t.Fatal(err)
	}
	res, _ = l.Sync(ctx)
	if res.Registered != 1 || res.Unregistered != 1 {
		t.Fatalf("third sync = %+v", res)
	}
	if got := strings.Join(reg.ids(), ","); got != "weather" || reg.armed["weather"].Schedule.Time != "10:15" {
		t.Fatalf("armed after edit = %s %+v", got, reg.armed["weather"])
	}
	if !l.Has("weather") || l.Has("digest") || len(l.Schedules()) != 1 {
		t.Fatal("loaded set not updated")
	}
}

func TestSyncSkipsInvalidAndReserved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "a.yaml", weatherYAML+`  - id: broken
    emails: [ops@example.com]
    prompt: "Hi {{missing}}"
    email_title: "x"
    schedule: {type: daily, time: "25:00", timezone: UTC}
  - id: weather
    emails: [dup@example.com]
    prompt: "dup"
    email_title: "dup"
    schedule: {type: daily, time: "09:00", timezone: UTC}
`)
	write(t, dir, "b.json", digestJSON)
	write(t, dir, "c.yaml", "schedules:\n  - emails: [x@example.com]\n")
	write(t, dir, "d.yaml", "unknown_key: 1\n")

	reg := newFakeRegistrar()
	reserved := func(_ context.Context, id string) (bool, error) { return id == "digest", nil }
	l := New(Config{Dir: dir}, reg, reserved, logx.Nop(), nil)

	res, err := l.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// broken + duplicate weather + c.yaml + d.yaml
	if res.Registered != 1 || res.Skipped != 1 || res.Invalid != 4 {
		t.Fatalf("sync = %+v", res)
	}
	if got := strings.Join(reg.ids(), ","); got != "weather" {
		t.Fatalf("armed = %s", got)
	}
	if reg.armed["weather"].Emails[0] != "ops@example.com" {
		t.Fatal("first occurrence of a duplicate id should win")
	}
}

func TestSyncRegistrationFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "w.yaml", weatherYAML)
	reg := newFakeRegistrar()
	reg.failFor["weather"] = true

	l := New(Config{Dir: dir}, reg, nil, logx.Nop(), nil)
	res, err := l.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Invalid != 1 || l.Has("weather") {
		t.Fatalf("sync = %+v", res)
	}
}

func TestSyncMissingDir(t *testing.T) {
	t.Parallel()

	l := New(Config{Dir: filepath.Join(t.TempDir(), "nope")}, newFakeRegistrar(), nil, logx.Nop(), nil)
	if _, err := l.Sync(context.Background()); err != nil {
		t.Fatalf("missing dir should be empty, got %v", err)
	}
}

func TestUnregisterAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "w.yaml", weatherYAML)
	reg := newFakeRegistrar()
	l := New(Config{Dir: dir}, reg, nil, logx.Nop(), nil)
	if _, err := l.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.UnregisterAll()
	if len(reg.ids()) != 0 || l.Has("weather") {
		t.Fatal("UnregisterAll left schedules armed")
	}
}
