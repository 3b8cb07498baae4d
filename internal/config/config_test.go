package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestManager(path string) *ConfigManager {
	m := NewConfigManager(path)
	m.SetEnvOverlay(nil)
	return m
}

func TestLoadYAMLAndJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yml := writeFile(t, dir, "config.yaml", `
http:
  port: 9090
logging:
  level: debug
task_engine:
  workers: 8
  default_timeout: 2m
storage:
  driver: sqlite
loader:
  enabled: true
`)
	js := writeFile(t, dir, "config.json", `{"http":{"port":9090},"logging":{"level":"debug","console":false,"file":{"enabled":false,"path":""},"alert":{"enabled":false}},"task_engine":{"workers":8,"default_timeout":"2m"},"storage":{"driver":"sqlite"},"loader":{"enabled":true}}`)

	for _, p := range []string{yml, js} {
		cfg, err := newTestManager(p).Load()
		if err != nil {
			t.Fatalf("%s: %v", filepath.Base(p), err)
		}
		if cfg.HTTP.Port != 9090 || cfg.TaskEngine.Workers != 8 || cfg.Logging.Level != "debug" {
			t.Fatalf("%s: unexpected values %+v", filepath.Base(p), cfg)
		}
		if cfg.Storage.Path != "data/promptcron.db" || cfg.Loader.Dir != "schedules" || cfg.HTTP.Host != "0.0.0.0" {
			t.Fatalf("%s: defaults not applied: %+v", filepath.Base(p), cfg)
		}
		if d, _ := ParseDurationField("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout); d != 2*time.Minute {
			t.Fatalf("%s: default_timeout = %v", filepath.Base(p), d)
		}
	}
}

func TestLoadRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]string{
		"unknown.json":  `{"http":{"prot":1}}`,
		"trailing.json": `{"http":{}}{"http":{}}`,
		"unknown.yaml":  "telegram:\n  token: x\n",
		"badlevel.yaml": "logging:\n  level: loud\n",
		"baddur.yaml":   "task_engine:\n  default_timeout: soon\n",
		"driver.yaml":   "storage:\n  driver: mongo\n",
	}
	for name, body := range tests {
		p := writeFile(t, dir, name, body)
		if _, err := newTestManager(p).Load(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := newTestManager(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != 8000 || cfg.Storage.Driver != "file" || cfg.Pipeline.Concurrency != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestYAMLUnquotedDates(t *testing.T) {
	t.Parallel()

	out, err := CoerceToJSON("s.yaml", []byte("start_date: 2025-01-01\nend_date: 2025-02-01T10:00:00Z\ntime: \"09:00\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, `"start_date":"2025-01-01"`) || !strings.Contains(s, `"end_date":"2025-02-01T10:00:00Z"`) {
		t.Fatalf("unexpected json %s", s)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8181")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("PROMPTCRON_STORAGE_DSN", "postgres://x")

	var cfg Config
	ApplyEnv(&cfg)
	if cfg.HTTP.Host != "127.0.0.1" || cfg.HTTP.Port != 8181 || cfg.Storage.DSN != "postgres://x" {
		t.Fatalf("unexpected overlay %+v", cfg)
	}
	if strings.Join(cfg.HTTP.AllowedOrigins, "|") != "http://a.test|http://b.test" {
		t.Fatalf("origins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "PROMPTCRON_TEST_DOTENV=from-file\n")
	t.Setenv("PROMPTCRON_TEST_DOTENV", "")
	os.Unsetenv("PROMPTCRON_TEST_DOTENV")

	if err := LoadDotEnv(p, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PROMPTCRON_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{}
	oldCfg.ApplyDefaults()
	newCfg := &Config{}
	newCfg.ApplyDefaults()
	newCfg.Logging.Level = "debug"
	newCfg.Pipeline.Concurrency = 4
	newCfg.Storage.DSN = "postgres://user:secret@db/x"
	newCfg.Pprof.Enabled = true

	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "logging,pipeline,storage,pprof" {
		t.Fatalf("changed = %v", changed)
	}
	if strings.Join(restart, ",") != "storage" {
		t.Fatalf("restart = %v", restart)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}

func TestPprofDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	c := &Config{Pprof: PprofConfig{Enabled: true}}
	c.ApplyDefaults()
	if c.Pprof.Addr != "127.0.0.1:6060" {
		t.Fatalf("pprof.addr = %q", c.Pprof.Addr)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	c.Pprof.Addr = "no-port"
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "pprof.addr") {
		t.Fatalf("Validate err = %v, want pprof.addr error", err)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", "logging:\n  level: info\n")
	m := newTestManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	t.Cleanup(func() { m.Unsubscribe(ch) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)

	// invalid edits are rejected and not published
	writeFile(t, dir, "config.yaml", "logging:\n  level: loud\n")
	time.Sleep(500 * time.Millisecond)
	writeFile(t, dir, "config.yaml", "logging:\n  level: debug\n")

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("config not committed")
	}
}
