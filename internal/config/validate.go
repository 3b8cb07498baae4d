package config

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"

	"promptcron/internal/storage"
	logx "promptcron/pkg/logx"
)

// ApplyDefaults fills zero values. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.HTTP.ShutdownTimeout == "" {
		c.HTTP.ShutdownTimeout = "10s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File.Enabled && c.Logging.File.Path == "" {
		c.Logging.File.Path = "runtime/promptcron.log"
	}
	if c.Scheduler.PreviewRuns == 0 {
		c.Scheduler.PreviewRuns = 3
	}
	if c.Pipeline.Concurrency == 0 {
		c.Pipeline.Concurrency = 1
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		switch strings.ToLower(c.Storage.Driver) {
		case "file", "json":
			c.Storage.Path = "data/schedules.json"
		case "csv":
			c.Storage.Path = "schedules.csv"
		case "sqlite", "sqlite3":
			c.Storage.Path = "data/promptcron.db"
		}
	}
	if c.Loader.Enabled && c.Loader.Dir == "" {
		c.Loader.Dir = "schedules"
	}
	if c.Pprof.Enabled && c.Pprof.Addr == "" {
		c.Pprof.Addr = "127.0.0.1:6060"
	}
}

// Validate checks values that cannot be fixed by defaults.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		add(fmt.Errorf("http.port: out of range: %d", c.HTTP.Port))
	}
	dur("http.read_timeout", c.HTTP.ReadTimeout)
	dur("http.write_timeout", c.HTTP.WriteTimeout)
	dur("http.shutdown_timeout", c.HTTP.ShutdownTimeout)

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.Alert.Enabled {
		if !logx.ValidLevel(c.Logging.Alert.MinLevel) {
			add(fmt.Errorf("logging.alert.min_level: unknown level %q", c.Logging.Alert.MinLevel))
		}
		if len(c.Logging.Alert.To) == 0 {
			add(errors.New("logging.alert.to: required when alerts are enabled"))
		}
		for _, a := range c.Logging.Alert.To {
			if _, err := mail.ParseAddress(a); err != nil {
				add(fmt.Errorf("logging.alert.to: invalid address %q", a))
			}
		}
	}

	dur("scheduler.fire_timeout", c.Scheduler.FireTimeout)
	if c.Scheduler.PreviewRuns < 0 {
		add(errors.New("scheduler.preview_runs: must be >= 0"))
	}

	if c.TaskEngine.Workers < 0 || c.TaskEngine.QueueSize < 0 || c.TaskEngine.HistorySize < 0 {
		add(errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
	}
	dur("task_engine.default_timeout", c.TaskEngine.DefaultTimeout)
	dur("task_engine.max_queue_delay", c.TaskEngine.MaxQueueDelay)

	if c.Pipeline.Concurrency < 0 {
		add(errors.New("pipeline.concurrency: must be >= 0"))
	}
	dur("pipeline.variant_timeout", c.Pipeline.VariantTimeout)

	switch strings.ToLower(c.AI.Provider) {
	case "", "openai", "echo":
	default:
		add(fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
	}
	if c.AI.Temperature != nil && (*c.AI.Temperature < 0 || *c.AI.Temperature > 2) {
		add(fmt.Errorf("ai.temperature: out of range: %v", *c.AI.Temperature))
	}
	dur("ai.timeout", c.AI.Timeout)

	switch strings.ToLower(c.Mail.Mode) {
	case "", "ssl", "starttls", "plain", "log":
	default:
		add(fmt.Errorf("mail.mode: unknown mode %q", c.Mail.Mode))
	}
	dur("mail.timeout", c.Mail.Timeout)

	if !knownDriver(c.Storage.Driver) {
		add(fmt.Errorf("storage.driver: unknown driver %q (want one of %s)", c.Storage.Driver, strings.Join(storage.Drivers(), ", ")))
	}
	dur("storage.busy_timeout", c.Storage.BusyTimeout)

	dur("loader.debounce", c.Loader.Debounce)

	if c.Pprof.Enabled && c.Pprof.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Pprof.Addr); err != nil {
			add(fmt.Errorf("pprof.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

func knownDriver(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return true
	}
	for _, k := range storage.Drivers() {
		if d == k {
			return true
		}
	}
	return false
}
