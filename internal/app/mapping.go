package app

import (
	"fmt"
	"strings"
	"time"

	"promptcron/internal/ai"
	"promptcron/internal/config"
	"promptcron/internal/httpapi"
	"promptcron/internal/loader"
	"promptcron/internal/mailer"
	"promptcron/internal/observability/pprof"
	"promptcron/internal/pipeline"
	"promptcron/internal/storage"
	"promptcron/internal/task/engine"
	"promptcron/internal/task/scheduler"
	logx "promptcron/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerMin: cfg.Logging.Alert.RatePerMin,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file", "json", "csv":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: driver, Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pg", "redis":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn (or PROMPTCRON_STORAGE_DSN) is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: driver, DSN: sc.DSN, Key: sc.Key}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	out := engine.Config{
		Workers:     te.Workers,
		QueueSize:   te.QueueSize,
		HistorySize: te.HistorySize,
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.HistorySize <= 0 {
		out.HistorySize = 200
	}
	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	fire, err := config.ParseDurationField("scheduler.fire_timeout", cfg.Scheduler.FireTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{FireTimeout: fire, PreviewRuns: cfg.Scheduler.PreviewRuns}, nil
}

func mapPipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	vt, err := config.ParseDurationField("pipeline.variant_timeout", cfg.Pipeline.VariantTimeout)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{Concurrency: cfg.Pipeline.Concurrency, VariantTimeout: vt}, nil
}

func mapAIConfig(cfg *config.Config, sec config.Secrets) (ai.Config, error) {
	c := cfg.AI
	timeout, err := config.ParseDurationField("ai.timeout", c.Timeout)
	if err != nil {
		return ai.Config{}, err
	}
	out := ai.Config{
		Provider:          c.Provider,
		BaseURL:           c.BaseURL,
		APIKey:            sec.OpenAIKey,
		Model:             c.Model,
		Instructions:      c.Instructions,
		InputTemplate:     c.InputTemplate,
		WebSearch:         c.WebSearch == nil || *c.WebSearch,
		SearchContextSize: c.SearchContextSize,
		ToolChoice:        c.ToolChoice,
		Temperature:       0.7,
		Timeout:           timeout,
		RatePerMin:        c.RatePerMin,
	}
	if c.Temperature != nil {
		out.Temperature = *c.Temperature
	}
	return out, nil
}

func mapMailConfig(cfg *config.Config, sec config.Secrets) (mailer.Config, error) {
	c := cfg.Mail
	timeout, err := config.ParseDurationField("mail.timeout", c.Timeout)
	if err != nil {
		return mailer.Config{}, err
	}
	var alertTo []string
	if cfg.Logging.Alert.Enabled {
		alertTo = cfg.Logging.Alert.To
	}
	return mailer.Config{
		Mode:               c.Mode,
		Host:               c.Host,
		Port:               c.Port,
		Username:           sec.SMTPUsername,
		Password:           sec.SMTPPassword,
		From:               c.From,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Timeout:            timeout,
		PoolSize:           c.PoolSize,
		RatePerMin:         c.RatePerMin,
		AlertTo:            alertTo,
	}, nil
}

func mapLoaderConfig(cfg *config.Config) (loader.Config, bool, error) {
	if !cfg.Loader.Enabled {
		return loader.Config{}, false, nil
	}
	d, err := config.ParseDurationField("loader.debounce", cfg.Loader.Debounce)
	if err != nil {
		return loader.Config{}, false, err
	}
	return loader.Config{Dir: cfg.Loader.Dir, Watch: cfg.Loader.WatchEnabled(), Debounce: d}, true, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, bool, error) {
	if !cfg.HTTP.IsEnabled() {
		return httpapi.Config{}, false, nil
	}
	rt, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, false, err
	}
	wt, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, false, err
	}
	return httpapi.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		LogBodies:      cfg.HTTP.LogBodies,
		NextRuns:       cfg.Scheduler.PreviewRuns,
	}, true, nil
}

func mapPprofConfig(cfg *config.Config, sec config.Secrets) pprof.Config {
	p := cfg.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                sec.PprofToken,
		AllowInsecure:        p.AllowInsecure,
		BlockProfileRate:     p.BlockRate,
		MutexProfileFraction: p.MutexFraction,
	}
}
