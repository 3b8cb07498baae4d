package config

import (
	"reflect"
	"strings"

	logx "promptcron/pkg/logx"
)

// liveSections apply without a restart.
var liveSections = map[string]bool{"logging": true, "scheduler": true, "pipeline": true, "pprof": true}

// SummarizeConfigChange returns the changed top-level sections, safe
// structured attrs for logging (never DSNs or other secrets), and the subset
// of changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
		if !liveSections[section] {
			restart = append(restart, section)
		}
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		mark("http",
			logx.String("http.host", newCfg.HTTP.Host),
			logx.Int("http.port", newCfg.HTTP.Port),
			logx.Int("http.origin_count", len(newCfg.HTTP.AllowedOrigins)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.fire_timeout", newCfg.Scheduler.FireTimeout),
			logx.Int("scheduler.preview_runs", newCfg.Scheduler.PreviewRuns),
		)
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		mark("task_engine",
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.Int("task_engine.queue_size", newCfg.TaskEngine.QueueSize),
			logx.String("task_engine.default_timeout", newCfg.TaskEngine.DefaultTimeout),
		)
	}
	if oldCfg.Pipeline != newCfg.Pipeline {
		mark("pipeline",
			logx.Int("pipeline.concurrency", newCfg.Pipeline.Concurrency),
			logx.String("pipeline.variant_timeout", newCfg.Pipeline.VariantTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.AI, newCfg.AI) {
		mark("ai",
			logx.String("ai.provider", newCfg.AI.Provider),
			logx.String("ai.model", newCfg.AI.Model),
		)
	}
	if oldCfg.Mail != newCfg.Mail {
		mark("mail",
			logx.String("mail.mode", newCfg.Mail.Mode),
			logx.String("mail.host", newCfg.Mail.Host),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Loader, newCfg.Loader) {
		mark("loader",
			logx.Bool("loader.enabled", newCfg.Loader.Enabled),
			logx.String("loader.dir", newCfg.Loader.Dir),
		)
	}
	if oldCfg.Pprof != newCfg.Pprof {
		mark("pprof",
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", newCfg.Pprof.Addr),
		)
	}
	return changed, attrs, restart
}
