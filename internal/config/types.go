package config

// Config is the on-disk configuration (JSON or YAML). Secrets are never
// stored here; see Secrets.
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	AI         AIConfig         `json:"ai"`
	Mail       MailConfig       `json:"mail"`
	Storage    StorageConfig    `json:"storage"`
	Loader     LoaderConfig     `json:"loader"`
	Pprof      PprofConfig      `json:"pprof"`
}

// HTTPConfig controls the REST API. HOST, PORT and ALLOWED_ORIGINS from the
// environment override the file values.
type HTTPConfig struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	Host            string   `json:"host,omitempty"`
	Port            int      `json:"port,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	// LogBodies logs request and response JSON bodies at debug level.
	LogBodies bool `json:"log_bodies,omitempty"`
}

func (h HTTPConfig) IsEnabled() bool { return h.Enabled == nil || *h.Enabled }

type LoggingConfig struct {
	Level   string           `json:"level"`
	Console bool             `json:"console"`
	File    LoggingFile      `json:"file"`
	Alert   LoggingAlertSink `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlertSink mails log lines at or above MinLevel to To.
type LoggingAlertSink struct {
	Enabled    bool     `json:"enabled"`
	MinLevel   string   `json:"min_level,omitempty"`
	RatePerMin int      `json:"rate_per_min,omitempty"`
	To         []string `json:"to,omitempty"`
}

type SchedulerConfig struct {
	// FireTimeout bounds one firing. "0s" falls back to task_engine.default_timeout.
	FireTimeout string `json:"fire_timeout,omitempty"`
	PreviewRuns int    `json:"preview_runs,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs firings.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type PipelineConfig struct {
	Concurrency    int    `json:"concurrency,omitempty"`
	VariantTimeout string `json:"variant_timeout,omitempty"`
}

// AIConfig configures the answer provider. The API key comes from
// OPENAI_API_KEY.
type AIConfig struct {
	Provider          string   `json:"provider,omitempty"`
	BaseURL           string   `json:"base_url,omitempty"`
	Model             string   `json:"model,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	InputTemplate     string   `json:"input_template,omitempty"`
	WebSearch         *bool    `json:"web_search,omitempty"`
	SearchContextSize string   `json:"search_context_size,omitempty"`
	ToolChoice        string   `json:"tool_choice,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Timeout           string   `json:"timeout,omitempty"`
	RatePerMin        int      `json:"rate_per_min,omitempty"`
}

// MailConfig configures SMTP delivery. Credentials come from SMTP_USERNAME
// and SMTP_PASSWORD.
type MailConfig struct {
	Mode               string `json:"mode,omitempty"`
	Host               string `json:"host,omitempty"`
	Port               int    `json:"port,omitempty"`
	From               string `json:"from,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
	Timeout            string `json:"timeout,omitempty"`
	PoolSize           int    `json:"pool_size,omitempty"`
	RatePerMin         int    `json:"rate_per_min,omitempty"`
}

// StorageConfig selects the registry backend. PROMPTCRON_STORAGE_DSN
// overrides DSN.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	Key         string `json:"key,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// LoaderConfig points at a directory of declarative schedule files.
type LoaderConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir,omitempty"`
	Watch    *bool  `json:"watch,omitempty"`
	Debounce string `json:"debounce,omitempty"`
}

func (l LoaderConfig) WatchEnabled() bool { return l.Watch == nil || *l.Watch }

// PprofConfig controls the optional profiling listener. A non-loopback
// addr needs a token (PROMPTCRON_PPROF_TOKEN) or allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	BlockRate     int    `json:"block_profile_rate,omitempty"`
	MutexFraction int    `json:"mutex_profile_fraction,omitempty"`
}

// Secrets are read from the environment only.
type Secrets struct {
	OpenAIKey    string
	SMTPUsername string
	SMTPPassword string
	PprofToken   string
}
