package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/jobstore"
	"essaygrade/internal/grading/poller"
	"essaygrade/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:8000"
	DefaultTimeout      = 30 * time.Second
	DefaultJobStorePath = "configs/cli_jobs.json"
	DefaultExportDir    = "exports"

	EnvPrefix = "ESSAYGRADE_"
)

// PollConfig paces batch status polling.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
	MaxFailures int           `yaml:"maxFailures"`
}

func (p PollConfig) Poller() poller.Config {
	return poller.Config{Interval: p.Interval, MaxBackoff: p.MaxBackoff, MaxFailures: p.MaxFailures}
}

// JobStoreConfig selects where tracked batch jobs are remembered.
type JobStoreConfig struct {
	// Driver is "file", "redis" or "none".
	Driver string               `yaml:"driver"`
	Path   string               `yaml:"path"`
	Redis  jobstore.RedisConfig `yaml:"redis"`
}

// ExportConfig selects where export files go.
type ExportConfig struct {
	// Sink is "dir" or "minio".
	Sink  string             `yaml:"sink"`
	Dir   string             `yaml:"dir"`
	Gzip  bool               `yaml:"gzip"`
	MinIO export.MinIOConfig `yaml:"minio"`
}

// Config holds CLI configuration.
type Config struct {
	BaseURL    string         `yaml:"baseURL"`
	Timeout    time.Duration  `yaml:"timeout"`
	Poll       PollConfig     `yaml:"poll"`
	JobStore   JobStoreConfig `yaml:"jobStore"`
	Export     ExportConfig   `yaml:"export"`
	Logger     logger.Config  `yaml:"logger"`
	PrettyJSON *bool          `yaml:"prettyJSON"`
	// HistoryFile keeps REPL history between sessions; empty disables it.
	HistoryFile string `yaml:"historyFile"`
}

// Overrides are command-line flags; zero values leave the loaded config alone.
type Overrides struct {
	BaseURL string
	Timeout time.Duration
	// Compact turns off the pretty JSON default.
	Compact bool
}

// Apply layers flag values over the file and environment settings.
func (c *Config) Apply(o Overrides) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if o.Compact {
		pretty := false
		c.PrettyJSON = &pretty
	}
}

// Load reads path (a missing file is allowed when optional is set), then a .env file if present,
// then ESSAYGRADE_* variables.
func Load(path string, optional bool) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file failed: %w", err)
			}
		case os.IsNotExist(err) && optional:
		default:
			return cfg, fmt.Errorf("read config file failed: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env failed: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// applyEnv overrides cfg from environment variables named EnvPrefix + key.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	durations := map[string]*time.Duration{
		"TIMEOUT":          &cfg.Timeout,
		"POLL_INTERVAL":    &cfg.Poll.Interval,
		"POLL_MAX_BACKOFF": &cfg.Poll.MaxBackoff,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	strs := map[string]*string{
		"BASE_URL":         &cfg.BaseURL,
		"JOBSTORE_DRIVER":  &cfg.JobStore.Driver,
		"JOBSTORE_PATH":    &cfg.JobStore.Path,
		"REDIS_ADDR":       &cfg.JobStore.Redis.Addr,
		"REDIS_PASSWORD":   &cfg.JobStore.Redis.Password,
		"EXPORT_SINK":      &cfg.Export.Sink,
		"EXPORT_DIR":       &cfg.Export.Dir,
		"MINIO_ENDPOINT":   &cfg.Export.MinIO.Endpoint,
		"MINIO_ACCESS_KEY": &cfg.Export.MinIO.AccessKey,
		"MINIO_SECRET_KEY": &cfg.Export.MinIO.SecretKey,
		"MINIO_BUCKET":     &cfg.Export.MinIO.Bucket,
		"LOG_LEVEL":        &cfg.Logger.Level,
		"LOG_FORMAT":       &cfg.Logger.Format,
		"HISTORY_FILE":     &cfg.HistoryFile,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	if v, ok := get("POLL_MAX_FAILURES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_MAX_FAILURES: %w", EnvPrefix, err)
		}
		cfg.Poll.MaxFailures = n
	}
	if v, ok := get("EXPORT_GZIP"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sEXPORT_GZIP: %w", EnvPrefix, err)
		}
		cfg.Export.Gzip = b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = poller.DefaultInterval
	}
	if cfg.Poll.MaxBackoff == 0 {
		cfg.Poll.MaxBackoff = poller.DefaultMaxBackoff
	}
	if cfg.JobStore.Driver == "" {
		cfg.JobStore.Driver = "file"
	}
	if cfg.JobStore.Path == "" {
		cfg.JobStore.Path = DefaultJobStorePath
	}
	if cfg.Export.Sink == "" {
		cfg.Export.Sink = "dir"
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = DefaultExportDir
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "warn"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
}

// OpenJobStore builds the configured job store. Driver "none" returns nil.
func (c Config) OpenJobStore() (jobstore.Store, error) {
	switch strings.ToLower(c.JobStore.Driver) {
	case "none", "off":
		return nil, nil
	case "file":
		return jobstore.NewFileStore(c.JobStore.Path), nil
	case "redis":
		store, err := jobstore.NewRedisStore(c.JobStore.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown job store driver %q", c.JobStore.Driver)
	}
}

// OpenSink builds the configured export sink.
func (c Config) OpenSink() (export.Sink, error) {
	switch strings.ToLower(c.Export.Sink) {
	case "dir":
		return export.DirSink{Dir: c.Export.Dir}, nil
	case "minio":
		sink, err := export.NewMinIOSink(c.Export.MinIO)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown export sink %q", c.Export.Sink)
	}
}
