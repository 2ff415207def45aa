// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/logging"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
)

// Output sink kinds.
const (
	OutputMemory   = "memory"
	OutputLocal    = "local"
	OutputPostgres = "postgres"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  logging.Config `mapstructure:"logging"`
}

// RegistryConfig describes how identifiers and record URLs are built.
type RegistryConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	IDPrefix     string `mapstructure:"id_prefix"`
	IDWidth      int    `mapstructure:"id_width"`
	StartCounter int    `mapstructure:"start_counter"`
	Charset      string `mapstructure:"charset"`
	UserAgent    string `mapstructure:"user_agent"`
}

// CrawlConfig governs when a crawl ends and how it fetches.
type CrawlConfig struct {
	Termination   string `mapstructure:"termination"`
	Bound         int    `mapstructure:"bound"`
	AbsenceLimit  int    `mapstructure:"absence_limit"`
	AbsencePolicy string `mapstructure:"absence_policy"`
	Concurrency   int    `mapstructure:"concurrency"`
}

// HTTPConfig configures per-request timeouts, retries, and politeness.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// OutputConfig selects where documents go.
type OutputConfig struct {
	Kind string `mapstructure:"kind"`
	Dir  string `mapstructure:"dir"`
}

// DBConfig controls access to Postgres for documents and run history.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	RunTable               string `mapstructure:"run_table"`
	RecordRuns             bool   `mapstructure:"record_runs"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr                  string `mapstructure:"addr"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith loads into v, which may already carry bound command-line flags.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry.base_url", registry.DefaultBaseURL)
	v.SetDefault("registry.id_prefix", registry.DefaultPrefix)
	v.SetDefault("registry.id_width", registry.DefaultWidth)
	v.SetDefault("registry.start_counter", 0)
	v.SetDefault("registry.charset", "")
	v.SetDefault("registry.user_agent", "clinicaltrials-harvester/0.1")
	v.SetDefault("crawl.termination", crawler.TerminationConsecutiveAbsence)
	v.SetDefault("crawl.bound", 0)
	v.SetDefault("crawl.absence_limit", 1000)
	v.SetDefault("crawl.absence_policy", string(crawler.DefaultAbsencePolicy))
	v.SetDefault("crawl.concurrency", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("output.kind", OutputMemory)
	v.SetDefault("output.dir", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "")
	v.SetDefault("db.run_table", "")
	v.SetDefault("db.record_runs", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("server.addr", "")
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Registry.BaseURL) == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if c.Registry.IDWidth <= 0 {
		return fmt.Errorf("registry.id_width must be > 0")
	}
	if c.Registry.StartCounter < 0 {
		return fmt.Errorf("registry.start_counter must be >= 0")
	}
	if _, err := c.Termination(); err != nil {
		return err
	}
	if _, err := crawler.ParseAbsencePolicy(c.Crawl.AbsencePolicy); err != nil {
		return fmt.Errorf("crawl.absence_policy: %w", err)
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Output.Kind {
	case OutputMemory:
	case OutputLocal:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return fmt.Errorf("output.dir is required when output.kind is %s", OutputLocal)
		}
	case OutputPostgres:
		if strings.TrimSpace(c.DB.DSN) == "" {
			return fmt.Errorf("db.dsn is required when output.kind is %s", OutputPostgres)
		}
	default:
		return fmt.Errorf("unknown output.kind %q", c.Output.Kind)
	}
	if c.DB.RecordRuns && strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn is required when db.record_runs is enabled")
	}
	return nil
}

// Termination builds the configured crawl termination policy.
func (c Config) Termination() (crawler.TerminationPolicy, error) {
	policy, err := crawler.ParseTermination(c.Crawl.Termination, c.Crawl.Bound, c.Crawl.AbsenceLimit)
	if err != nil {
		return nil, fmt.Errorf("crawl.termination: %w", err)
	}
	return policy, nil
}

// AbsencePolicy returns the validated absence policy.
func (c Config) AbsencePolicy() crawler.AbsencePolicy {
	policy, err := crawler.ParseAbsencePolicy(c.Crawl.AbsencePolicy)
	if err != nil {
		return crawler.AbsenceSeparated
	}
	return policy
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// ConnLifetime converts the pool connection lifetime into a duration.
func (d DBConfig) ConnLifetime() time.Duration {
	return time.Duration(d.MaxConnLifetimeMinutes) * time.Minute
}

// ServerTimeout bounds each status server request.
func (s ServerConfig) ServerTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}
