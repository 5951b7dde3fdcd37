// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hiparis-pubscraper/internal/conference"
	"github.com/JakeFAU/hiparis-pubscraper/internal/logging"
)

// Browser modes.
const (
	BrowserHeadless = "headless"
	BrowserStatic   = "static"
	BrowserAuto     = "auto"
)

// Resolver kinds.
const (
	ResolverPage  = "page"
	ResolverArxiv = "arxiv"
	ResolverNone  = "none"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     logging.Config    `mapstructure:"logging"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Conferences ConferencesConfig `mapstructure:"conferences"`
	Roster      RosterConfig      `mapstructure:"roster"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	DB          DBConfig          `mapstructure:"db"`
	Progress    ProgressConfig    `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig selects and tunes the browsing session.
type BrowserConfig struct {
	Mode              string `mapstructure:"mode"`
	UserAgent         string `mapstructure:"user_agent"`
	ExecPath          string `mapstructure:"exec_path"`
	NoSandbox         bool   `mapstructure:"no_sandbox"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	RespectRobots     bool   `mapstructure:"respect_robots"`
}

// FetchConfig describes how a results page is read.
type FetchConfig struct {
	TitleSelector  string `mapstructure:"title_selector"`
	AuthorSelector string `mapstructure:"author_selector"`
	WaitSeconds    int    `mapstructure:"wait_seconds"`
	SettleMillis   int    `mapstructure:"settle_ms"`
	MatchedOnly    bool   `mapstructure:"matched_only"`
}

// RetryConfig is the per-unit attempt budget.
type RetryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

// ResolverConfig selects the document resolver.
type ResolverConfig struct {
	Kind           string  `mapstructure:"kind"`
	SearchTemplate string  `mapstructure:"search_template"`
	LinkSelector   string  `mapstructure:"link_selector"`
	LinkText       string  `mapstructure:"link_text"`
	WaitSeconds    int     `mapstructure:"wait_seconds"`
	MaxResults     int     `mapstructure:"max_results"`
	MinSimilarity  float64 `mapstructure:"min_similarity"`
}

// RateLimitConfig throttles page loads per host. A zero rate disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// ConferencesConfig seeds the conference registry.
type ConferencesConfig struct {
	Year    int               `mapstructure:"year"`
	Presets map[string]string `mapstructure:"presets"`
	URLs    []string          `mapstructure:"urls"`
	File    string            `mapstructure:"file"`
}

// RosterConfig optionally preloads the roster.
type RosterConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig sets where spreadsheets are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion notifications. Publishing is
// enabled when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls the optional archive and run history. DSN selects
// Postgres; SQLitePath selects a local SQLite file.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	SQLitePath             string `mapstructure:"sqlite_path"`
	Table                  string `mapstructure:"table"`
	RunsTable              string `mapstructure:"runs_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize         int  `mapstructure:"buffer_size"`
	MaxBatchEvents     int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMillis int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int  `mapstructure:"sink_timeout_seconds"`
	Metrics            bool `mapstructure:"metrics"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUBSCRAPER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.mode", BrowserHeadless)
	v.SetDefault("browser.user_agent", "hiparis-pubscraper/0.1")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.respect_robots", false)
	v.SetDefault("fetch.wait_seconds", 2)
	v.SetDefault("fetch.settle_ms", 2000)
	v.SetDefault("fetch.matched_only", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_seconds", 2)
	v.SetDefault("resolver.kind", ResolverPage)
	v.SetDefault("resolver.wait_seconds", 2)
	v.SetDefault("resolver.max_results", 5)
	v.SetDefault("resolver.min_similarity", 0.9)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("conferences.year", 2025)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "data/artifacts")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_seconds", 5)
	v.SetDefault("progress.metrics", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Browser.Mode {
	case BrowserHeadless, BrowserStatic, BrowserAuto:
	default:
		return fmt.Errorf("browser.mode must be %q, %q or %q, got %q",
			BrowserHeadless, BrowserStatic, BrowserAuto, c.Browser.Mode)
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("retry.backoff_seconds must be >= 0")
	}
	switch c.Resolver.Kind {
	case ResolverPage, ResolverNone:
	case ResolverArxiv:
		if c.Resolver.MinSimilarity < 0 || c.Resolver.MinSimilarity > 1 {
			return fmt.Errorf("resolver.min_similarity must be within [0, 1]")
		}
	default:
		return fmt.Errorf("resolver.kind must be one of page, arxiv, none; got %q", c.Resolver.Kind)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("ratelimit.rps must be >= 0")
	}
	if c.Conferences.Year < conference.MinYear || c.Conferences.Year > conference.MaxYear {
		return fmt.Errorf("conferences.year must be within [%d, %d]", conference.MinYear, conference.MaxYear)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs; got %q", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.DB.DSN != "" && c.DB.SQLitePath != "" {
		return fmt.Errorf("db.dsn and db.sqlite_path are mutually exclusive")
	}
	if c.DB.DSN != "" && c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	return nil
}

// NavTimeout is the per-navigation budget of the browsing session.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// RetryBackoff is the base of the linear retry wait.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Retry.BackoffSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// PubSubEnabled reports whether completion events are published.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
