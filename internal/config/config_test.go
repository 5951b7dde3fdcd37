package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
browser:
  mode: static
  nav_timeout_seconds: 30
fetch:
  matched_only: true
retry:
  max_attempts: 5
  backoff_seconds: 1
resolver:
  kind: arxiv
  min_similarity: 0.8
ratelimit:
  rps: 0.5
  burst: 2
conferences:
  year: 2024
  presets:
    neurips: "https://neurips.cc/virtual/{year}/papers.html?search="
  urls:
    - "https://icml.cc/virtual/2024/papers.html?search="
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: exports
pubsub:
  project_id: proj
  topic_name: runs
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Browser.Mode != BrowserStatic || cfg.NavTimeout() != 30*time.Second {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.RetryBackoff() != time.Second {
		t.Fatalf("expected retry overrides to apply: %+v", cfg.Retry)
	}
	if cfg.Resolver.Kind != ResolverArxiv || cfg.Resolver.MinSimilarity != 0.8 {
		t.Fatalf("expected resolver overrides to apply: %+v", cfg.Resolver)
	}
	if cfg.Resolver.MaxResults != 5 {
		t.Fatalf("expected default max_results to survive partial override, got %d", cfg.Resolver.MaxResults)
	}
	if got := cfg.Conferences.Presets["neurips"]; !strings.Contains(got, "{year}") {
		t.Fatalf("expected neurips preset, got %q", got)
	}
	if len(cfg.Conferences.URLs) != 1 || cfg.Conferences.Year != 2024 {
		t.Fatalf("expected conference overrides to apply: %+v", cfg.Conferences)
	}
	if !cfg.Fetch.MatchedOnly {
		t.Fatalf("expected matched_only to be true")
	}
	if !cfg.PubSubEnabled() {
		t.Fatalf("expected pubsub to be enabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Browser.Mode != BrowserHeadless || cfg.Resolver.Kind != ResolverPage {
		t.Fatalf("unexpected defaults: browser=%q resolver=%q", cfg.Browser.Mode, cfg.Resolver.Kind)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.Storage.BaseDir == "" {
		t.Fatalf("expected local storage default: %+v", cfg.Storage)
	}
	if cfg.PubSubEnabled() {
		t.Fatalf("pubsub should be disabled by default")
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PUBSCRAPER_SERVER_PORT", "7070")
	t.Setenv("PUBSCRAPER_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Fatalf("expected env storage backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:      ServerConfig{Port: 8080},
		Browser:     BrowserConfig{Mode: BrowserHeadless, NavTimeoutSeconds: 45},
		Retry:       RetryConfig{MaxAttempts: 3, BackoffSeconds: 2},
		Resolver:    ResolverConfig{Kind: ResolverPage},
		Conferences: ConferencesConfig{Year: 2025},
		Storage:     StorageConfig{Backend: StorageMemory},
		Progress:    ProgressConfig{BufferSize: 16},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	auto := base
	auto.Browser.Mode = BrowserAuto
	if err := auto.Validate(); err != nil {
		t.Fatalf("auto browser mode should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown browser", mutate: func(c *Config) { c.Browser.Mode = "firefox" }, want: "browser.mode"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, want: "retry.max_attempts"},
		{name: "unknown resolver", mutate: func(c *Config) { c.Resolver.Kind = "scholar" }, want: "resolver.kind"},
		{
			name: "similarity out of range",
			mutate: func(c *Config) {
				c.Resolver.Kind = ResolverArxiv
				c.Resolver.MinSimilarity = 1.5
			},
			want: "resolver.min_similarity",
		},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.RPS = -1 }, want: "ratelimit.rps"},
		{name: "year out of range", mutate: func(c *Config) { c.Conferences.Year = 2019 }, want: "conferences.year"},
		{
			name: "local without dir",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageLocal
				c.Storage.BaseDir = ""
			},
			want: "storage.base_dir",
		},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "half pubsub", mutate: func(c *Config) { c.PubSub.ProjectID = "proj" }, want: "pubsub.project_id"},
		{
			name: "db pool bounds",
			mutate: func(c *Config) {
				c.DB.DSN = "postgres://x"
				c.DB.MinConns = 5
				c.DB.MaxConns = 1
			},
			want: "db.min_conns",
		},
		{
			name: "two databases",
			mutate: func(c *Config) {
				c.DB.DSN = "postgres://x"
				c.DB.SQLitePath = "runs.db"
			},
			want: "mutually exclusive",
		},
		{name: "zero buffer", mutate: func(c *Config) { c.Progress.BufferSize = 0 }, want: "progress.buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
