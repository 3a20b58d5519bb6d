package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: checker-1
redis:
  addr: redis.internal:6379
  db: 2
source:
  mysql:
    host: mysql.internal
    user: monitor
collector:
  interval: 10s
  fetch_timeout: 8s
alerts:
  thresholds:
    conn_usage_pct:
      warn: 60
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "checker-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "checker-1")
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Redis.Addr, "redis.internal:6379")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d, want 2", cfg.Redis.DB)
	}
	if cfg.Collector.Interval != 10*time.Second {
		t.Errorf("Collector.Interval = %v, want %v", cfg.Collector.Interval, 10*time.Second)
	}
	if w := cfg.Alerts.Thresholds.ConnUsagePct.Warn; w == nil || *w != 60 {
		t.Errorf("ConnUsagePct.Warn = %v, want 60", w)
	}
	if cfg.Alerts.Thresholds.ConnUsagePct.Critical != nil {
		t.Errorf("ConnUsagePct.Critical = %v, want nil", *cfg.Alerts.Thresholds.ConnUsagePct.Critical)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SLACK_WEBHOOK", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("TEST_MYSQL_PASSWORD", "secret123")

	yaml := `
source:
  mysql:
    host: localhost
    user: monitor
    password: ${TEST_MYSQL_PASSWORD}
alerts:
  slack:
    webhook_url: ${TEST_SLACK_WEBHOOK}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source.MySQL.Password != "secret123" {
		t.Errorf("Source.MySQL.Password = %q, want %q", cfg.Source.MySQL.Password, "secret123")
	}
	if cfg.Alerts.Slack.WebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("Alerts.Slack.WebhookURL = %q", cfg.Alerts.Slack.WebhookURL)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
source:
  mysql:
    host: localhost
    user: monitor
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Instance.ID == "" {
		t.Error("Instance.ID should be generated")
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, DefaultServerAddr)
	}
	if cfg.Lock.Key != "db:lock:poller" {
		t.Errorf("Lock.Key = %q, want %q", cfg.Lock.Key, "db:lock:poller")
	}
	if cfg.Lock.LeaseDuration != DefaultLeaseDuration {
		t.Errorf("Lock.LeaseDuration = %v, want default %v", cfg.Lock.LeaseDuration, DefaultLeaseDuration)
	}
	if cfg.Collector.Interval != DefaultPollInterval {
		t.Errorf("Collector.Interval = %v, want default %v", cfg.Collector.Interval, DefaultPollInterval)
	}
	if cfg.Collector.LatestTTL != 15*time.Second {
		t.Errorf("Collector.LatestTTL = %v, want %v", cfg.Collector.LatestTTL, 15*time.Second)
	}
	if cfg.Collector.SeriesWindow != time.Hour {
		t.Errorf("Collector.SeriesWindow = %v, want %v", cfg.Collector.SeriesWindow, time.Hour)
	}
	if cfg.Gateway.PushWindow != 15*time.Minute {
		t.Errorf("Gateway.PushWindow = %v, want %v", cfg.Gateway.PushWindow, 15*time.Minute)
	}
	if !cfg.Gateway.RelayEnabled() {
		t.Error("Gateway.RelayEnabled() = false, want true by default")
	}
	if cfg.Alerts.Cooldown != DefaultAlertCooldown {
		t.Errorf("Alerts.Cooldown = %v, want default %v", cfg.Alerts.Cooldown, DefaultAlertCooldown)
	}
	if cfg.Source.ProcessList.Limit != DefaultProcessLimit {
		t.Errorf("ProcessList.Limit = %d, want default %d", cfg.Source.ProcessList.Limit, DefaultProcessLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after defaults: %v", err)
	}
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Source: SourceConfig{MySQL: MySQLConfig{Host: "localhost", User: "monitor"}},
		}
		cfg.ApplyDefaults()
		return cfg
	}
	neg := -1.0
	low, high := 90.0, 80.0

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "unknown lock backend",
			mutate:  func(c *Config) { c.Lock.Backend = "etcd" },
			wantErr: `lock.backend must be redis or postgres, got "etcd"`,
		},
		{
			name: "postgres backend missing host",
			mutate: func(c *Config) {
				c.Lock.Backend = "postgres"
				c.Lock.Postgres = DBConfig{Name: "db", User: "u", MaxConns: 4}
			},
			wantErr: "lock.postgres.host is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Lock.Backend = "postgres"
				c.Lock.Postgres = DBConfig{Host: "h", Name: "db", User: "u", MaxConns: 2, MinConns: 5}
			},
			wantErr: "lock.postgres.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "missing mysql host",
			mutate:  func(c *Config) { c.Source.MySQL.Host = "" },
			wantErr: "source.mysql.host is required",
		},
		{
			name:    "process limit too high",
			mutate:  func(c *Config) { c.Source.ProcessList.Limit = 500 },
			wantErr: "source.process_list.limit must be between 1 and 200, got 500",
		},
		{
			name:    "max text length too small",
			mutate:  func(c *Config) { c.Source.ProcessList.MaxTextLength = 10 },
			wantErr: "source.process_list.max_text_length must be >= 100, got 10",
		},
		{
			name:    "fetch timeout not shorter than interval",
			mutate:  func(c *Config) { c.Collector.FetchTimeout = 5 * time.Second },
			wantErr: "collector.fetch_timeout (5s) must be shorter than collector.interval (5s)",
		},
		{
			name:    "lease not longer than interval",
			mutate:  func(c *Config) { c.Lock.LeaseDuration = 5 * time.Second },
			wantErr: "lock.lease_duration (5s) must exceed collector.interval (5s)",
		},
		{
			name:    "origin without scheme",
			mutate:  func(c *Config) { c.Server.AllowedOrigins = []string{"localhost:5173"} },
			wantErr: `server.allowed_origins[0] must be * or start with http:// or https://, got "localhost:5173"`,
		},
		{
			name:    "wildcard origin",
			mutate:  func(c *Config) { c.Server.AllowedOrigins = []string{"*"} },
			wantErr: "",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Alerts.Thresholds.SlowQueries.Warn = &neg },
			wantErr: "alerts.thresholds.slow_queries.warn must be >= 0",
		},
		{
			name: "warn above critical",
			mutate: func(c *Config) {
				c.Alerts.Thresholds.ConnUsagePct = ThresholdPair{Warn: &low, Critical: &high}
			},
			wantErr: "alerts.thresholds.conn_usage_pct.warn (90) cannot exceed critical (80)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
