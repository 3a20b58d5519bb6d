package config

import "time"

// Config is the root configuration for a db-checker instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Lock      LockConfig      `yaml:"lock"`
	Source    SourceConfig    `yaml:"source"`
	Collector CollectorConfig `yaml:"collector"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this process. The ID is the lease owner value.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RedisConfig holds the cache, history and coordination store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LockConfig holds leader election settings.
type LockConfig struct {
	Backend       string        `yaml:"backend"` // redis or postgres
	Key           string        `yaml:"key"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
	Postgres      DBConfig      `yaml:"postgres"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SourceConfig holds the monitored database and session list settings.
type SourceConfig struct {
	MySQL       MySQLConfig       `yaml:"mysql"`
	ProcessList ProcessListConfig `yaml:"process_list"`
}

// MySQLConfig holds the monitored MySQL connection.
type MySQLConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
}

// ProcessListConfig holds the options used for every collected session list.
type ProcessListConfig struct {
	Limit             int  `yaml:"limit"`
	IncludeIdle       bool `yaml:"include_idle"`
	MinElapsedSeconds int  `yaml:"min_elapsed_seconds"`
	MaxTextLength     int  `yaml:"max_text_length"`
}

// CollectorConfig holds scheduler and cache retention settings.
type CollectorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	LatestTTL    time.Duration `yaml:"latest_ttl"`
	SeriesWindow time.Duration `yaml:"series_window"`
}

// GatewayConfig holds live subscription settings.
type GatewayConfig struct {
	Path         string        `yaml:"path"`
	PushWindow   time.Duration `yaml:"push_window"`
	OutboxSize   int           `yaml:"outbox_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	Relay        *bool         `yaml:"relay"` // Fan out through Redis pub/sub (default true)
}

// AlertsConfig holds threshold and notification settings.
type AlertsConfig struct {
	Cooldown   time.Duration    `yaml:"cooldown"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Slack      SlackConfig      `yaml:"slack"`
}

// ThresholdsConfig holds per-metric overrides. Unset values use the
// built-in defaults.
type ThresholdsConfig struct {
	ConnUsagePct        ThresholdPair `yaml:"conn_usage_pct"`
	ThreadsRunning      ThresholdPair `yaml:"threads_running"`
	RowLockCurrentWaits ThresholdPair `yaml:"row_lock_current_waits"`
	SlowQueries         ThresholdPair `yaml:"slow_queries"`
}

// ThresholdPair is an optional warn/critical override.
type ThresholdPair struct {
	Warn     *float64 `yaml:"warn"`
	Critical *float64 `yaml:"critical"`
}

// SlackConfig holds the incoming webhook. An empty URL disables notifications.
type SlackConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// RelayEnabled reports whether broadcasts go through Redis pub/sub.
func (g GatewayConfig) RelayEnabled() bool {
	return g.Relay == nil || *g.Relay
}
