package config

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultServerAddr       = ":3000"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultRedisAddr        = "127.0.0.1:6379"
	DefaultKeyPrefix        = "db:"
	DefaultLockBackend      = "redis"
	DefaultLockKey          = "lock:poller"
	DefaultLeaseDuration    = 8 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultMySQLPort        = 3306
	DefaultMySQLMaxOpen     = 4
	DefaultMySQLConnTimeout = 3 * time.Second
	DefaultProcessLimit     = 80
	DefaultMaxTextLength    = 2000
	DefaultPollInterval     = 5 * time.Second
	DefaultFetchTimeout     = 4 * time.Second
	DefaultSeriesWindow     = time.Hour
	DefaultGatewayPath      = "/db/ws"
	DefaultPushWindow       = 15 * time.Minute
	DefaultOutboxSize       = 64
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultAlertCooldown    = 60 * time.Second
	DefaultSlackTimeout     = 5 * time.Second
	DefaultSlackRetries     = 2
	DefaultMetricsPath      = "/metrics"
)

// ApplyDefaults fills unset fields. Latest TTL defaults to three intervals.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = defaultInstanceID()
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultKeyPrefix
	}

	// Lock defaults
	if c.Lock.Backend == "" {
		c.Lock.Backend = DefaultLockBackend
	}
	if c.Lock.Key == "" {
		c.Lock.Key = c.Redis.KeyPrefix + DefaultLockKey
	}
	if c.Lock.LeaseDuration == 0 {
		c.Lock.LeaseDuration = DefaultLeaseDuration
	}
	if c.Lock.Backend == "postgres" {
		applyDBDefaults(&c.Lock.Postgres)
	}

	// Source defaults
	if c.Source.MySQL.Port == 0 {
		c.Source.MySQL.Port = DefaultMySQLPort
	}
	if c.Source.MySQL.MaxOpenConns == 0 {
		c.Source.MySQL.MaxOpenConns = DefaultMySQLMaxOpen
	}
	if c.Source.MySQL.ConnTimeout == 0 {
		c.Source.MySQL.ConnTimeout = DefaultMySQLConnTimeout
	}
	if c.Source.ProcessList.Limit == 0 {
		c.Source.ProcessList.Limit = DefaultProcessLimit
	}
	if c.Source.ProcessList.MaxTextLength == 0 {
		c.Source.ProcessList.MaxTextLength = DefaultMaxTextLength
	}

	// Collector defaults
	if c.Collector.Interval == 0 {
		c.Collector.Interval = DefaultPollInterval
	}
	if c.Collector.FetchTimeout == 0 {
		c.Collector.FetchTimeout = DefaultFetchTimeout
	}
	if c.Collector.LatestTTL == 0 {
		c.Collector.LatestTTL = 3 * c.Collector.Interval
	}
	if c.Collector.SeriesWindow == 0 {
		c.Collector.SeriesWindow = DefaultSeriesWindow
	}

	// Gateway defaults
	if c.Gateway.Path == "" {
		c.Gateway.Path = DefaultGatewayPath
	}
	if c.Gateway.PushWindow == 0 {
		c.Gateway.PushWindow = DefaultPushWindow
	}
	if c.Gateway.OutboxSize == 0 {
		c.Gateway.OutboxSize = DefaultOutboxSize
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}

	// Alert defaults
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = DefaultAlertCooldown
	}
	if c.Alerts.Slack.Timeout == 0 {
		c.Alerts.Slack.Timeout = DefaultSlackTimeout
	}
	if c.Alerts.Slack.MaxRetries == 0 {
		c.Alerts.Slack.MaxRetries = DefaultSlackRetries
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// defaultInstanceID is hostname plus a random suffix so two processes on one
// host never share a lease owner value.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "db-checker"
	}
	return host + "-" + uuid.NewString()[:8]
}
