package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}

	switch c.Lock.Backend {
	case "redis":
	case "postgres":
		if err := c.Lock.Postgres.validate("lock.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("lock.backend must be redis or postgres, got %q", c.Lock.Backend)
	}

	if c.Source.MySQL.Host == "" {
		return errors.New("source.mysql.host is required")
	}
	if c.Source.MySQL.User == "" {
		return errors.New("source.mysql.user is required")
	}

	if c.Source.ProcessList.Limit < 1 || c.Source.ProcessList.Limit > 200 {
		return fmt.Errorf("source.process_list.limit must be between 1 and 200, got %d", c.Source.ProcessList.Limit)
	}
	if c.Source.ProcessList.MinElapsedSeconds < 0 {
		return errors.New("source.process_list.min_elapsed_seconds must be >= 0")
	}
	if c.Source.ProcessList.MaxTextLength < 100 {
		return fmt.Errorf("source.process_list.max_text_length must be >= 100, got %d", c.Source.ProcessList.MaxTextLength)
	}

	if c.Collector.Interval <= 0 {
		return errors.New("collector.interval must be > 0")
	}
	if c.Collector.FetchTimeout >= c.Collector.Interval {
		return fmt.Errorf("collector.fetch_timeout (%s) must be shorter than collector.interval (%s)",
			c.Collector.FetchTimeout, c.Collector.Interval)
	}
	if c.Lock.LeaseDuration <= c.Collector.Interval {
		return fmt.Errorf("lock.lease_duration (%s) must exceed collector.interval (%s)",
			c.Lock.LeaseDuration, c.Collector.Interval)
	}

	for i, o := range c.Server.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("server.allowed_origins[%d] must be * or start with http:// or https://, got %q", i, o)
		}
	}

	if c.Gateway.OutboxSize < 1 {
		return errors.New("gateway.outbox_size must be >= 1")
	}

	if err := c.Alerts.Thresholds.validate(); err != nil {
		return err
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func (t ThresholdsConfig) validate() error {
	pairs := []struct {
		name string
		pair ThresholdPair
	}{
		{"conn_usage_pct", t.ConnUsagePct},
		{"threads_running", t.ThreadsRunning},
		{"row_lock_current_waits", t.RowLockCurrentWaits},
		{"slow_queries", t.SlowQueries},
	}
	for _, p := range pairs {
		if p.pair.Warn != nil && *p.pair.Warn < 0 {
			return fmt.Errorf("alerts.thresholds.%s.warn must be >= 0", p.name)
		}
		if p.pair.Critical != nil && *p.pair.Critical < 0 {
			return fmt.Errorf("alerts.thresholds.%s.critical must be >= 0", p.name)
		}
		if p.pair.Warn != nil && p.pair.Critical != nil && *p.pair.Warn > *p.pair.Critical {
			return fmt.Errorf("alerts.thresholds.%s.warn (%v) cannot exceed critical (%v)",
				p.name, *p.pair.Warn, *p.pair.Critical)
		}
	}
	return nil
}
