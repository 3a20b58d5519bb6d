// Package mysql implements the Metrics Source against MySQL 5.7+ using gorm.
//
// Status counters come from performance_schema.global_status and
// global_variables. Current row lock waits come from
// information_schema.innodb_lock_waits, which is absent on 8.0 and may be
// denied by grants; any failure there yields an unknown (nil) value instead
// of failing the snapshot.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gus-bms/db-checker/internal/config"
	"github.com/gus-bms/db-checker/internal/database"
	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/source"
)

var statusNames = []string{
	"Threads_connected",
	"Threads_running",
	"Connections",
	"Aborted_connects",
	"Aborted_clients",
	"Questions",
	"Queries",
	"Com_commit",
	"Com_rollback",
	"Slow_queries",
	"Innodb_row_lock_waits",
	"Innodb_row_lock_time",
}

var variableNames = []string{"max_connections"}

const (
	statusSQL    = `SELECT VARIABLE_NAME AS name, VARIABLE_VALUE AS value FROM performance_schema.global_status WHERE VARIABLE_NAME IN ?`
	variablesSQL = `SELECT VARIABLE_NAME AS name, VARIABLE_VALUE AS value FROM performance_schema.global_variables WHERE VARIABLE_NAME IN ?`
	lockWaitsSQL = `SELECT COUNT(*) FROM information_schema.innodb_lock_waits`
)

type variableRow struct {
	Name  string
	Value string
}

type processRow struct {
	ID      int64
	User    string
	Host    string
	DB      *string
	Command string
	Time    int64
	State   *string
	Info    *string
}

// Source reads metrics from a MySQL server.
type Source struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ source.Source = (*Source)(nil)

// Open connects to the monitored MySQL server.
func Open(cfg config.MySQLConfig, logger *slog.Logger) (*Source, error) {
	// An unreachable server at startup is not fatal; ticks report it.
	dsnCfg := database.MySQLConfig(cfg)
	dialector := gormmysql.New(gormmysql.Config{
		DSN:                       dsnCfg.FormatDSN(),
		DSNConfig:                 dsnCfg,
		SkipInitializeWithVersion: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	return New(db, logger), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{db: db, logger: logger, now: time.Now}
}

// Ping checks the connection.
func (s *Source) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Source) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FetchSnapshot reads the status counters and builds a Snapshot.
func (s *Source) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	var statusRows []variableRow
	if err := s.db.WithContext(ctx).Raw(statusSQL, statusNames).Scan(&statusRows).Error; err != nil {
		return model.Snapshot{}, classify("global status", err)
	}

	var varRows []variableRow
	if err := s.db.WithContext(ctx).Raw(variablesSQL, variableNames).Scan(&varRows).Error; err != nil {
		return model.Snapshot{}, classify("global variables", err)
	}

	return buildSnapshot(s.now().UTC(), toMap(statusRows), toMap(varRows), s.currentLockWaits(ctx)), nil
}

// currentLockWaits returns nil when the count cannot be determined.
func (s *Source) currentLockWaits(ctx context.Context) *int64 {
	var n int64
	if err := s.db.WithContext(ctx).Raw(lockWaitsSQL).Scan(&n).Error; err != nil {
		s.logger.Debug("row lock waits unavailable", "error", err)
		return nil
	}
	return &n
}

// FetchProcessList reads active sessions, longest-running first.
func (s *Source) FetchProcessList(ctx context.Context, opts source.ProcessListOptions) (model.ProcessList, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if !opts.IncludeIdle {
		where = append(where, "COMMAND <> 'Sleep'")
	}
	if opts.MinElapsedSeconds > 0 {
		where = append(where, "TIME >= ?")
		args = append(args, opts.MinElapsedSeconds)
	}

	query := "SELECT ID AS id, USER AS user, HOST AS host, DB AS db, COMMAND AS command, TIME AS time, STATE AS state, INFO AS info FROM information_schema.PROCESSLIST"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY TIME DESC LIMIT ?"
	args = append(args, opts.Limit)

	var rows []processRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return model.ProcessList{}, classify("processlist", err)
	}

	items := make([]model.ProcessItem, 0, len(rows))
	for _, r := range rows {
		text, truncated := model.TruncateSQL(r.Info, opts.MaxTextLength)
		items = append(items, model.ProcessItem{
			ID:           r.ID,
			User:         r.User,
			Host:         r.Host,
			DB:           r.DB,
			Command:      r.Command,
			Time:         r.Time,
			State:        r.State,
			SQLText:      text,
			SQLTruncated: truncated,
		})
	}

	return model.ProcessList{
		TS:    s.now().UTC(),
		Total: len(items),
		Items: items,
	}, nil
}

func buildSnapshot(ts time.Time, status, vars map[string]string, lockWaits *int64) model.Snapshot {
	connected := num(status, "Threads_connected")
	maxConns := num(vars, "max_connections")

	return model.Snapshot{
		TS: ts,
		Connections: model.Connections{
			ThreadsConnected: connected,
			ThreadsRunning:   num(status, "Threads_running"),
			MaxConnections:   maxConns,
			ConnUsagePct:     model.ConnUsagePct(connected, maxConns),
			ConnectionsTotal: num(status, "Connections"),
			AbortedConnects:  num(status, "Aborted_connects"),
			AbortedClients:   num(status, "Aborted_clients"),
		},
		Traffic: model.Traffic{
			Questions:   num(status, "Questions"),
			Queries:     num(status, "Queries"),
			ComCommit:   num(status, "Com_commit"),
			ComRollback: num(status, "Com_rollback"),
			SlowQueries: num(status, "Slow_queries"),
		},
		InnodbLocks: model.InnodbLocks{
			RowLockCurrentWaits: lockWaits,
			RowLockWaits:        num(status, "Innodb_row_lock_waits"),
			RowLockTimeMs:       num(status, "Innodb_row_lock_time"),
		},
	}
}

// toMap keys rows by lowercased name; servers differ in name casing.
func toMap(rows []variableRow) map[string]string {
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[strings.ToLower(r.Name)] = r.Value
	}
	return m
}

// num parses a counter. Missing or non-numeric values read as 0.
func num(m map[string]string, name string) int64 {
	raw, ok := m[strings.ToLower(name)]
	if !ok {
		return 0
	}
	raw = strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("mysql %s: %w: %w", op, model.ErrTimeout, err)
	}
	return fmt.Errorf("mysql %s: %w: %w", op, model.ErrUnavailable, err)
}
