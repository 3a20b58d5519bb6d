package model

import (
	"math"
	"time"
)

// -----------------------------------------------------------------------------
// Metrics Types
// -----------------------------------------------------------------------------

// Snapshot is a point-in-time reading of the monitored database's status
// counters. Snapshots are immutable once created.
type Snapshot struct {
	TS          time.Time   `json:"ts"`
	Connections Connections `json:"connections"`
	Traffic     Traffic     `json:"traffic"`
	InnodbLocks InnodbLocks `json:"innodb_locks"`
}

// Connections groups connection-related counters.
type Connections struct {
	ThreadsConnected int64   `json:"threads_connected"`
	ThreadsRunning   int64   `json:"threads_running"`
	MaxConnections   int64   `json:"max_connections"`
	ConnUsagePct     float64 `json:"conn_usage_pct"`
	ConnectionsTotal int64   `json:"connections_total"`
	AbortedConnects  int64   `json:"aborted_connects"`
	AbortedClients   int64   `json:"aborted_clients"`
}

// Traffic groups query throughput counters.
type Traffic struct {
	Questions   int64 `json:"questions"`
	Queries     int64 `json:"queries"`
	ComCommit   int64 `json:"com_commit"`
	ComRollback int64 `json:"com_rollback"`
	SlowQueries int64 `json:"slow_queries"`
}

// InnodbLocks groups row lock counters.
//
// RowLockCurrentWaits is nil when the source could not determine it.
// nil means unknown, 0 means confirmed none.
type InnodbLocks struct {
	RowLockCurrentWaits *int64 `json:"row_lock_current_waits"`
	RowLockWaits        int64  `json:"row_lock_waits"`
	RowLockTimeMs       int64  `json:"row_lock_time_ms"`
}

// ConnUsagePct returns threads connected as a percentage of max connections,
// rounded to two decimals. Returns 0 when max is not positive.
func ConnUsagePct(connected, max int64) float64 {
	if max <= 0 {
		return 0
	}
	pct := float64(connected) / float64(max) * 100
	return math.Round(pct*100) / 100
}

// ScoreMs returns the series score for the snapshot (ms since epoch).
func (s Snapshot) ScoreMs() int64 {
	return s.TS.UnixMilli()
}

// Resources is an on-demand resource report: the snapshot counters plus
// buffer pool efficiency and slow query settings. Counters the server did
// not report are nil.
type Resources struct {
	TS              time.Time           `json:"ts"`
	Connections     ResourceConnections `json:"connections"`
	Traffic         Traffic             `json:"traffic"`
	InnodbLocks     ResourceLocks       `json:"innodb_locks"`
	InnodbBuffer    BufferPool          `json:"innodb_buffer"`
	SlowQueryConfig SlowQueryConfig     `json:"slow_query_config"`
}

// ResourceConnections is Connections with nullable capacity fields.
// MaxConnections and ConnUsagePct are nil when max_connections is unknown.
type ResourceConnections struct {
	ThreadsConnected int64    `json:"threads_connected"`
	ThreadsRunning   int64    `json:"threads_running"`
	MaxConnections   *int64   `json:"max_connections"`
	ConnUsagePct     *float64 `json:"conn_usage_pct"`
	ConnectionsTotal int64    `json:"connections_total"`
	AbortedConnects  int64    `json:"aborted_connects"`
	AbortedClients   int64    `json:"aborted_clients"`
}

// ResourceLocks groups the full set of row lock counters.
type ResourceLocks struct {
	RowLockCurrentWaits *int64 `json:"row_lock_current_waits"`
	RowLockWaits        *int64 `json:"row_lock_waits"`
	RowLockTimeMsTotal  *int64 `json:"row_lock_time_ms_total"`
	RowLockTimeMsMax    *int64 `json:"row_lock_time_ms_max"`
	RowLockTimeouts     *int64 `json:"row_lock_timeouts"`
}

// BufferPool groups InnoDB buffer pool read counters.
//
// HitPct is nil when there were no read requests.
type BufferPool struct {
	HitPct       *float64 `json:"buffer_pool_hit_pct"`
	Reads        *int64   `json:"buffer_pool_reads"`
	ReadRequests *int64   `json:"buffer_pool_read_requests"`
}

// SlowQueryConfig reports the slow query log settings.
type SlowQueryConfig struct {
	SlowQueryLog  string  `json:"slow_query_log"`  // "ON" or "OFF"
	LongQueryTime float64 `json:"long_query_time"` // Seconds
}

// BufferPoolHitPct returns the share of read requests served from memory,
// rounded to two decimals. Returns nil when requests is not positive.
func BufferPoolHitPct(reads, requests int64) *float64 {
	if requests <= 0 {
		return nil
	}
	pct := (1 - float64(reads)/float64(requests)) * 100
	pct = math.Round(pct*100) / 100
	return &pct
}

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// ProcessList is a point-in-time list of active sessions.
type ProcessList struct {
	TS    time.Time     `json:"ts"`
	Total int           `json:"total"`
	Items []ProcessItem `json:"items"`
}

// ProcessItem describes a single session.
type ProcessItem struct {
	ID           int64   `json:"id"`
	User         string  `json:"user"`
	Host         string  `json:"host"`
	DB           *string `json:"db"`
	Command      string  `json:"command"`
	Time         int64   `json:"time"` // Seconds in current state
	State        *string `json:"state"`
	SQLText      *string `json:"sql_text"`
	SQLTruncated bool    `json:"sql_truncated"`
}

// TruncateSQL caps text at max runes and reports whether it was cut.
// A nil text stays nil.
func TruncateSQL(text *string, max int) (*string, bool) {
	if text == nil {
		return nil, false
	}
	runes := []rune(*text)
	if len(runes) <= max {
		return text, false
	}
	cut := string(runes[:max])
	return &cut, true
}

// -----------------------------------------------------------------------------
// History Types
// -----------------------------------------------------------------------------

// SeriesWindow is an inclusive slice of the snapshot history.
type SeriesWindow struct {
	From  int64      `json:"from"` // ms since epoch
	To    int64      `json:"to"`   // ms since epoch
	Count int        `json:"count"`
	Items []Snapshot `json:"items"`
}

// -----------------------------------------------------------------------------
// Alert Types
// -----------------------------------------------------------------------------

// Level is an alert severity.
type Level string

const (
	LevelWarn     Level = "warn"
	LevelCritical Level = "critical"
)

// Rank orders levels so the highest severity wins.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarn:
		return 1
	default:
		return 0
	}
}

// AlertMetric is a single threshold breach computed from a Snapshot.
// Recomputed for every snapshot and never persisted.
type AlertMetric struct {
	Key      string  // e.g. "conn_usage_pct"
	Label    string  // e.g. "Connection usage"
	Unit     string  // e.g. "%"
	Value    float64
	Warn     float64
	Critical float64
	Level    Level
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
