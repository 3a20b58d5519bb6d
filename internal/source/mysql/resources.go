package mysql

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gus-bms/db-checker/internal/model"
)

var resourceStatusNames = []string{
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
	"Innodb_row_lock_current_waits",
	"Innodb_row_lock_time",
	"Innodb_row_lock_time_max",
	"Innodb_row_lock_waits",
	"Innodb_row_lock_timeouts",
	"Innodb_buffer_pool_reads",
	"Innodb_buffer_pool_read_requests",
}

var resourceVariableNames = []string{
	"max_connections",
	"slow_query_log",
	"long_query_time",
}

// FetchResources reads the resource report. It is served on demand and is
// not part of the collected snapshot.
func (s *Source) FetchResources(ctx context.Context) (model.Resources, error) {
	var statusRows []variableRow
	if err := s.db.WithContext(ctx).Raw(statusSQL, resourceStatusNames).Scan(&statusRows).Error; err != nil {
		return model.Resources{}, classify("global status", err)
	}

	var varRows []variableRow
	if err := s.db.WithContext(ctx).Raw(variablesSQL, resourceVariableNames).Scan(&varRows).Error; err != nil {
		return model.Resources{}, classify("global variables", err)
	}

	return buildResources(s.now().UTC(), toMap(statusRows), toMap(varRows)), nil
}

func buildResources(ts time.Time, status, vars map[string]string) model.Resources {
	connected := num(status, "Threads_connected")

	var maxConns *int64
	var usage *float64
	if v := optNum(vars, "max_connections"); v != nil && *v > 0 {
		maxConns = v
		usage = model.Float64Ptr(model.ConnUsagePct(connected, *v))
	}

	reads := optNum(status, "Innodb_buffer_pool_reads")
	requests := optNum(status, "Innodb_buffer_pool_read_requests")
	var hit *float64
	if reads != nil && requests != nil {
		hit = model.BufferPoolHitPct(*reads, *requests)
	}

	return model.Resources{
		TS: ts,
		Connections: model.ResourceConnections{
			ThreadsConnected: connected,
			ThreadsRunning:   num(status, "Threads_running"),
			MaxConnections:   maxConns,
			ConnUsagePct:     usage,
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
		InnodbLocks: model.ResourceLocks{
			RowLockCurrentWaits: optNum(status, "Innodb_row_lock_current_waits"),
			RowLockWaits:        optNum(status, "Innodb_row_lock_waits"),
			RowLockTimeMsTotal:  optNum(status, "Innodb_row_lock_time"),
			RowLockTimeMsMax:    optNum(status, "Innodb_row_lock_time_max"),
			RowLockTimeouts:     optNum(status, "Innodb_row_lock_timeouts"),
		},
		InnodbBuffer: model.BufferPool{
			HitPct:       hit,
			Reads:        reads,
			ReadRequests: requests,
		},
		SlowQueryConfig: model.SlowQueryConfig{
			SlowQueryLog:  strings.ToUpper(strings.TrimSpace(vars["slow_query_log"])),
			LongQueryTime: seconds(vars, "long_query_time"),
		},
	}
}

// optNum is num that keeps a missing counter distinct from zero.
func optNum(m map[string]string, name string) *int64 {
	if _, ok := m[strings.ToLower(name)]; !ok {
		return nil
	}
	return model.Int64Ptr(num(m, name))
}

// seconds parses a fractional seconds setting such as "10.000000".
func seconds(m map[string]string, name string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(m[strings.ToLower(name)]), 64)
	if err != nil {
		return 0
	}
	return f
}
