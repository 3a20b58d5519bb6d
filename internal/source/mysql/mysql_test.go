package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/source"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// newTestSource builds a Source over SQLite with attached schemas that mimic
// the MySQL system tables the adapter reads.
func newTestSource(t *testing.T, withLockWaits bool) (*Source, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	stmts := []string{
		"ATTACH DATABASE ':memory:' AS performance_schema",
		"ATTACH DATABASE ':memory:' AS information_schema",
		"CREATE TABLE performance_schema.global_status (VARIABLE_NAME TEXT, VARIABLE_VALUE TEXT)",
		"CREATE TABLE performance_schema.global_variables (VARIABLE_NAME TEXT, VARIABLE_VALUE TEXT)",
		`CREATE TABLE information_schema.PROCESSLIST (
			ID INTEGER, USER TEXT, HOST TEXT, DB TEXT, COMMAND TEXT, TIME INTEGER, STATE TEXT, INFO TEXT
		)`,
	}
	if withLockWaits {
		stmts = append(stmts, "CREATE TABLE information_schema.innodb_lock_waits (requesting_trx_id TEXT)")
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	s := New(db, nil)
	s.now = func() time.Time { return fixedNow }
	return s, db
}

func seedStatus(t *testing.T, db *gorm.DB, table string, values map[string]string) {
	t.Helper()
	for name, value := range values {
		q := fmt.Sprintf("INSERT INTO performance_schema.%s (VARIABLE_NAME, VARIABLE_VALUE) VALUES (?, ?)", table)
		if err := db.Exec(q, name, value).Error; err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
}

func TestSource_FetchSnapshot(t *testing.T) {
	s, db := newTestSource(t, true)

	seedStatus(t, db, "global_status", map[string]string{
		"Threads_connected":     "90",
		"Threads_running":       "12",
		"Connections":           "5000",
		"Aborted_connects":      "3",
		"Aborted_clients":       "1",
		"Questions":             "1000",
		"Queries":               "1200",
		"Com_commit":            "40",
		"Com_rollback":          "2",
		"Slow_queries":          "7",
		"Innodb_row_lock_waits": "11",
		"Innodb_row_lock_time":  "250",
		"Uptime":                "99999",
	})
	seedStatus(t, db, "global_variables", map[string]string{"max_connections": "151"})
	for i := 0; i < 2; i++ {
		if err := db.Exec("INSERT INTO information_schema.innodb_lock_waits VALUES (?)", fmt.Sprint(i)).Error; err != nil {
			t.Fatalf("seed lock wait: %v", err)
		}
	}

	snap, err := s.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}

	if !snap.TS.Equal(fixedNow) {
		t.Errorf("TS = %v, want %v", snap.TS, fixedNow)
	}
	if snap.Connections.ThreadsConnected != 90 {
		t.Errorf("ThreadsConnected = %d, want 90", snap.Connections.ThreadsConnected)
	}
	if snap.Connections.MaxConnections != 151 {
		t.Errorf("MaxConnections = %d, want 151", snap.Connections.MaxConnections)
	}
	if snap.Connections.ConnUsagePct != 59.6 {
		t.Errorf("ConnUsagePct = %v, want 59.6", snap.Connections.ConnUsagePct)
	}
	if snap.Traffic.SlowQueries != 7 {
		t.Errorf("SlowQueries = %d, want 7", snap.Traffic.SlowQueries)
	}
	if snap.InnodbLocks.RowLockTimeMs != 250 {
		t.Errorf("RowLockTimeMs = %d, want 250", snap.InnodbLocks.RowLockTimeMs)
	}
	if w := snap.InnodbLocks.RowLockCurrentWaits; w == nil || *w != 2 {
		t.Errorf("RowLockCurrentWaits = %v, want 2", w)
	}
}

func TestSource_FetchSnapshot_LockWaitsUnknown(t *testing.T) {
	s, db := newTestSource(t, false)
	seedStatus(t, db, "global_status", map[string]string{"Threads_connected": "1"})

	snap, err := s.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if snap.InnodbLocks.RowLockCurrentWaits != nil {
		t.Errorf("RowLockCurrentWaits = %d, want nil when table missing", *snap.InnodbLocks.RowLockCurrentWaits)
	}
	if snap.Connections.ConnUsagePct != 0 {
		t.Errorf("ConnUsagePct = %v, want 0 without max_connections", snap.Connections.ConnUsagePct)
	}
}

func TestSource_FetchSnapshot_Unavailable(t *testing.T) {
	s, db := newTestSource(t, false)
	if err := db.Exec("DROP TABLE performance_schema.global_status").Error; err != nil {
		t.Fatalf("drop: %v", err)
	}

	_, err := s.FetchSnapshot(context.Background())
	if !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func seedSessions(t *testing.T, db *gorm.DB) {
	t.Helper()
	long := strings.Repeat("SELECT 1 UNION ALL ", 20)
	rows := []struct {
		id      int64
		command string
		time    int64
		info    *string
	}{
		{1, "Sleep", 500, nil},
		{2, "Query", 30, model.StringPtr("SELECT * FROM orders")},
		{3, "Query", 120, &long},
		{4, "Query", 2, model.StringPtr("UPDATE t SET x = 1")},
		{5, "Binlog Dump", 9000, nil},
	}
	for _, r := range rows {
		err := db.Exec(
			"INSERT INTO information_schema.PROCESSLIST VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			r.id, "app", "10.0.0.1:4000", "shop", r.command, r.time, "executing", r.info,
		).Error
		if err != nil {
			t.Fatalf("seed session %d: %v", r.id, err)
		}
	}
}

func TestSource_FetchProcessList(t *testing.T) {
	s, db := newTestSource(t, false)
	seedSessions(t, db)

	pl, err := s.FetchProcessList(context.Background(), source.ProcessListOptions{
		Limit:         80,
		MaxTextLength: 100,
	})
	if err != nil {
		t.Fatalf("FetchProcessList failed: %v", err)
	}

	wantIDs := []int64{5, 3, 2, 4}
	if pl.Total != len(wantIDs) || len(pl.Items) != len(wantIDs) {
		t.Fatalf("Total = %d, items = %d, want %d", pl.Total, len(pl.Items), len(wantIDs))
	}
	for i, item := range pl.Items {
		if item.ID != wantIDs[i] {
			t.Errorf("item[%d].ID = %d, want %d", i, item.ID, wantIDs[i])
		}
	}

	long := pl.Items[1]
	if !long.SQLTruncated {
		t.Error("long statement not flagged as truncated")
	}
	if long.SQLText == nil || len(*long.SQLText) != 100 {
		t.Errorf("long statement length = %v, want 100", long.SQLText)
	}
	if pl.Items[2].SQLTruncated {
		t.Error("short statement flagged as truncated")
	}
	if pl.Items[0].SQLText != nil {
		t.Errorf("SQLText = %q, want nil for session without statement", *pl.Items[0].SQLText)
	}
	if pl.Items[0].DB == nil || *pl.Items[0].DB != "shop" {
		t.Errorf("DB = %v, want shop", pl.Items[0].DB)
	}
}

func TestSource_FetchProcessList_Filters(t *testing.T) {
	s, db := newTestSource(t, false)
	seedSessions(t, db)
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    source.ProcessListOptions
		wantIDs []int64
	}{
		{"include idle", source.ProcessListOptions{IncludeIdle: true}, []int64{5, 1, 3, 2, 4}},
		{"min elapsed", source.ProcessListOptions{MinElapsedSeconds: 30}, []int64{5, 3, 2}},
		{"limit", source.ProcessListOptions{Limit: 2}, []int64{5, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl, err := s.FetchProcessList(ctx, tt.opts)
			if err != nil {
				t.Fatalf("FetchProcessList failed: %v", err)
			}
			if len(pl.Items) != len(tt.wantIDs) {
				t.Fatalf("items = %d, want %d", len(pl.Items), len(tt.wantIDs))
			}
			for i, item := range pl.Items {
				if item.ID != tt.wantIDs[i] {
					t.Errorf("item[%d].ID = %d, want %d", i, item.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestNum(t *testing.T) {
	m := toMap([]variableRow{
		{Name: "THREADS_CONNECTED", Value: "42"},
		{Name: "Weird", Value: "abc"},
		{Name: "Float", Value: "12.9"},
	})

	tests := []struct {
		name string
		want int64
	}{
		{"Threads_connected", 42},
		{"Weird", 0},
		{"Float", 12},
		{"Missing", 0},
	}
	for _, tt := range tests {
		if got := num(m, tt.name); got != tt.want {
			t.Errorf("num(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if err := classify("op", context.DeadlineExceeded); !errors.Is(err, model.ErrTimeout) {
		t.Errorf("classify(deadline) = %v, want ErrTimeout", err)
	}
	if err := classify("op", errors.New("broken pipe")); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("classify(other) = %v, want ErrUnavailable", err)
	}
}
