package lease

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gus-bms/db-checker/internal/model"
)

// fakeRow returns a fixed owner or error from Scan.
type fakeRow struct {
	owner string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.owner
	return nil
}

// fakeQuerier records the last statement and arguments.
type fakeQuerier struct {
	row     fakeRow
	execErr error

	lastSQL  string
	lastArgs []any
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	return pgconn.CommandTag{}, q.execErr
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	q.lastArgs = args
	return q.row
}

func TestPostgresManager_TryAcquireOrRenew(t *testing.T) {
	tests := []struct {
		name    string
		row     fakeRow
		want    bool
		wantErr error
	}{
		{"acquired", fakeRow{owner: "a"}, true, nil},
		{"held by other", fakeRow{err: pgx.ErrNoRows}, false, nil},
		{"store down", fakeRow{err: errors.New("connection refused")}, false, model.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{row: tt.row}
			m := NewPostgresManager(q)

			got, err := m.TryAcquireOrRenew(context.Background(), "db:lock:poller", "a", 8*time.Second)
			if got != tt.want {
				t.Errorf("TryAcquireOrRenew() = %v, want %v", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}

			if len(q.lastArgs) != 3 {
				t.Fatalf("args = %v, want 3", q.lastArgs)
			}
			if q.lastArgs[2] != "8000 milliseconds" {
				t.Errorf("interval arg = %v, want %q", q.lastArgs[2], "8000 milliseconds")
			}
			if !strings.Contains(q.lastSQL, "ON CONFLICT (resource_key) DO UPDATE") {
				t.Errorf("statement is not a single upsert: %s", q.lastSQL)
			}
		})
	}
}

func TestPostgresManager_EnsureSchema(t *testing.T) {
	q := &fakeQuerier{}
	if err := NewPostgresManager(q).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if !strings.Contains(q.lastSQL, "CREATE TABLE IF NOT EXISTS leases") {
		t.Errorf("unexpected statement: %s", q.lastSQL)
	}

	q.execErr = errors.New("permission denied")
	if err := NewPostgresManager(q).EnsureSchema(context.Background()); err == nil {
		t.Error("EnsureSchema() expected error, got nil")
	}
}
