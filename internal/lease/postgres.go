package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gus-bms/db-checker/internal/model"
)

// Querier is the subset of pgxpool.Pool used by PostgresManager.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS leases (
    resource_key TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL
)`

// The WHERE clause on the conflict branch makes renew-or-steal-if-expired a
// single statement. No row is returned when another owner holds a live lease.
const acquireSQL = `
INSERT INTO leases (resource_key, owner_id, expires_at)
VALUES ($1, $2, now() + $3::interval)
ON CONFLICT (resource_key) DO UPDATE
    SET owner_id = EXCLUDED.owner_id,
        expires_at = EXCLUDED.expires_at
    WHERE leases.owner_id = EXCLUDED.owner_id
       OR leases.expires_at < now()
RETURNING owner_id`

// PostgresManager stores leases as rows in a leases table.
type PostgresManager struct {
	db Querier
}

// NewPostgresManager creates a lease manager backed by PostgreSQL.
func NewPostgresManager(db Querier) *PostgresManager {
	return &PostgresManager{db: db}
}

// EnsureSchema creates the leases table if it does not exist.
func (m *PostgresManager) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create leases table: %w", err)
	}
	return nil
}

// TryAcquireOrRenew implements Manager.
func (m *PostgresManager) TryAcquireOrRenew(ctx context.Context, resourceKey, ownerID string, ttl time.Duration) (bool, error) {
	interval := fmt.Sprintf("%d milliseconds", ttl.Milliseconds())

	var owner string
	err := m.db.QueryRow(ctx, acquireSQL, resourceKey, ownerID, interval).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lease %s: %w: %w", resourceKey, model.ErrUnavailable, err)
	}
	return owner == ownerID, nil
}
