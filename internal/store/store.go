package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gus-bms/db-checker/internal/model"
)

// Config holds store configuration.
type Config struct {
	KeyPrefix    string        // Key namespace (default: "db:")
	LatestTTL    time.Duration // Latest entry lifetime (default: 15s)
	SeriesWindow time.Duration // History retention (default: 1h)
	DefaultRange time.Duration // ReadSeries lookback when From is unset (default: 15m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    "db:",
		LatestTTL:    15 * time.Second,
		SeriesWindow: time.Hour,
		DefaultRange: 15 * time.Minute,
	}
}

// Keys holds the resolved Redis key names.
type Keys struct {
	LatestSnapshot     string
	LatestProcessList  string
	Series             string
	SnapshotChannel    string
	ProcessListChannel string
}

// KeysFor builds the key set for a prefix.
func KeysFor(prefix string) Keys {
	return Keys{
		LatestSnapshot:     prefix + "latest:snapshot",
		LatestProcessList:  prefix + "latest:processlist",
		Series:             prefix + "ts:snapshot",
		SnapshotChannel:    prefix + "pub:snapshot",
		ProcessListChannel: prefix + "pub:processlist",
	}
}

// Store reads and writes the latest cache and the snapshot history.
type Store struct {
	client redis.UniversalClient
	cfg    Config
	keys   Keys
	logger *slog.Logger

	now func() time.Time
}

// New creates a Store. Zero config fields take defaults.
func New(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.LatestTTL == 0 {
		cfg.LatestTTL = def.LatestTTL
	}
	if cfg.SeriesWindow == 0 {
		cfg.SeriesWindow = def.SeriesWindow
	}
	if cfg.DefaultRange == 0 {
		cfg.DefaultRange = def.DefaultRange
	}
	return &Store{
		client: client,
		cfg:    cfg,
		keys:   KeysFor(cfg.KeyPrefix),
		logger: logger,
		now:    time.Now,
	}
}

// Keys returns the key names in use.
func (s *Store) Keys() Keys {
	return s.keys
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %w", model.ErrUnavailable, err)
	}
	return nil
}

// WriteLatest stores the latest snapshot and process list, each with its own TTL.
func (s *Store) WriteLatest(ctx context.Context, snap model.Snapshot, pl model.ProcessList) error {
	snapJSON, plJSON, err := encodePair(snap, pl)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.queueLatest(ctx, p, snapJSON, plJSON)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write latest: %w", model.ErrUnavailable, err)
	}
	return nil
}

// ReadLatest returns the cached snapshot and process list. Either may be nil
// when the cache is warming up or the collector has stalled.
func (s *Store) ReadLatest(ctx context.Context) (*model.Snapshot, *model.ProcessList, error) {
	vals, err := s.client.MGet(ctx, s.keys.LatestSnapshot, s.keys.LatestProcessList).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read latest: %w", model.ErrUnavailable, err)
	}

	var snap *model.Snapshot
	if raw, ok := vals[0].(string); ok {
		var v model.Snapshot
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.Warn("discarding undecodable latest snapshot", "error", err)
		} else {
			snap = &v
		}
	}

	var pl *model.ProcessList
	if raw, ok := vals[1].(string); ok {
		var v model.ProcessList
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.Warn("discarding undecodable latest processlist", "error", err)
		} else {
			pl = &v
		}
	}

	return snap, pl, nil
}

// Record writes the latest entries and appends the snapshot to the history in
// a single MULTI/EXEC transaction. Either everything lands or nothing does.
func (s *Store) Record(ctx context.Context, snap model.Snapshot, pl model.ProcessList) error {
	snapJSON, plJSON, err := encodePair(snap, pl)
	if err != nil {
		return err
	}
	member, err := seriesMember(snapJSON)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.queueLatest(ctx, p, snapJSON, plJSON)
		s.queueAppend(ctx, p, snap.ScoreMs(), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record: %w", model.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) queueLatest(ctx context.Context, p redis.Pipeliner, snapJSON, plJSON []byte) {
	p.Set(ctx, s.keys.LatestSnapshot, snapJSON, s.cfg.LatestTTL)
	p.Set(ctx, s.keys.LatestProcessList, plJSON, s.cfg.LatestTTL)
}

func encodePair(snap model.Snapshot, pl model.ProcessList) ([]byte, []byte, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	plJSON, err := json.Marshal(pl)
	if err != nil {
		return nil, nil, fmt.Errorf("encode processlist: %w", err)
	}
	return snapJSON, plJSON, nil
}
