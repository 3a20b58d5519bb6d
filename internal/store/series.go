package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gus-bms/db-checker/internal/model"
)

// SeriesQuery selects an inclusive range of the history (ms since epoch).
// Nil bounds take defaults: To = now, From = To - default range.
type SeriesQuery struct {
	From *int64
	To   *int64
}

// AppendSeries inserts the snapshot scored by its timestamp and trims points
// older than now - window in the same transaction.
func (s *Store) AppendSeries(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	member, err := seriesMember(data)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.queueAppend(ctx, p, snap.ScoreMs(), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append series: %w", model.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) queueAppend(ctx context.Context, p redis.Pipeliner, score int64, member string) {
	cutoff := s.now().Add(-s.cfg.SeriesWindow).UnixMilli()
	p.ZAdd(ctx, s.keys.Series, redis.Z{Score: float64(score), Member: member})
	p.ZRemRangeByScore(ctx, s.keys.Series, "-inf", "("+strconv.FormatInt(cutoff, 10))
}

// ReadSeries returns the snapshots whose timestamps fall in the clamped range
// 0 <= from <= to <= now, oldest first.
func (s *Store) ReadSeries(ctx context.Context, q SeriesQuery) (model.SeriesWindow, error) {
	from, to := s.resolveRange(q)

	members, err := s.client.ZRangeByScore(ctx, s.keys.Series, &redis.ZRangeBy{
		Min: strconv.FormatInt(from, 10),
		Max: strconv.FormatInt(to, 10),
	}).Result()
	if err != nil {
		return model.SeriesWindow{}, fmt.Errorf("%w: read series: %w", model.ErrUnavailable, err)
	}

	items := make([]model.Snapshot, 0, len(members))
	for _, m := range members {
		var snap model.Snapshot
		if err := json.Unmarshal([]byte(memberPayload(m)), &snap); err != nil {
			s.logger.Warn("skipping undecodable series point", "error", err)
			continue
		}
		items = append(items, snap)
	}

	return model.SeriesWindow{
		From:  from,
		To:    to,
		Count: len(items),
		Items: items,
	}, nil
}

func (s *Store) resolveRange(q SeriesQuery) (int64, int64) {
	now := s.now().UnixMilli()

	to := now
	if q.To != nil {
		to = clamp(*q.To, 0, now)
	}

	from := to - s.cfg.DefaultRange.Milliseconds()
	if q.From != nil {
		from = *q.From
	}
	from = clamp(from, 0, to)

	return from, to
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// seriesMember prefixes the payload with a time-ordered unique id.
func seriesMember(data []byte) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate member id: %w", err)
	}
	return id.String() + "|" + string(data), nil
}

// memberPayload strips the id prefix. Members without one are returned as-is.
func memberPayload(member string) string {
	if _, payload, ok := strings.Cut(member, "|"); ok {
		return payload
	}
	return member
}
