package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gus-bms/db-checker/internal/model"
)

// Event is a payload received from the broadcast channels. Exactly one field is set.
type Event struct {
	Snapshot    *model.Snapshot
	ProcessList *model.ProcessList
}

// PublishSnapshot announces a new snapshot to every instance.
func (s *Store) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Publish(ctx, s.keys.SnapshotChannel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish snapshot: %w", model.ErrUnavailable, err)
	}
	return nil
}

// PublishProcessList announces a new process list to every instance.
func (s *Store) PublishProcessList(ctx context.Context, pl model.ProcessList) error {
	data, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("encode processlist: %w", err)
	}
	if err := s.client.Publish(ctx, s.keys.ProcessListChannel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish processlist: %w", model.ErrUnavailable, err)
	}
	return nil
}

// Subscription delivers decoded broadcast events until closed.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Subscribe listens on both broadcast channels. The subscription is confirmed
// before Subscribe returns.
func (s *Store) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, s.keys.SnapshotChannel, s.keys.ProcessListChannel)
	for range 2 {
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("%w: subscribe: %w", model.ErrUnavailable, err)
		}
	}

	sub := &Subscription{
		pubsub: ps,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go sub.run(s)
	return sub, nil
}

// Events returns the decoded event stream. Closed after Close.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Close stops the subscription.
func (sub *Subscription) Close() error {
	var err error
	sub.once.Do(func() {
		close(sub.done)
		err = sub.pubsub.Close()
	})
	return err
}

func (sub *Subscription) run(s *Store) {
	defer close(sub.events)

	for msg := range sub.pubsub.Channel() {
		var ev Event
		switch msg.Channel {
		case s.keys.SnapshotChannel:
			var snap model.Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				s.logger.Warn("discarding undecodable snapshot event", "error", err)
				continue
			}
			ev.Snapshot = &snap
		case s.keys.ProcessListChannel:
			var pl model.ProcessList
			if err := json.Unmarshal([]byte(msg.Payload), &pl); err != nil {
				s.logger.Warn("discarding undecodable processlist event", "error", err)
				continue
			}
			ev.ProcessList = &pl
		default:
			continue
		}

		select {
		case sub.events <- ev:
		case <-sub.done:
			return
		}
	}
}
