package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gus-bms/db-checker/internal/collector"
	"github.com/gus-bms/db-checker/internal/store"
)

// Subscriber opens a broadcast subscription on the store.
type Subscriber interface {
	Subscribe(ctx context.Context) (*store.Subscription, error)
}

// Relay feeds store broadcasts into a local hub so every instance serves its
// own connections while only the leader collects.
type Relay struct {
	source Subscriber
	sink   collector.Publisher
	logger *slog.Logger

	sub    *store.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a relay from source into sink (normally a *Hub).
func NewRelay(source Subscriber, sink collector.Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		source: source,
		sink:   sink,
		logger: logger,
	}
}

// Start subscribes and begins relaying. The subscription is confirmed
// before Start returns.
func (r *Relay) Start(ctx context.Context) error {
	sub, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.sub = sub
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("broadcast relay started")
	return nil
}

// Stop closes the subscription and waits for the relay loop to exit.
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.sub != nil {
		r.sub.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("broadcast relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.sub.Events():
			if !ok {
				return
			}
			r.forward(ev)
		}
	}
}

func (r *Relay) forward(ev store.Event) {
	var err error
	switch {
	case ev.Snapshot != nil:
		err = r.sink.PublishSnapshot(r.ctx, *ev.Snapshot)
	case ev.ProcessList != nil:
		err = r.sink.PublishProcessList(r.ctx, *ev.ProcessList)
	}
	if err != nil {
		r.logger.Warn("relay delivery failed", "error", err)
	}
}
