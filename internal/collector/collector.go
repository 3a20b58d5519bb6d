package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gus-bms/db-checker/internal/lease"
	"github.com/gus-bms/db-checker/internal/metrics"
	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/source"
)

// Recorder persists a collected pair. Record must be all-or-nothing.
type Recorder interface {
	Record(ctx context.Context, snap model.Snapshot, pl model.ProcessList) error
}

// Publisher hands fresh data to the distribution gateway.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap model.Snapshot) error
	PublishProcessList(ctx context.Context, pl model.ProcessList) error
}

// Observer receives every recorded snapshot. Observe must not block.
type Observer interface {
	Observe(ctx context.Context, snap model.Snapshot)
}

// ObserverFunc is a function adapter for Observer.
type ObserverFunc func(context.Context, model.Snapshot)

func (f ObserverFunc) Observe(ctx context.Context, s model.Snapshot) {
	f(ctx, s)
}

// Outcome is the result of a single tick.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeLeaderSkipped Outcome = "leader_skipped"
	OutcomeLeaseError    Outcome = "lease_error"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeStoreFailed   Outcome = "store_failed"
	OutcomePanic         Outcome = "panic"
)

// Config holds collector configuration.
type Config struct {
	Interval      time.Duration // Tick interval (default: 5s)
	FetchTimeout  time.Duration // Bound on both source calls (default: 4s)
	LeaseKey      string        // Resource key (default: "db:lock:poller")
	LeaseDuration time.Duration // Lease TTL (default: 8s)
	OwnerID       string        // This instance's lease owner id
	ProcessList   source.ProcessListOptions
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		FetchTimeout:  4 * time.Second,
		LeaseKey:      "db:lock:poller",
		LeaseDuration: 8 * time.Second,
		ProcessList:   source.ProcessListOptions{Limit: 80, MaxTextLength: 2000},
	}
}

// Deps are the collaborators a Collector drives. Publisher, Alerts and
// Metrics are optional.
type Deps struct {
	Lease     lease.Manager
	Source    source.Source
	Store     Recorder
	Publisher Publisher
	Alerts    Observer
	Metrics   *metrics.Metrics
}

// Collector periodically samples the source while it holds the lease.
type Collector struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	held bool
}

// New creates a new Collector.
func New(cfg Config, deps Deps, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
}

// Start begins the tick loop.
func (c *Collector) Start(ctx context.Context) error {
	if c.cfg.Interval <= 0 {
		return fmt.Errorf("collector interval must be > 0, got %s", c.cfg.Interval)
	}
	if c.cfg.OwnerID == "" {
		return errors.New("collector owner id is required")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("collector started",
		"interval", c.cfg.Interval,
		"lease_key", c.cfg.LeaseKey,
		"owner", c.cfg.OwnerID,
	)

	return nil
}

// Stop gracefully shuts down the collector. A tick in flight is cancelled.
func (c *Collector) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("collector stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLeader reports whether the last tick held the lease.
func (c *Collector) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// run is the main tick loop.
func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	// Tick immediately on start.
	c.TickOnce(c.ctx)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.TickOnce(c.ctx)
		}
	}
}

// TickOnce runs a single tick and reports its outcome. It never panics.
func (c *Collector) TickOnce(ctx context.Context) (outcome Outcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("collector tick panicked", "panic", r)
			outcome = OutcomePanic
		}
		c.deps.Metrics.ObserveTick(string(outcome), time.Since(start), outcome != OutcomeLeaderSkipped && outcome != OutcomeLeaseError)
	}()

	ok, err := c.deps.Lease.TryAcquireOrRenew(ctx, c.cfg.LeaseKey, c.cfg.OwnerID, c.cfg.LeaseDuration)
	if err != nil {
		c.setHeld(false)
		c.logger.Warn("lease check failed, skipping tick", "error", err)
		return OutcomeLeaseError
	}
	c.setHeld(ok)
	if !ok {
		c.logger.Debug("lease held by another instance, skipping tick")
		return OutcomeLeaderSkipped
	}

	snap, pl, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("collector fetch failed",
			"error", err,
			"duration", time.Since(start),
		)
		return OutcomeFetchFailed
	}

	if err := c.deps.Store.Record(ctx, snap, pl); err != nil {
		c.logger.Error("collector store write failed",
			"error", err,
			"duration", time.Since(start),
		)
		return OutcomeStoreFailed
	}

	c.publish(ctx, snap, pl)

	if c.deps.Alerts != nil {
		c.deps.Alerts.Observe(ctx, snap)
	}

	c.logger.Debug("collector tick complete",
		"sessions", pl.Total,
		"conn_usage_pct", snap.Connections.ConnUsagePct,
		"duration", time.Since(start),
	)

	return OutcomeOK
}

// fetch runs both source calls concurrently. Either failure fails the pair.
func (c *Collector) fetch(ctx context.Context) (model.Snapshot, model.ProcessList, error) {
	fetchCtx := ctx
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}

	var snap model.Snapshot
	var pl model.ProcessList

	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(guard("snapshot", func() error {
		s, err := c.deps.Source.FetchSnapshot(gctx)
		if err != nil {
			return fmt.Errorf("fetch snapshot: %w", err)
		}
		snap = s
		return nil
	}))
	g.Go(guard("processlist", func() error {
		p, err := c.deps.Source.FetchProcessList(gctx, c.cfg.ProcessList)
		if err != nil {
			return fmt.Errorf("fetch processlist: %w", err)
		}
		pl = p
		return nil
	}))

	if err := g.Wait(); err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, model.ErrTimeout) {
			err = fmt.Errorf("%w: %w", model.ErrTimeout, err)
		}
		return model.Snapshot{}, model.ProcessList{}, err
	}

	return snap, pl, nil
}

// guard turns a panic in a fetch goroutine into an error.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fetch %s panicked: %v", name, r)
			}
		}()
		return fn()
	}
}

// publish is best effort; the data is already recorded.
func (c *Collector) publish(ctx context.Context, snap model.Snapshot, pl model.ProcessList) {
	if c.deps.Publisher == nil {
		return
	}
	if err := c.deps.Publisher.PublishSnapshot(ctx, snap); err != nil {
		c.logger.Warn("publish snapshot failed", "error", err)
	}
	if err := c.deps.Publisher.PublishProcessList(ctx, pl); err != nil {
		c.logger.Warn("publish processlist failed", "error", err)
	}
}

func (c *Collector) setHeld(held bool) {
	c.mu.Lock()
	changed := c.held != held
	c.held = held
	c.mu.Unlock()

	c.deps.Metrics.SetLeaseHeld(held)
	if changed {
		c.logger.Info("lease ownership changed", "held", held, "owner", c.cfg.OwnerID)
	}
}
