package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gus-bms/db-checker/internal/metrics"
	"github.com/gus-bms/db-checker/internal/model"
)

// Notifier delivers one batched alert message.
type Notifier interface {
	Notify(ctx context.Context, level model.Level, title, body string) error
}

// Config holds engine configuration.
type Config struct {
	Thresholds      Thresholds
	Cooldown        time.Duration // Per (metric, level) mark TTL (default: 60s)
	DispatchTimeout time.Duration // Bound on one evaluate-and-notify pass (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		Cooldown:        60 * time.Second,
		DispatchTimeout: 10 * time.Second,
	}
}

// Engine evaluates snapshots and dispatches alert batches in the background.
type Engine struct {
	cfg      Config
	notifier Notifier
	cooldown Cooldown
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates an Engine. A nil notifier disables alerting entirely.
func New(cfg Config, notifier Notifier, cooldown Cooldown, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	return &Engine{
		cfg:      cfg,
		notifier: notifier,
		cooldown: cooldown,
		metrics:  m,
		logger:   logger,
	}
}

// Thresholds returns the effective thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.cfg.Thresholds
}

// Enabled reports whether a notifier is configured.
func (e *Engine) Enabled() bool {
	return e.notifier != nil
}

// Observe schedules evaluation of snap and returns immediately.
func (e *Engine) Observe(ctx context.Context, snap model.Snapshot) {
	if e.notifier == nil {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("alert dispatch panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		defer cancel()
		e.Process(ctx, snap)
	}()
}

// Process evaluates snap, filters by cooldown and sends one batch.
// It reports whether a notification was sent successfully.
func (e *Engine) Process(ctx context.Context, snap model.Snapshot) bool {
	if e.notifier == nil {
		return false
	}

	alerts := Evaluate(snap, e.cfg.Thresholds)
	if len(alerts) == 0 {
		return false
	}

	eligible := e.filterCooldown(ctx, alerts)
	if len(eligible) == 0 {
		return false
	}

	level := TopLevel(eligible)
	if err := e.notifier.Notify(ctx, level, Title(level), Body(snap.TS, eligible)); err != nil {
		e.metrics.IncNotifyFailure()
		e.logger.Warn("alert notification failed",
			"level", level,
			"alerts", len(eligible),
			"error", err,
		)
		return false
	}

	e.metrics.IncAlert(string(level))
	e.logger.Info("alert notification sent",
		"level", level,
		"alerts", len(eligible),
	)
	return true
}

func (e *Engine) filterCooldown(ctx context.Context, alerts []model.AlertMetric) []model.AlertMetric {
	if e.cooldown == nil {
		return alerts
	}

	eligible := make([]model.AlertMetric, 0, len(alerts))
	for _, a := range alerts {
		ok, err := e.cooldown.Mark(ctx, a.Key, a.Level, e.cfg.Cooldown)
		if err != nil {
			e.logger.Warn("cooldown check failed", "key", a.Key, "level", a.Level, "error", err)
			continue
		}
		if ok {
			eligible = append(eligible, a)
		}
	}
	return eligible
}

// Flush waits for in-flight dispatches.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new observations and waits for in-flight dispatches.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.Flush(ctx)
}
