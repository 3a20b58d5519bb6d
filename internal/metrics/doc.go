// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Collector tick outcomes and durations, lease ownership
//   - Gateway broadcasts, skipped encodes, outbox drops, live connections
//   - Alerts dispatched per level and notification failures
//
// All methods are safe on a nil *Metrics so components can run without it.
package metrics
