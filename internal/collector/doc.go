// Package collector implements the Collector/Scheduler component.
//
// The Collector:
//   - Ticks every interval (default 5s), once immediately on start
//   - Collects only while holding the poller lease; otherwise the tick is a no-op
//   - Fetches the snapshot and process list concurrently under a fetch timeout
//   - Records both atomically, then publishes them and feeds the alert engine
//   - Recovers and logs any failing tick without stopping the loop
package collector
