// Package server exposes the HTTP surface: cached reads, live source reads,
// effective thresholds, health, Prometheus metrics and the WebSocket gateway.
//
// Routes:
//
//	GET /health              component status (200 healthy, 503 otherwise)
//	GET /db/latest           cached snapshot and process list (503 while cold)
//	GET /db/timeseries       windowed series, ?from=&to= in ms since epoch
//	GET /db/snapshot         live snapshot from the metrics source
//	GET /db/process-list     live session list, ?limit=&includeSleep=&minTimeSec=
//	GET /db/resources        live resource report (buffer pool, lock and slow query settings)
//	GET /config/thresholds   effective alert thresholds
//	GET /metrics             Prometheus exposition
//	GET /db/ws               live subscription endpoint
package server
