// Package database provides connection setup for the stores db-checker talks to.
//
//   - Redis: latest cache, snapshot history, cooldown marks, pub/sub, default lease store
//   - PostgreSQL: optional lease store (lock.backend: postgres)
//   - MySQL: the monitored database (DSN only; the source adapter owns the pool)
package database
