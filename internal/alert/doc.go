// Package alert turns snapshots into threshold alerts.
//
// Evaluate is pure. The Engine adds per-(metric, level) cooldown marks in
// Redis so a sustained breach notifies once per cooldown window, batches the
// eligible alerts into one message at the highest level, and dispatches it
// asynchronously. Dispatch failures are logged and counted only.
package alert
