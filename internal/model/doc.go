// Package model defines shared data types used across the db-checker pipeline.
//
// Conventions:
//   - Timestamps: time.Time, serialized as RFC 3339 strings ("ts")
//   - Series scores: int64 milliseconds since Unix epoch
//   - JSON field names: snake_case, matching the cached wire format
package model
