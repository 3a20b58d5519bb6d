// Package source defines the Metrics Source the collector samples.
package source

import (
	"context"

	"github.com/gus-bms/db-checker/internal/model"
)

// Source produces snapshots and session lists on demand. Implementations may
// fail or time out; callers bound each call with a context deadline.
type Source interface {
	FetchSnapshot(ctx context.Context) (model.Snapshot, error)
	FetchProcessList(ctx context.Context, opts ProcessListOptions) (model.ProcessList, error)
}

// Limits for ProcessListOptions.
const (
	DefaultLimit         = 50
	MaxLimit             = 200
	DefaultMaxTextLength = 2000
	MinMaxTextLength     = 100
)

// ProcessListOptions filters and caps a session list.
type ProcessListOptions struct {
	Limit             int  // 1..200, 0 = default 50
	IncludeIdle       bool // Include sessions in the Sleep command state
	MinElapsedSeconds int  // Only sessions at least this old
	MaxTextLength     int  // SQL text cap in characters, >= 100, 0 = default 2000
}

// Normalize clamps options into their valid ranges.
func (o ProcessListOptions) Normalize() ProcessListOptions {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	o.Limit = min(max(o.Limit, 1), MaxLimit)

	o.MinElapsedSeconds = max(o.MinElapsedSeconds, 0)

	if o.MaxTextLength == 0 {
		o.MaxTextLength = DefaultMaxTextLength
	}
	o.MaxTextLength = max(o.MaxTextLength, MinMaxTextLength)

	return o
}
