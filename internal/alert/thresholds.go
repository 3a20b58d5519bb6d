package alert

// Metric keys.
const (
	KeyConnUsagePct        = "conn_usage_pct"
	KeyThreadsRunning      = "threads_running"
	KeyRowLockCurrentWaits = "row_lock_current_waits"
	KeySlowQueries         = "slow_queries"
)

// Threshold is a warn/critical pair. A value at or above Critical is
// critical; at or above Warn is warn.
type Threshold struct {
	Warn     float64 `json:"warn"`
	Critical float64 `json:"critical"`
}

// Thresholds holds one pair per evaluated metric.
type Thresholds struct {
	ConnUsagePct        Threshold `json:"conn_usage_pct"`
	ThreadsRunning      Threshold `json:"threads_running"`
	RowLockCurrentWaits Threshold `json:"row_lock_current_waits"`
	SlowQueries         Threshold `json:"slow_queries"`
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConnUsagePct:        Threshold{Warn: 70, Critical: 85},
		ThreadsRunning:      Threshold{Warn: 50, Critical: 100},
		RowLockCurrentWaits: Threshold{Warn: 3, Critical: 10},
		SlowQueries:         Threshold{Warn: 10, Critical: 50},
	}
}

// Override replaces either side of a pair when set.
type Override struct {
	Warn     *float64
	Critical *float64
}

func (o Override) apply(t Threshold) Threshold {
	if o.Warn != nil {
		t.Warn = *o.Warn
	}
	if o.Critical != nil {
		t.Critical = *o.Critical
	}
	return t
}

// Overrides holds optional per-metric overrides.
type Overrides struct {
	ConnUsagePct        Override
	ThreadsRunning      Override
	RowLockCurrentWaits Override
	SlowQueries         Override
}

// Apply returns base with every set override applied.
func (o Overrides) Apply(base Thresholds) Thresholds {
	return Thresholds{
		ConnUsagePct:        o.ConnUsagePct.apply(base.ConnUsagePct),
		ThreadsRunning:      o.ThreadsRunning.apply(base.ThreadsRunning),
		RowLockCurrentWaits: o.RowLockCurrentWaits.apply(base.RowLockCurrentWaits),
		SlowQueries:         o.SlowQueries.apply(base.SlowQueries),
	}
}
