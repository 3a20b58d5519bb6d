package alert

import (
	"github.com/gus-bms/db-checker/internal/model"
)

// LevelFor classifies value against a pair. Critical is checked first.
func LevelFor(value float64, t Threshold) (model.Level, bool) {
	switch {
	case value >= t.Critical:
		return model.LevelCritical, true
	case value >= t.Warn:
		return model.LevelWarn, true
	default:
		return "", false
	}
}

type rule struct {
	key   string
	label string
	unit  string
	value func(model.Snapshot) (float64, bool)
	pick  func(Thresholds) Threshold
}

var rules = []rule{
	{
		key:   KeyConnUsagePct,
		label: "Connection usage",
		unit:  "%",
		value: func(s model.Snapshot) (float64, bool) { return s.Connections.ConnUsagePct, true },
		pick:  func(t Thresholds) Threshold { return t.ConnUsagePct },
	},
	{
		key:   KeyThreadsRunning,
		label: "Threads running",
		value: func(s model.Snapshot) (float64, bool) { return float64(s.Connections.ThreadsRunning), true },
		pick:  func(t Thresholds) Threshold { return t.ThreadsRunning },
	},
	{
		key:   KeyRowLockCurrentWaits,
		label: "Row lock waits (current)",
		value: func(s model.Snapshot) (float64, bool) {
			// nil is unknown, not zero.
			if s.InnodbLocks.RowLockCurrentWaits == nil {
				return 0, false
			}
			return float64(*s.InnodbLocks.RowLockCurrentWaits), true
		},
		pick: func(t Thresholds) Threshold { return t.RowLockCurrentWaits },
	},
	{
		key:   KeySlowQueries,
		label: "Slow queries",
		value: func(s model.Snapshot) (float64, bool) { return float64(s.Traffic.SlowQueries), true },
		pick:  func(t Thresholds) Threshold { return t.SlowQueries },
	},
}

// Evaluate returns one alert per metric at or above its warn threshold,
// in a fixed metric order.
func Evaluate(snap model.Snapshot, t Thresholds) []model.AlertMetric {
	var out []model.AlertMetric
	for _, r := range rules {
		v, ok := r.value(snap)
		if !ok {
			continue
		}
		th := r.pick(t)
		level, ok := LevelFor(v, th)
		if !ok {
			continue
		}
		out = append(out, model.AlertMetric{
			Key:      r.key,
			Label:    r.label,
			Unit:     r.unit,
			Value:    v,
			Warn:     th.Warn,
			Critical: th.Critical,
			Level:    level,
		})
	}
	return out
}

// TopLevel returns the highest level in alerts.
func TopLevel(alerts []model.AlertMetric) model.Level {
	top := model.LevelWarn
	for _, a := range alerts {
		if a.Level.Rank() > top.Rank() {
			top = a.Level
		}
	}
	return top
}
