package alert

import (
	"strconv"
	"strings"
	"time"

	"github.com/gus-bms/db-checker/internal/model"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Title returns the message title for a batch level.
func Title(level model.Level) string {
	return "DB Alert (" + strings.ToUpper(string(level)) + ")"
}

// Body renders the batch: a time line followed by one line per alert.
func Body(ts time.Time, alerts []model.AlertMetric) string {
	lines := make([]string, 0, len(alerts)+1)
	lines = append(lines, "time: "+ts.UTC().Format(timeLayout))
	for _, a := range alerts {
		lines = append(lines, Line(a))
	}
	return strings.Join(lines, "\n")
}

// Line renders one alert, e.g.
// "• Connection usage: 90% (warn 70%, critical 85%)".
func Line(a model.AlertMetric) string {
	var b strings.Builder
	b.WriteString("• ")
	b.WriteString(a.Label)
	b.WriteString(": ")
	b.WriteString(num(a.Value))
	b.WriteString(a.Unit)
	b.WriteString(" (warn ")
	b.WriteString(num(a.Warn))
	b.WriteString(a.Unit)
	b.WriteString(", critical ")
	b.WriteString(num(a.Critical))
	b.WriteString(a.Unit)
	b.WriteString(")")
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
