package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata summarizes a dataset for display before training.
type Metadata struct {
	TotalRecords    int       `json:"total_records"`
	TotalColumns    int       `json:"total_columns"`
	PassRatePercent float64   `json:"pass_rate_percent"`
	Earliest        time.Time `json:"earliest_timestamp"`
	Latest          time.Time `json:"latest_timestamp"`
}

// Summarize computes Metadata for t. TotalColumns counts the columns of the
// processed file, which always carries a timestamp column.
func Summarize(t *Table) Metadata {
	m := Metadata{
		TotalRecords: len(t.Rows),
		TotalColumns: len(t.Schema.Header),
	}
	if t.Schema.Synthesized {
		m.TotalColumns++
	}

	pass := 0
	for _, r := range t.Rows {
		if r.Labeled && r.Label == 0 {
			pass++
		}
	}
	if m.TotalRecords > 0 {
		m.PassRatePercent = decimal.NewFromInt(int64(pass)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(m.TotalRecords))).
			Round(2).
			InexactFloat64()
	}

	if earliest, latest, ok := t.Bounds(); ok {
		m.Earliest, m.Latest = earliest, latest
	}
	return m
}

// RangeInput is a pair of raw window boundaries.
type RangeInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RangeSet groups the three windows a user picks before training.
type RangeSet struct {
	Training   RangeInput `json:"training"`
	Testing    RangeInput `json:"testing"`
	Simulation RangeInput `json:"simulation"`
}

// RangeSummary describes one parsed window.
type RangeSummary struct {
	Name        string    `json:"name"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Days        int       `json:"days"`
	RecordCount int       `json:"record_count"`
}

// RangeReport is the outcome of ValidateRanges.
type RangeReport struct {
	Valid   bool           `json:"valid"`
	Errors  []string       `json:"errors"`
	Summary []RangeSummary `json:"summary,omitempty"`
}

// ValidateRanges checks that the three windows parse, are ordered, lie
// within the dataset bounds and follow each other without overlap. It is
// advisory: training accepts overlapping windows.
func ValidateRanges(t *Table, rs RangeSet, loc *time.Location) RangeReport {
	rep := RangeReport{Errors: []string{}}

	named := []struct {
		name string
		in   RangeInput
	}{
		{"Training", rs.Training},
		{"Testing", rs.Testing},
		{"Simulation", rs.Simulation},
	}
	windows := make([]Window, len(named))
	for i, n := range named {
		w, err := ParseWindow(n.in.Start, n.in.End, loc)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("Invalid %s %v.", n.name, err))
			continue
		}
		windows[i] = w
	}
	if len(rep.Errors) > 0 {
		return rep
	}

	meta := Summarize(t)
	for i, n := range named {
		w := windows[i]
		if w.Start.Before(meta.Earliest) {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s start must be on or after %s.", n.name, FormatTimestamp(meta.Earliest)))
		}
		if w.End.After(meta.Latest) {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s end must be on or before %s.", n.name, FormatTimestamp(meta.Latest)))
		}
		if w.Start.After(w.End) {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s start date must be before or same as its end date.", n.name))
		}
	}
	if !windows[1].Start.After(windows[0].End) {
		rep.Errors = append(rep.Errors, "Testing period must begin after the Training period ends.")
	}
	if !windows[2].Start.After(windows[1].End) {
		rep.Errors = append(rep.Errors, "Simulation period must begin after the Testing period ends.")
	}

	for i, n := range named {
		w := windows[i]
		rep.Summary = append(rep.Summary, RangeSummary{
			Name:        n.name,
			Start:       w.Start,
			End:         w.End,
			Days:        max(0, int(math.Ceil(w.End.Sub(w.Start).Hours()/24))),
			RecordCount: len(t.Select(w)),
		})
	}
	rep.Valid = len(rep.Errors) == 0
	return rep
}
