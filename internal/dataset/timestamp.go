package dataset

import (
	"fmt"
	"strings"
	"time"
)

// DisplayLayout is the layout used for timestamps in simulation output.
const DisplayLayout = "2006-01-02 15:04:05"

// SyntheticTimestamp returns the generated timestamp for the 0-based row i of
// a dataset without a timestamp column. Row 0 is 2025-01-01 10:00:00 wall
// clock in loc (UTC when loc is nil); each following row is one second later.
func SyntheticTimestamp(i int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	anchor := time.Date(2025, time.January, 1, 10, 0, 0, 0, loc)
	return anchor.Add(time.Duration(i) * time.Second)
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s as a timestamp. Values carrying a UTC offset keep
// it; values without one are interpreted in loc (UTC when loc is nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t as YYYY-MM-DD HH:MM:SS in its own location.
func FormatTimestamp(t time.Time) string {
	return t.Format(DisplayLayout)
}

// CalendarFeatureNames lists the derived features in vector order.
var CalendarFeatureNames = []string{"year", "month", "day", "day_of_week", "hour"}

// CalendarFeatures derives year, month, day, day of week (Monday = 0) and
// hour from t, evaluated in t's own location.
func CalendarFeatures(t time.Time) [5]float64 {
	weekday := (int(t.Weekday()) + 6) % 7
	return [5]float64{
		float64(t.Year()),
		float64(t.Month()),
		float64(t.Day()),
		float64(weekday),
		float64(t.Hour()),
	}
}
