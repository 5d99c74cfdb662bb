// Package dataset loads timestamped tabular data, derives calendar features
// and partitions rows into time windows.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrDataLoad is returned when a dataset cannot be read or is malformed.
var ErrDataLoad = errors.New("data load error")

// LoadOptions controls how a dataset is parsed.
type LoadOptions struct {
	// Location is applied to timestamps that carry no UTC offset.
	Location *time.Location
}

// Row is one record of a loaded dataset.
type Row struct {
	Index     int
	ID        string
	Timestamp time.Time
	Label     int
	Labeled   bool
	// Features holds the source feature columns followed by the calendar
	// features. Missing values are NaN.
	Features []float64
}

// Table is a loaded dataset. It is not modified after Load returns, so it
// can be shared between goroutines.
type Table struct {
	Schema       Schema
	FeatureNames []string
	Rows         []Row
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDataLoad, path, err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load reads a CSV dataset, detects its schema, synthesizes timestamps when
// the source has none and derives calendar features for every row.
func Load(r io.Reader, opts LoadOptions) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrDataLoad)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrDataLoad, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	schema, err := DetectSchema(header)
	if err != nil {
		return nil, err
	}

	featureIdx := make([]int, len(schema.FeatureColumns))
	for i, c := range schema.FeatureColumns {
		featureIdx[i], _ = schema.Index(c)
	}
	respIdx, _ := schema.Index(schema.ResponseColumn)
	tsIdx, idIdx := -1, -1
	if !schema.Synthesized {
		tsIdx, _ = schema.Index(schema.TimestampColumn)
	}
	if schema.IDColumn != "" {
		idIdx, _ = schema.Index(schema.IDColumn)
	}

	t := &Table{
		Schema:       schema,
		FeatureNames: append(append([]string(nil), schema.FeatureColumns...), CalendarFeatureNames...),
	}

	for n := 0; ; n++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrDataLoad, n+1, err)
		}

		row := Row{Index: n, Features: make([]float64, 0, len(t.FeatureNames))}

		if schema.Synthesized {
			row.Timestamp = SyntheticTimestamp(n, opts.Location)
		} else {
			ts, err := ParseTimestamp(rec[tsIdx], opts.Location)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrDataLoad, n+1, schema.TimestampColumn, err)
			}
			row.Timestamp = ts
		}

		if idIdx >= 0 {
			row.ID = strings.TrimSpace(rec[idIdx])
		} else {
			row.ID = strconv.Itoa(n)
		}

		switch v := strings.TrimSpace(rec[respIdx]); v {
		case "":
		case "0", "0.0":
			row.Labeled = true
		case "1", "1.0":
			row.Label, row.Labeled = 1, true
		default:
			return nil, fmt.Errorf("%w: row %d: %q must be 0 or 1, got %q", ErrDataLoad, n+1, schema.ResponseColumn, v)
		}

		for i, idx := range featureIdx {
			v, err := parseFeature(rec[idx])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrDataLoad, n+1, schema.FeatureColumns[i], err)
			}
			row.Features = append(row.Features, v)
		}
		cal := CalendarFeatures(row.Timestamp)
		row.Features = append(row.Features, cal[:]...)

		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseFeature(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Select returns the indices of rows whose timestamp falls in w, in source
// order.
func (t *Table) Select(w Window) []int {
	var out []int
	for i := range t.Rows {
		if w.Contains(t.Rows[i].Timestamp) {
			out = append(out, i)
		}
	}
	return out
}

// FeatureVector returns a copy of the model input for row i.
func (t *Table) FeatureVector(i int) ([]float64, error) {
	if i < 0 || i >= len(t.Rows) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, len(t.Rows))
	}
	f := t.Rows[i].Features
	if len(f) != len(t.FeatureNames) {
		return nil, fmt.Errorf("row %d has %d features, want %d", i, len(f), len(t.FeatureNames))
	}
	return append([]float64(nil), f...), nil
}

// Bounds returns the earliest and latest timestamps in the table.
func (t *Table) Bounds() (earliest, latest time.Time, ok bool) {
	for i, r := range t.Rows {
		if i == 0 || r.Timestamp.Before(earliest) {
			earliest = r.Timestamp
		}
		if i == 0 || r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return earliest, latest, len(t.Rows) > 0
}
