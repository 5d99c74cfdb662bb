package dataset

import (
	"fmt"
	"strings"
)

// Well-known column names.
const (
	ResponseColumn  = "Response"
	TimestampColumn = "timestamp"
	MarkerColumn    = "synthetic_timestamp"
)

// Schema describes the role of every column in a dataset header. It is
// determined once at load time; nothing downstream inspects column names.
type Schema struct {
	Header []string

	ResponseColumn  string
	TimestampColumn string // empty when timestamps are synthesized
	MarkerColumn    string // synthetic_timestamp, when present alongside timestamp
	IDColumn        string // empty when the source has no identifier column
	FeatureColumns  []string

	// Synthesized is true when the source carries no timestamp column at all.
	Synthesized bool

	index map[string]int
}

// DetectSchema classifies the columns of a CSV header.
//
// The timestamp column is "timestamp" when present, otherwise
// "synthetic_timestamp". When neither exists the schema is marked as
// synthesized and timestamps are generated by SyntheticTimestamp during load.
// The identifier column is the first column named "id" (case-insensitive).
func DetectSchema(header []string) (Schema, error) {
	s := Schema{
		Header: append([]string(nil), header...),
		index:  make(map[string]int, len(header)),
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return Schema{}, fmt.Errorf("%w: column %d has an empty name", ErrDataLoad, i+1)
		}
		if _, dup := s.index[h]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate column %q", ErrDataLoad, h)
		}
		s.Header[i] = h
		s.index[h] = i
	}

	if _, ok := s.index[ResponseColumn]; !ok {
		return Schema{}, fmt.Errorf("%w: CSV must contain %q column", ErrDataLoad, ResponseColumn)
	}
	s.ResponseColumn = ResponseColumn

	_, hasTS := s.index[TimestampColumn]
	_, hasMarker := s.index[MarkerColumn]
	switch {
	case hasTS:
		s.TimestampColumn = TimestampColumn
		if hasMarker {
			s.MarkerColumn = MarkerColumn
		}
	case hasMarker:
		s.TimestampColumn = MarkerColumn
	default:
		s.Synthesized = true
	}

	for _, h := range s.Header {
		if s.IDColumn == "" && strings.EqualFold(h, "id") {
			s.IDColumn = h
		}
	}

	for _, h := range s.Header {
		switch h {
		case s.ResponseColumn, s.TimestampColumn, s.MarkerColumn, s.IDColumn:
			continue
		}
		s.FeatureColumns = append(s.FeatureColumns, h)
	}
	return s, nil
}

// Index returns the position of a column in the header.
func (s Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}
