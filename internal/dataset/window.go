package dataset

import (
	"fmt"
	"time"
)

// Window is a closed timestamp interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether Start <= t <= End.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// ParseWindow parses both boundaries with ParseTimestamp.
func ParseWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := ParseTimestamp(start, loc)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseTimestamp(end, loc)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

// Partition is the model-ready view of a set of labeled rows. Rows holds the
// table indices in source order; X and Y are aligned with it.
type Partition struct {
	Rows []int
	X    [][]float64
	Y    []int
}

// Len returns the number of rows in the partition.
func (p Partition) Len() int { return len(p.Rows) }

// Counts returns the number of negative and positive labels.
func (p Partition) Counts() (neg, pos int) {
	for _, y := range p.Y {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

// Split holds the train and test partitions of a table.
type Split struct {
	Train Partition
	Test  Partition
	// Unlabeled counts rows that fell in a window but had no Response value.
	Unlabeled int
}

// SplitWindows partitions t into train and test sets by timestamp. Windows
// may overlap, in which case a row lands in both partitions. Unlabeled rows
// are left out of both. The table itself is not modified.
func SplitWindows(t *Table, train, test Window) Split {
	var s Split
	s.Train, s.Unlabeled = partition(t, train)
	var u int
	s.Test, u = partition(t, test)
	s.Unlabeled += u
	return s
}

func partition(t *Table, w Window) (Partition, int) {
	var p Partition
	unlabeled := 0
	for _, i := range t.Select(w) {
		r := t.Rows[i]
		if !r.Labeled {
			unlabeled++
			continue
		}
		p.Rows = append(p.Rows, i)
		p.X = append(p.X, r.Features)
		p.Y = append(p.Y, r.Label)
	}
	return p, unlabeled
}
