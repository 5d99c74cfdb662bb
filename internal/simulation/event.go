package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyRange is returned when the simulation window selects no rows.
var ErrEmptyRange = errors.New("no data available for the selected simulation period")

// RowPredictionError reports a failure to score one row mid-stream.
type RowPredictionError struct {
	Row int
	ID  string
	Err error
}

func (e *RowPredictionError) Error() string {
	return fmt.Sprintf("row %d (id %s): %v", e.Row, e.ID, e.Err)
}

func (e *RowPredictionError) Unwrap() error { return e.Err }

// Record is one scored row.
type Record struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Event is either a Record or a terminal error message.
type Event struct {
	Record *Record
	Err    string
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool { return e.Record == nil }

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Record != nil {
		return json.Marshal(e.Record)
	}
	return json.Marshal(map[string]string{"error": e.Err})
}

// UnmarshalJSON accepts either shape produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		*e = Event{Err: *probe.Error}
		return nil
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*e = Event{Record: &r}
	return nil
}

func recordEvent(r Record) Event { return Event{Record: &r} }

func errorEvent(err error) Event { return Event{Err: err.Error()} }
