// Package simulation replays a time window of the training dataset through
// the stored model, emitting one paced prediction event per row.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/telemetry"
	"github.com/vsharma-va/ABB-Final/internal/training"
)

// DefaultInterval is the pause between two emitted rows.
const DefaultInterval = time.Second

// State is the position of a stream in its lifecycle.
type State int

const (
	AwaitingModel State = iota
	RangeSelected
	Streaming
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case RangeSelected:
		return "range_selected"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Summary describes a finished stream. It is never emitted on the stream.
type Summary struct {
	State         State
	Selected      int
	Total         int
	Pass          int
	Fail          int
	AvgConfidence float64
}

// Emit delivers one event to the consumer. A non-nil error means the
// consumer is gone and the stream stops.
type Emit func(Event) error

// Engine runs simulation streams against a model repository.
type Engine struct {
	repo     training.Repository
	kind     training.Kind
	interval time.Duration
	logger   *slog.Logger
}

// NewEngine creates an Engine reading the slot for kind. If interval is
// negative it defaults to DefaultInterval; zero disables pacing.
func NewEngine(repo training.Repository, kind training.Kind, interval time.Duration) *Engine {
	if interval < 0 {
		interval = DefaultInterval
	}
	return &Engine{
		repo:     repo,
		kind:     kind,
		interval: interval,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for stream outcomes and returns e.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Run streams predictions for every row of the stored dataset whose
// timestamp falls in w, in source order.
//
// A missing model, an empty selection or a failed row each produce exactly
// one error event and end the stream; the returned error names the cause.
// Records already emitted are not retracted. Cancelling ctx, or an error
// from emit, stops the stream before the next row.
func (e *Engine) Run(ctx context.Context, w dataset.Window, emit Emit) (Summary, error) {
	sum := Summary{State: AwaitingModel}
	finish := telemetry.SimulationStarted()
	defer func() { finish(sum.State.String()) }()

	// Read the slot once; a concurrent retrain does not affect this stream.
	st, ok := e.repo.Load(e.kind)
	if !ok {
		err := fmt.Errorf("%w: call /train-model first", training.ErrModelNotTrained)
		return e.abort(&sum, emit, err)
	}

	rows := st.Table.Select(w)
	sum.State, sum.Selected = RangeSelected, len(rows)
	if len(rows) == 0 {
		return e.abort(&sum, emit, ErrEmptyRange)
	}

	limit := rate.Inf
	if e.interval > 0 {
		limit = rate.Every(e.interval)
	}
	pacer := rate.NewLimiter(limit, 1)

	sum.State = Streaming
	var confSum float64
	for _, i := range rows {
		if err := pacer.Wait(ctx); err != nil {
			sum.State = Aborted
			return sum, ctxErr(ctx, err)
		}

		rec, err := e.score(st, i)
		if err != nil {
			return e.abort(&sum, emit, err)
		}
		if err := emit(recordEvent(rec)); err != nil {
			sum.State = Aborted
			return sum, fmt.Errorf("emitting row %d: %w", i, err)
		}
		telemetry.SimulationEvent("record")

		sum.Total++
		confSum += rec.Confidence
		if rec.Prediction == "Fail" {
			sum.Fail++
		} else {
			sum.Pass++
		}
	}

	sum.State = Completed
	sum.AvgConfidence = confSum / float64(sum.Total)
	e.logger.Info("simulation completed",
		"rows", sum.Total,
		"pass", sum.Pass,
		"fail", sum.Fail,
		"avg_confidence", sum.AvgConfidence,
	)
	return sum, nil
}

func (e *Engine) abort(sum *Summary, emit Emit, cause error) (Summary, error) {
	sum.State = Aborted
	e.logger.Warn("simulation aborted", "error", cause, "emitted", sum.Total)
	if err := emit(errorEvent(cause)); err != nil {
		return *sum, fmt.Errorf("emitting error event: %w", err)
	}
	telemetry.SimulationEvent("error")
	return *sum, cause
}

func (e *Engine) score(st *training.State, i int) (rec Record, err error) {
	row := st.Table.Rows[i]
	defer func() {
		if r := recover(); r != nil {
			err = &RowPredictionError{Row: i, ID: row.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	x, err := st.Table.FeatureVector(i)
	if err != nil {
		return Record{}, &RowPredictionError{Row: i, ID: row.ID, Err: err}
	}
	proba, err := st.Model.PredictProba(x)
	if err != nil {
		return Record{}, &RowPredictionError{Row: i, ID: row.ID, Err: err}
	}

	class := 0
	if proba[1] > proba[0] {
		class = 1
	}
	prediction := "Pass"
	if class == 1 {
		prediction = "Fail"
	}
	return Record{
		ID:         row.ID,
		Timestamp:  dataset.FormatTimestamp(row.Timestamp),
		Prediction: prediction,
		Confidence: decimal.NewFromFloat(proba[class]).Round(4).InexactFloat64(),
	}, nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
