package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/gbdt"
	"github.com/vsharma-va/ABB-Final/internal/telemetry"
)

// Request describes one training invocation.
type Request struct {
	Kind   Kind
	Source string // path to a CSV dataset
	Train  dataset.Window
	Test   dataset.Window
}

// Run is the record of a training attempt, successful or not.
type Run struct {
	ID        string
	Kind      Kind
	Source    string
	Train     dataset.Window
	Test      dataset.Window
	TrainRows int
	TestRows  int
	Weight    float64
	StartedAt time.Time
	Duration  time.Duration
	Metrics   *Metrics
	Err       error
}

// RunRecorder persists training attempts.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Config holds the Trainer's dependencies. Only Repo is required.
type Config struct {
	Repo     Repository
	Recorder RunRecorder
	Params   *gbdt.Params
	Location *time.Location // for timestamps without an offset
	Logger   *slog.Logger
}

// Trainer fits models and publishes them to a Repository.
type Trainer struct {
	repo     Repository
	recorder RunRecorder
	params   gbdt.Params
	loadOpts dataset.LoadOptions
	logger   *slog.Logger
}

// NewTrainer creates a Trainer. Params default to gbdt.DefaultParams.
func NewTrainer(cfg Config) *Trainer {
	t := &Trainer{
		repo:     cfg.Repo,
		recorder: cfg.Recorder,
		params:   gbdt.DefaultParams(),
		loadOpts: dataset.LoadOptions{Location: cfg.Location},
		logger:   cfg.Logger,
	}
	if cfg.Params != nil {
		t.params = *cfg.Params
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// ImbalanceWeight returns the ratio of negative to positive labels. A split
// without positive or without negative rows is rejected with
// ErrInvalidTrainingData rather than producing an infinite or zero weight.
func ImbalanceWeight(y []int) (float64, error) {
	var neg, pos int
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 {
		return 0, fmt.Errorf("%w: training window has no positive (Response=1) rows", ErrInvalidTrainingData)
	}
	if neg == 0 {
		return 0, fmt.Errorf("%w: training window has no negative (Response=0) rows", ErrInvalidTrainingData)
	}
	return float64(neg) / float64(pos), nil
}

// Train loads the dataset, fits a classifier on the training window,
// predicts the test window and replaces the stored state for req.Kind.
// On any error the previously stored state is left as it was.
func (t *Trainer) Train(ctx context.Context, req Request) (Metrics, error) {
	run := Run{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		Source:    req.Source,
		Train:     req.Train,
		Test:      req.Test,
		StartedAt: time.Now().UTC(),
	}

	m, err := t.train(ctx, req, &run)
	run.Duration = time.Since(run.StartedAt)
	run.Err = err
	if err == nil {
		run.Metrics = &m
	}

	status := "ok"
	if err != nil {
		status = "error"
		t.logger.Warn("training failed", "run_id", run.ID, "kind", req.Kind, "error", err)
	} else {
		t.logger.Info("training completed",
			"run_id", run.ID,
			"kind", req.Kind,
			"train_rows", run.TrainRows,
			"test_rows", run.TestRows,
			"scale_pos_weight", run.Weight,
			"accuracy", m.Accuracy,
			"duration_ms", run.Duration.Milliseconds(),
		)
	}
	telemetry.ObserveTraining(string(req.Kind), status, run.Duration)

	if t.recorder != nil {
		if recErr := t.recorder.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
			t.logger.Error("failed to record training run", "run_id", run.ID, "error", recErr)
		}
	}
	return m, err
}

func (t *Trainer) train(ctx context.Context, req Request, run *Run) (Metrics, error) {
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return Metrics{}, err
	}

	table, err := dataset.LoadFile(req.Source, t.loadOpts)
	if err != nil {
		return Metrics{}, err
	}

	split := dataset.SplitWindows(table, req.Train, req.Test)
	run.TrainRows, run.TestRows = split.Train.Len(), split.Test.Len()
	if split.Unlabeled > 0 {
		t.logger.Warn("skipping rows without a Response value", "rows", split.Unlabeled)
	}
	if overlaps(req.Train, req.Test) {
		t.logger.Warn("training and test windows overlap", "train", req.Train.String(), "test", req.Test.String())
	}

	if split.Train.Len() == 0 {
		return Metrics{}, fmt.Errorf("%w: training window %s selects no labeled rows", ErrInvalidTrainingData, req.Train)
	}
	if split.Test.Len() == 0 {
		return Metrics{}, fmt.Errorf("%w: test window %s selects no labeled rows", ErrInvalidTrainingData, req.Test)
	}

	weight, err := ImbalanceWeight(split.Train.Y)
	if err != nil {
		return Metrics{}, err
	}
	run.Weight = weight

	params := t.params
	params.ScalePosWeight = weight
	clf, err := gbdt.Fit(ctx, split.Train.X, split.Train.Y, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Metrics{}, err
		}
		return Metrics{}, fmt.Errorf("fitting model: %w", err)
	}
	t.logger.Debug("model fitted",
		"run_id", run.ID,
		"trees", clf.NumTrees(),
		"features", clf.NumFeatures(),
		"scale_pos_weight", weight,
	)

	preds := make([]int, split.Test.Len())
	for i, x := range split.Test.X {
		p, err := clf.Predict(x)
		if err != nil {
			return Metrics{}, fmt.Errorf("predicting test row %d: %w", split.Test.Rows[i], err)
		}
		preds[i] = p
	}

	state := &State{
		RunID:       run.ID,
		Kind:        req.Kind,
		Model:       clf,
		Table:       table,
		Test:        split.Test,
		Predictions: preds,
		LossCurve:   clf.LossCurve(),
		TrainedAt:   time.Now().UTC(),
	}
	t.repo.Store(req.Kind, state)
	return MetricsFor(state), nil
}

// Metrics evaluates the stored model for kind. Before any training it
// returns the soft-error result rather than an error.
func (t *Trainer) Metrics(kind Kind) Metrics {
	s, ok := t.repo.Load(kind)
	if !ok {
		return NotTrainedMetrics()
	}
	return MetricsFor(s)
}

// State returns the stored state for kind.
func (t *Trainer) State(kind Kind) (*State, error) {
	s, ok := t.repo.Load(kind)
	if !ok {
		return nil, ErrModelNotTrained
	}
	return s, nil
}

func overlaps(a, b dataset.Window) bool {
	return !a.End.Before(b.Start) && !b.End.Before(a.Start)
}
