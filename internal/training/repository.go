// Package training fits the classifier on a time-windowed split of a
// dataset and keeps the most recent result available to the simulator.
package training

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
)

var (
	// ErrInvalidTrainingData is returned when the selected windows cannot
	// produce a usable model, e.g. no positive rows in the training window.
	ErrInvalidTrainingData = errors.New("invalid training data")
	// ErrModelNotTrained is returned when a trained model is required but
	// none has been stored yet.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrUnsupportedModel is returned for model kinds this build cannot fit.
	ErrUnsupportedModel = errors.New("unsupported model")
)

// Kind names a model family.
type Kind string

const (
	KindXGBoost  Kind = "xgboost"
	KindLightGBM Kind = "lightgbm"
)

// SupportedKinds lists the kinds that can be trained.
var SupportedKinds = []Kind{KindXGBoost}

// ParseKind validates a model selector.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindXGBoost:
		return k, nil
	case KindLightGBM:
		return "", fmt.Errorf("%w: %q is not available", ErrUnsupportedModel, s)
	default:
		return "", fmt.Errorf("%w: unknown model %q", ErrUnsupportedModel, s)
	}
}

// Model is a fitted binary classifier.
type Model interface {
	PredictProba(x []float64) ([2]float64, error)
	Predict(x []float64) (int, error)
	NumFeatures() int
}

// State is everything produced by one successful training run. A State is
// never modified after it is stored.
type State struct {
	RunID       string
	Kind        Kind
	Model       Model
	Table       *dataset.Table
	Test        dataset.Partition
	Predictions []int
	LossCurve   []float64
	TrainedAt   time.Time
}

// Repository holds the current State for each model kind.
type Repository interface {
	Load(kind Kind) (*State, bool)
	Store(kind Kind, s *State)
}

// MemoryRepository keeps one in-memory slot per supported kind. Stores
// replace the slot wholesale; concurrent stores are last-writer-wins.
type MemoryRepository struct {
	slots map[Kind]*atomic.Pointer[State]
}

// NewMemoryRepository creates a repository with an empty slot for every
// supported kind.
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{slots: make(map[Kind]*atomic.Pointer[State], len(SupportedKinds))}
	for _, k := range SupportedKinds {
		r.slots[k] = new(atomic.Pointer[State])
	}
	return r
}

func (r *MemoryRepository) Load(kind Kind) (*State, bool) {
	slot, ok := r.slots[kind]
	if !ok {
		return nil, false
	}
	s := slot.Load()
	return s, s != nil
}

func (r *MemoryRepository) Store(kind Kind, s *State) {
	if slot, ok := r.slots[kind]; ok {
		slot.Store(s)
	}
}
