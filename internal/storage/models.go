package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Dataset struct {
	ID              string
	OriginalName    string
	CreatedAt       time.Time
	TotalRecords    int
	TotalColumns    int
	PassRatePercent float64
	Earliest        time.Time
	Latest          time.Time
	ProcessedPath   string
}

type TrainingRun struct {
	ID          string
	CreatedAt   time.Time
	ModelKind   string
	Source      string
	TrainStart  time.Time
	TrainEnd    time.Time
	TestStart   time.Time
	TestEnd     time.Time
	TrainRows   int
	TestRows    int
	Weight      float64
	DurationMs  int64
	Status      string // "succeeded", "failed"
	Error       string
	MetricsJSON string // training.Metrics as JSON, empty on failure
}
