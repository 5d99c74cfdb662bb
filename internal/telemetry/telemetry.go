// Package telemetry exposes Prometheus collectors for training runs,
// simulation streams and dataset ingestion.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trainingRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intelliinspect_training_runs_total",
		Help: "Training attempts by model kind and outcome",
	}, []string{"kind", "status"})

	trainingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intelliinspect_training_duration_seconds",
		Help:    "Wall time of a training attempt including dataset load",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	simulationEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intelliinspect_simulation_events_total",
		Help: "Simulation events emitted, by type (record, error)",
	}, []string{"type"})

	simulationStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intelliinspect_simulation_streams_active",
		Help: "Simulation streams currently in progress",
	})

	simulationStreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intelliinspect_simulation_streams_total",
		Help: "Finished simulation streams by final state",
	}, []string{"state"})

	datasetsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intelliinspect_datasets_ingested_total",
		Help: "Dataset uploads by outcome",
	}, []string{"status"})
)

// ObserveTraining records one training attempt.
func ObserveTraining(kind, status string, d time.Duration) {
	trainingRunsTotal.WithLabelValues(kind, status).Inc()
	trainingDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SimulationEvent counts one emitted event of the given type.
func SimulationEvent(typ string) {
	simulationEventsTotal.WithLabelValues(typ).Inc()
}

// SimulationStarted marks a stream as active. The returned func records the
// final state and must be called exactly once.
func SimulationStarted() func(state string) {
	simulationStreamsActive.Inc()
	return func(state string) {
		simulationStreamsActive.Dec()
		simulationStreamsTotal.WithLabelValues(state).Inc()
	}
}

// DatasetIngested counts one upload.
func DatasetIngested(status string) {
	datasetsIngestedTotal.WithLabelValues(status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
