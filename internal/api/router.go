// Package api exposes training, metrics, simulation and dataset management
// over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/vsharma-va/ABB-Final/internal/ingest"
	"github.com/vsharma-va/ABB-Final/internal/simulation"
	"github.com/vsharma-va/ABB-Final/internal/storage"
	"github.com/vsharma-va/ABB-Final/internal/telemetry"
	"github.com/vsharma-va/ABB-Final/internal/training"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store     *storage.Store
	Files     *storage.Files
	Ingester  *ingest.Ingester
	Trainer   *training.Trainer
	Simulator *simulation.Engine

	// DataDir is the root for file_name dataset references (<DataDir>/data).
	DataDir string
	// Location applies to request timestamps without a UTC offset.
	Location *time.Location
	// MaxUploadBytes caps multipart uploads; 0 means unlimited.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type handler struct {
	AppDeps
	validate *validator.Validate
}

// NewAppHandler returns the HTTP surface of the service.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handler{AppDeps: deps, validate: validator.New(validator.WithRequiredStructEnabled())}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Post("/train-model", h.handleTrainModel)
	r.Get("/model/metrics", h.handleModelMetrics)
	r.Get("/model/loss-curve.png", h.handleLossCurve)
	r.Get("/simulation-stream", h.handleSimulationStream)
	r.Get("/training-runs", h.handleListTrainingRuns)

	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", h.handleUploadDataset)
		r.Get("/", h.handleListDatasets)
		r.Get("/{id}", h.handleGetDataset)
		r.Post("/{id}/validate-ranges", h.handleValidateRanges)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
