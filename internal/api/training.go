package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/storage"
	"github.com/vsharma-va/ABB-Final/internal/training"
)

// TrainRequest selects the windows and dataset for a training run. Exactly
// one of FileName and DatasetID names the dataset.
type TrainRequest struct {
	TrainStart string `json:"train_start" validate:"required"`
	TrainEnd   string `json:"train_end" validate:"required"`
	TestStart  string `json:"test_start" validate:"required"`
	TestEnd    string `json:"test_end" validate:"required"`
	ModelName  string `json:"model_name" validate:"required"`
	FileName   string `json:"file_name" validate:"required_without=DatasetID,excluded_with=DatasetID"`
	DatasetID  string `json:"dataset_id" validate:"omitempty,uuid"`
}

func (h *handler) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%s", validationMessage(err))
		return
	}

	kind, err := training.ParseKind(strings.ToLower(strings.TrimSpace(req.ModelName)))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	train, err := dataset.ParseWindow(req.TrainStart, req.TrainEnd, h.Location)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "training window %v", err)
		return
	}
	test, err := dataset.ParseWindow(req.TestStart, req.TestEnd, h.Location)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "test window %v", err)
		return
	}

	source, ok := h.resolveSource(w, req)
	if !ok {
		return
	}

	m, err := h.Trainer.Train(r.Context(), training.Request{
		Kind:   kind,
		Source: source,
		Train:  train,
		Test:   test,
	})
	switch {
	case errors.Is(err, dataset.ErrDataLoad):
		httpError(w, http.StatusBadRequest, "data_load_error", "%v", err)
		return
	case errors.Is(err, training.ErrInvalidTrainingData):
		httpError(w, http.StatusUnprocessableEntity, "invalid_training_data", "%v", err)
		return
	case errors.Is(err, training.ErrUnsupportedModel):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is left to read a response.
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "api_error", "training failed: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// resolveSource maps the request's dataset reference to a file path.
func (h *handler) resolveSource(w http.ResponseWriter, req TrainRequest) (string, bool) {
	if req.DatasetID != "" {
		d, ok := h.lookupDataset(w, req.DatasetID)
		if !ok {
			return "", false
		}
		return d.ProcessedPath, true
	}

	name := filepath.Base(filepath.Clean("/" + req.FileName))
	if name == "/" || name == "." {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid file_name %q", req.FileName)
		return "", false
	}
	path := filepath.Join(h.DataDir, "data", name)
	if _, err := os.Stat(path); err != nil {
		httpError(w, http.StatusNotFound, "not_found", "dataset file %q not found", name)
		return "", false
	}
	return path, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("one of %s or %s is required", fe.Field(), fe.Param()))
		case "excluded_with":
			msgs = append(msgs, fmt.Sprintf("%s and %s are mutually exclusive", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (h *handler) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Trainer.Metrics(training.KindXGBoost))
}

func (h *handler) handleLossCurve(w http.ResponseWriter, r *http.Request) {
	st, err := h.Trainer.State(training.KindXGBoost)
	if errors.Is(err, training.ErrModelNotTrained) {
		httpError(w, http.StatusNotFound, "model_not_trained", "%v", err)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}

	png, err := renderLossCurve(st.LossCurve)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "rendering loss curve: %v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

// TrainingRunResponse is the public view of a recorded training attempt.
type TrainingRunResponse struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	ModelKind  string            `json:"model_kind"`
	Source     string            `json:"source"`
	TrainStart time.Time         `json:"train_start"`
	TrainEnd   time.Time         `json:"train_end"`
	TestStart  time.Time         `json:"test_start"`
	TestEnd    time.Time         `json:"test_end"`
	TrainRows  int               `json:"train_rows"`
	TestRows   int               `json:"test_rows"`
	Weight     float64           `json:"scale_pos_weight"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Metrics    *training.Metrics `json:"metrics,omitempty"`
}

func (h *handler) handleListTrainingRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20, 100)
	offset := parseIntParam(r, "offset", 0, 0)

	runs, err := h.Store.ListTrainingRuns(limit, offset)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list training runs: %v", err)
		return
	}

	out := make([]TrainingRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, trainingRunResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func trainingRunResponse(run storage.TrainingRun) TrainingRunResponse {
	resp := TrainingRunResponse{
		ID:         run.ID,
		CreatedAt:  run.CreatedAt,
		ModelKind:  run.ModelKind,
		Source:     filepath.Base(run.Source),
		TrainStart: run.TrainStart,
		TrainEnd:   run.TrainEnd,
		TestStart:  run.TestStart,
		TestEnd:    run.TestEnd,
		TrainRows:  run.TrainRows,
		TestRows:   run.TestRows,
		Weight:     run.Weight,
		DurationMs: run.DurationMs,
		Status:     run.Status,
		Error:      run.Error,
	}
	if run.MetricsJSON != "" {
		var m training.Metrics
		if err := json.Unmarshal([]byte(run.MetricsJSON), &m); err == nil {
			resp.Metrics = &m
		}
	}
	return resp
}
