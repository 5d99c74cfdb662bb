package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/ingest"
	"github.com/vsharma-va/ABB-Final/internal/storage"
)

// DatasetResponse is the public view of a stored dataset.
type DatasetResponse struct {
	ID               string           `json:"dataset_id"`
	OriginalFileName string           `json:"original_file_name"`
	CreatedAt        time.Time        `json:"created_at"`
	Metadata         dataset.Metadata `json:"metadata"`
}

func datasetResponse(d storage.Dataset) DatasetResponse {
	return DatasetResponse{
		ID:               d.ID,
		OriginalFileName: d.OriginalName,
		CreatedAt:        d.CreatedAt,
		Metadata: dataset.Metadata{
			TotalRecords:    d.TotalRecords,
			TotalColumns:    d.TotalColumns,
			PassRatePercent: d.PassRatePercent,
			Earliest:        d.Earliest,
			Latest:          d.Latest,
		},
	}
}

func (h *handler) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	if h.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope; the ingester enforces the
		// exact file limit.
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+maxRequestBodySize)
	}
	defer r.Body.Close()

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "upload exceeds %d bytes", h.MaxUploadBytes)
			return
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field \"file\" is required: %v", err)
		return
	}
	defer file.Close()

	res, err := h.Ingester.Ingest(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "%v", err)
		return
	case errors.Is(err, ingest.ErrInvalidUpload), errors.Is(err, dataset.ErrDataLoad):
		httpError(w, http.StatusBadRequest, "data_load_error", "%v", err)
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to ingest dataset: %v", err)
		return
	}

	writeJSON(w, http.StatusCreated, datasetResponse(res.Dataset))
}

func (h *handler) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20, 100)
	offset := parseIntParam(r, "offset", 0, 0)

	list, err := h.Store.ListDatasets(limit, offset)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list datasets: %v", err)
		return
	}

	out := make([]DatasetResponse, 0, len(list))
	for _, d := range list {
		out = append(out, datasetResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookupDataset(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, datasetResponse(d))
}

func (h *handler) lookupDataset(w http.ResponseWriter, id string) (storage.Dataset, bool) {
	d, err := h.Store.GetDataset(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "dataset %q not found", id)
		return storage.Dataset{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get dataset: %v", err)
		return storage.Dataset{}, false
	}
	return d, true
}

// ValidateRangesRequest carries the three windows picked for a dataset.
type ValidateRangesRequest struct {
	Training   RangeInput `json:"training" validate:"required"`
	Testing    RangeInput `json:"testing" validate:"required"`
	Simulation RangeInput `json:"simulation" validate:"required"`
}

type RangeInput struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

func (h *handler) handleValidateRanges(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ValidateRangesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%s", validationMessage(err))
		return
	}

	d, ok := h.lookupDataset(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	table, err := dataset.LoadFile(d.ProcessedPath, dataset.LoadOptions{Location: h.Location})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load dataset: %v", err)
		return
	}

	report := dataset.ValidateRanges(table, dataset.RangeSet{
		Training:   dataset.RangeInput(req.Training),
		Testing:    dataset.RangeInput(req.Testing),
		Simulation: dataset.RangeInput(req.Simulation),
	}, h.Location)
	writeJSON(w, http.StatusOK, report)
}
