package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vsharma-va/ABB-Final/internal/dataset"
	"github.com/vsharma-va/ABB-Final/internal/simulation"
)

// handleSimulationStream replays ?sim_start=&sim_end= as server-sent
// events, one "data: <json>" frame per row. The stream ends by closing the
// connection; errors are sent as a final {"error": ...} frame.
func (h *handler) handleSimulationStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win, err := dataset.ParseWindow(q.Get("sim_start"), q.Get("sim_end"), h.Location)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "simulation window %v", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev simulation.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	sum, err := h.Simulator.Run(r.Context(), win, emit)
	if err != nil && r.Context().Err() == nil {
		h.Logger.Debug("simulation stream ended with error", "window", win.String(), "state", sum.State.String(), "error", err)
	}
}
