package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fkdmshk/agv-simulation/sensors"
)

// Handlers serves the reading table.
type Handlers struct {
	Store *Store
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/telemetry/readings", h.handleReadings)
	mux.HandleFunc("/telemetry/table", h.handleTable)
	mux.HandleFunc("/telemetry/runs", h.handleRuns)
	mux.HandleFunc("/telemetry/statistics", h.handleStatistics)
	mux.HandleFunc("/telemetry/export-csv", h.handleCSVExport)
	mux.HandleFunc("/telemetry/export-xlsx", h.handleXLSXExport)
}

// runReadings loads the readings of the run named by ?run=, or of the latest
// run.
func (h *Handlers) runReadings(ctx context.Context, r *http.Request) (string, []sensors.Reading, error) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		var err error
		if runID, err = h.Store.LatestRun(ctx); err != nil {
			return "", nil, err
		}
	}
	readings, err := h.Store.Readings(ctx, runID)
	if err != nil {
		return runID, nil, err
	}
	if len(readings) == 0 {
		return runID, nil, ErrNoReadings
	}
	return runID, readings, nil
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoReadings) {
		http.Error(w, "No readings recorded", http.StatusNotFound)
		return
	}
	http.Error(w, fmt.Sprintf("Failed to get readings: %v", err), http.StatusInternalServerError)
}

func (h *Handlers) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, readings, err := h.runReadings(r.Context(), r)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(readings)
}

func (h *Handlers) handleTable(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	_, readings, err := h.runReadings(r.Context(), r)
	if err != nil && !errors.Is(err, ErrNoReadings) {
		writeLookupError(w, err)
		return
	}
	if len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}

	w.Header().Set("Content-Type", "text/html")
	if err := ReadingTable(readings).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := h.Store.Runs(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []Run{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	case http.MethodDelete:
		if err := h.Store.Reset(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	window := 0
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			http.Error(w, "window must be an integer of at least 2", http.StatusBadRequest)
			return
		}
		window = n
	}

	runID, readings, err := h.runReadings(r.Context(), r)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	stats := CalculateSensorStatistics(runID, readings)
	if window > 0 {
		stats.Window = window
		stats.VarianceOverTime = VarianceBySensor(readings, window)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *Handlers) handleCSVExport(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "zip", "application/zip", ExportReadingsToCSV)
}

func (h *Handlers) handleXLSXExport(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ExportReadingsToXLSX)
}

func (h *Handlers) export(w http.ResponseWriter, r *http.Request, ext, contentType string, encode func([]sensors.Reading) (*bytes.Buffer, error)) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runID, readings, err := h.runReadings(r.Context(), r)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	buf, err := encode(readings)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate export: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", GenerateExportFilename(runID, ext)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
