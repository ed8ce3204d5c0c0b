package charts

import (
	"context"
	"net/http"
	"sync"

	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/simulation"
)

// ReadingSource is the reading table the sensor chart is drawn from.
type ReadingSource interface {
	Readings(ctx context.Context, runID string) ([]sensors.Reading, error)
}

// Board remembers what the factory map currently shows.
type Board struct {
	mu       sync.RWMutex
	runID    string
	agv      *factory.Point
	machines []factory.MachineState
}

// Update applies a simulation frame. Truck frames only change the run id.
func (b *Board) Update(f simulation.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f.RunID != b.runID {
		b.runID = f.RunID
		b.agv = nil
		b.machines = nil
	}
	if f.AGV != nil {
		p := *f.AGV
		b.agv = &p
	}
	if f.Machines != nil {
		b.machines = append(b.machines[:0], f.Machines...)
	}
}

// Snapshot returns the run id, AGV position and machine states last seen.
func (b *Board) Snapshot() (string, *factory.Point, []factory.MachineState) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var agv *factory.Point
	if b.agv != nil {
		p := *b.agv
		agv = &p
	}
	return b.runID, agv, append([]factory.MachineState(nil), b.machines...)
}

// Handlers serves the chart images.
type Handlers struct {
	Layout   *factory.Layout
	Board    *Board
	Readings ReadingSource
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/charts/factory.png", h.handleFactory)
	mux.HandleFunc("/charts/sensors.png", h.handleSensors)
}

func (h *Handlers) handleFactory(w http.ResponseWriter, r *http.Request) {
	_, agv, machines := h.Board.Snapshot()

	img, err := FactoryLayout(h.Layout, machines, agv)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

func (h *Handlers) handleSensors(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		runID, _, _ = h.Board.Snapshot()
	}

	var readings []sensors.Reading
	if runID != "" {
		var err error
		readings, err = h.Readings.Readings(r.Context(), runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	img, err := SensorSeries(readings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}
