package scenarios

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/simulation"
)

// Runner is the part of simulation.Runner the handlers drive.
type Runner interface {
	Start(params simulation.Params) (string, error)
	Stop() error
	Status() simulation.Status
}

// Handlers serves the scenario cards and the sidebar controls.
type Handlers struct {
	Runner   Runner
	Layout   *factory.Layout
	Settings simulation.Settings
	Log      logging.Logger
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/scenarios/list", h.handleList)
	mux.HandleFunc("/scenarios/sidebar", h.handleSidebar)
	mux.HandleFunc("/scenarios/status", h.handleStatus)
	mux.HandleFunc("/scenarios/launch", h.handleLaunchHTMX)
	mux.HandleFunc("/scenarios/kill", h.handleKillHTMX)
}

// HTMX Handlers

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	status := h.Runner.Status()

	w.Header().Set("Content-Type", "text/html")
	err := ScenarioList(simulation.Catalogue, status).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handlers) handleSidebar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	err := Sidebar(h.Layout, h.Settings).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Runner.Status())
}

func (h *Handlers) handleLaunchHTMX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	desc, err := simulation.Describe(simulation.Kind(r.URL.Query().Get("name")))
	if err != nil {
		http.Error(w, "Scenario not found", http.StatusNotFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid form: %v", err), http.StatusBadRequest)
		return
	}
	params, err := ParseParams(h.Layout, desc.Kind, r.PostForm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runID, err := h.Runner.Start(params)
	switch {
	case errors.Is(err, simulation.ErrAlreadyRunning):
		http.Error(w, "A simulation is already running. Stop it first.", http.StatusConflict)
		return
	case errors.Is(err, simulation.ErrInvalidParams):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, fmt.Sprintf("Failed to start simulation: %v", err), http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context(), h.Log).Info(r.Context(), "simulation launched",
		logging.String("scenario", string(desc.Kind)),
		logging.String("run_id", runID),
	)

	h.renderCard(w, r, desc)
}

func (h *Handlers) handleKillHTMX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	desc, err := simulation.Describe(simulation.Kind(r.URL.Query().Get("name")))
	if err != nil {
		http.Error(w, "Scenario not found", http.StatusNotFound)
		return
	}

	// Only the running scenario can be stopped; otherwise return the card unchanged
	if status := h.Runner.Status(); status.Running && status.Kind == desc.Kind {
		if err := h.Runner.Stop(); err != nil && !errors.Is(err, simulation.ErrNotRunning) {
			http.Error(w, fmt.Sprintf("Failed to stop simulation: %v", err), http.StatusInternalServerError)
			return
		}
		logging.FromContext(r.Context(), h.Log).Info(r.Context(), "simulation stopped",
			logging.String("scenario", string(desc.Kind)),
			logging.String("run_id", status.RunID),
		)
	}

	h.renderCard(w, r, desc)
}

func (h *Handlers) renderCard(w http.ResponseWriter, r *http.Request, desc simulation.Description) {
	w.Header().Set("Content-Type", "text/html")
	err := ScenarioCard(desc, h.Runner.Status()).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ParseParams reads the sidebar form: order_1..order_N (machine ids or names),
// dwell_<machine id> (seconds), source and destination. Empty fields are left
// to the configured defaults.
func ParseParams(layout *factory.Layout, kind simulation.Kind, form url.Values) (simulation.Params, error) {
	params := simulation.Params{
		Kind:        kind,
		Source:      form.Get("source"),
		Destination: form.Get("destination"),
	}

	for i := 1; ; i++ {
		raw, ok := form["order_"+strconv.Itoa(i)]
		if !ok {
			break
		}
		if len(raw) == 0 || raw[0] == "" {
			continue
		}
		m, err := layout.Lookup(raw[0])
		if err != nil {
			return params, fmt.Errorf("%w: order_%d: %w", simulation.ErrInvalidParams, i, err)
		}
		params.Order = append(params.Order, m.ID)
	}

	for key, raw := range form {
		var id int
		if _, err := fmt.Sscanf(key, "dwell_%d", &id); err != nil || len(raw) == 0 || raw[0] == "" {
			continue
		}
		secs, err := strconv.Atoi(raw[0])
		if err != nil {
			return params, fmt.Errorf("%w: %s must be whole seconds", simulation.ErrInvalidParams, key)
		}
		if params.Dwell == nil {
			params.Dwell = map[int]time.Duration{}
		}
		params.Dwell[id] = time.Duration(secs) * time.Second
	}

	return params, nil
}
