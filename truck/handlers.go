package truck

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Handlers serves the truck map data and the position panel.
type Handlers struct {
	Tracker  *Tracker
	Geocoder *Geocoder
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/truck/position", h.handlePosition)
	mux.HandleFunc("/truck/geojson", h.handleGeoJSON)
	mux.HandleFunc("/truck/track.gpx", h.handleGPX)
	mux.HandleFunc("/truck/geocode", h.handleGeocode)
}

func (h *Handlers) handlePosition(w http.ResponseWriter, r *http.Request) {
	var scene *Scene
	if s, ok := h.Tracker.Scene(); ok {
		scene = &s
	}

	w.Header().Set("Content-Type", "text/html")
	if err := TruckPosition(scene).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	scene, ok := h.Tracker.Scene()
	if !ok {
		http.Error(w, "No truck scene", http.StatusNotFound)
		return
	}

	b, err := SceneGeoJSON(scene)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode scene: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(b)
}

func (h *Handlers) handleGPX(w http.ResponseWriter, r *http.Request) {
	scene, ok := h.Tracker.Scene()
	if !ok || len(scene.Track) == 0 {
		http.Error(w, "No truck track", http.StatusNotFound)
		return
	}

	b, err := TrackGPX(scene)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode track: %v", err), http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("truck_track_%s.gpx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Write(b)
}

// handleGeocode lets the sidebar check an address before launching.
func (h *Handlers) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	address := r.URL.Query().Get("q")
	if address == "" {
		http.Error(w, "Address is required", http.StatusBadRequest)
		return
	}

	coord, err := h.Geocoder.Geocode(r.Context(), address)
	if errors.Is(err, ErrAddressNotFound) {
		http.Error(w, "Address not found. Please enter a valid address.", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(coord)
}
