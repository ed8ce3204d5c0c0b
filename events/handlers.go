package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Handlers serves the event log.
type Handlers struct {
	Log *Log
}

func (h *Handlers) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/manual-event", h.handleManualEvent)

	// HTMX endpoints
	mux.HandleFunc("/events/list", h.handleEventsList)
	mux.HandleFunc("/events/manual", h.handleManualEventHTMX)
}

// HTMX Handlers

func (h *Handlers) handleEventsList(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r)
}

func (h *Handlers) handleManualEventHTMX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventType := r.FormValue("type")
	program := r.FormValue("program")

	if eventType == "" || program == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	event := Event{
		Type:      eventType,
		Program:   program,
		Detail:    r.FormValue("detail"),
		Timestamp: time.Now(),
	}
	if err := h.Log.LogEvent(event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderList(w, r)
}

func (h *Handlers) renderList(w http.ResponseWriter, r *http.Request) {
	eventsList := h.Log.GetEvents()

	// Reverse the events to show newest first
	reversed := make([]Event, len(eventsList))
	for i, j := 0, len(eventsList)-1; i < len(eventsList); i, j = i+1, j-1 {
		reversed[i] = eventsList[j]
	}

	w.Header().Set("Content-Type", "text/html")
	err := EventsList(reversed).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// JSON API

func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Log.GetEvents())
}

func (h *Handlers) handleManualEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Type    string `json:"type"`
		Program string `json:"program"`
		Detail  string `json:"detail"`
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if data.Type == "" || data.Program == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	event := Event{
		Type:      data.Type,
		Program:   data.Program,
		Detail:    data.Detail,
		Timestamp: time.Now(),
	}
	if err := h.Log.LogEvent(event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Helper functions for templates

func formatEventType(eventType string) string {
	parts := strings.Split(eventType, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}

func getEventTypeClass(eventType string) string {
	switch eventType {
	case "run_started":
		return "bg-green-100 text-green-800"
	case "run_stopped":
		return "bg-red-100 text-red-800"
	case "run_completed":
		return "bg-indigo-100 text-indigo-800"
	case "run_failed":
		return "bg-orange-100 text-orange-800"
	case "machine_arrived", "truck_arrived":
		return "bg-purple-100 text-purple-800"
	case "proximity_changed":
		return "bg-yellow-100 text-yellow-800"
	default:
		return "bg-blue-100 text-blue-800"
	}
}
