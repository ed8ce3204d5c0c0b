package events

import "time"

type Event struct {
	Type      string    `json:"type"`             // "run_started", "run_completed", "run_stopped", "run_failed", "machine_arrived", "truck_arrived", "proximity_changed", or a manual type
	Program   string    `json:"program"`          // scenario name
	RunID     string    `json:"run_id,omitempty"` // empty for manual events
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"` // when the event occurred
}
