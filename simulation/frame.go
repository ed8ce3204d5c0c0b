package simulation

import (
	"time"

	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/truck"
)

// Phase tells which map a frame belongs to.
type Phase string

const (
	PhaseFactory Phase = "factory"
	PhaseTruck   Phase = "truck"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

// Event types carried by frames.
const (
	EventRunStarted       = "run_started"
	EventRunCompleted     = "run_completed"
	EventRunStopped       = "run_stopped"
	EventRunFailed        = "run_failed"
	EventMachineArrived   = "machine_arrived"
	EventProximityChanged = "proximity_changed"
	EventTruckArrived     = "truck_arrived"
)

// Frame is one dashboard update. Step frames carry a reading; event frames
// (arrivals, run start and end) may not.
type Frame struct {
	RunID    string                 `json:"run_id"`
	Scenario Kind                   `json:"scenario"`
	Phase    Phase                  `json:"phase"`
	Step     int                    `json:"step"`
	AGV      *factory.Point         `json:"agv,omitempty"`
	Machines []factory.MachineState `json:"machines,omitempty"`
	Reading  *sensors.Reading       `json:"reading,omitempty"`
	Truck    *truck.Snapshot        `json:"truck,omitempty"`
	Event    string                 `json:"event,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Done     bool                   `json:"done"`
	Outcome  Outcome                `json:"outcome,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Time     time.Time              `json:"time"`
}

// Result summarises a finished run.
type Result struct {
	RunID   string  `json:"run_id"`
	Kind    Kind    `json:"kind"`
	Outcome Outcome `json:"outcome"`
	Steps   int     `json:"steps"`
}
