// Package simulation walks the AGV and the truck through their scenarios and
// publishes one Frame per step to the registered listeners.
package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/factory"
)

// Kind names a scenario.
type Kind string

const (
	KindProximity Kind = "agv-proximity"
	KindPath      Kind = "agv-path"
	KindDwell     Kind = "agv-dwell"
	KindTour      Kind = "agv-tour"
	KindTruck     Kind = "truck"
	KindLogistics Kind = "logistics"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrInvalidParams   = errors.New("invalid scenario parameters")
	ErrAlreadyRunning  = errors.New("a simulation is already running")
	ErrNotRunning      = errors.New("no simulation is running")
)

// Description is the catalogue entry shown on the scenario cards.
type Description struct {
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	UsesTour    bool   `json:"uses_tour"`
	UsesAddress bool   `json:"uses_address"`
}

// Catalogue lists every scenario in display order.
var Catalogue = []Description{
	{Kind: KindProximity, Title: "AGV proximity", Summary: "Walks the L-shaped path; machines turn green within 1.5 units of the AGV."},
	{Kind: KindPath, Title: "AGV path", Summary: "Walks the fixed 15-point path, sampling battery, temperature, distance and speed."},
	{Kind: KindDwell, Title: "AGV path with dwell", Summary: "Fixed path; the AGV waits at any machine it stops on."},
	{Kind: KindTour, Title: "AGV tour", Summary: "Visits the machines in the chosen order until stopped.", UsesTour: true},
	{Kind: KindTruck, Title: "Truck", Summary: "Drives a truck between two addresses until it arrives.", UsesAddress: true},
	{Kind: KindLogistics, Title: "Logistics + factory", Summary: "Truck delivery for 30 steps, then the factory tour.", UsesTour: true, UsesAddress: true},
}

// Describe returns the catalogue entry for kind.
func Describe(kind Kind) (Description, error) {
	for _, d := range Catalogue {
		if d.Kind == kind {
			return d, nil
		}
	}
	return Description{}, fmt.Errorf("%w: %q", ErrUnknownScenario, kind)
}

// Params are the sidebar inputs for one run. Zero values fall back to the
// configured defaults.
type Params struct {
	Kind        Kind                  `json:"kind"`
	Order       []int                 `json:"order,omitempty"`
	Dwell       map[int]time.Duration `json:"dwell,omitempty"` // per machine id
	Source      string                `json:"source,omitempty"`
	Destination string                `json:"destination,omitempty"`
}

const (
	MinDwell = 1 * time.Second
	MaxDwell = 10 * time.Second
)

// Validate checks the parameters against the layout.
func (p Params) Validate(layout *factory.Layout) error {
	if _, err := Describe(p.Kind); err != nil {
		return err
	}
	for _, id := range p.Order {
		if _, err := layout.Machine(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}
	for id, d := range p.Dwell {
		if _, err := layout.Machine(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		if d < MinDwell || d > MaxDwell {
			return fmt.Errorf("%w: dwell for machine %d must be between %s and %s", ErrInvalidParams, id, MinDwell, MaxDwell)
		}
	}
	return nil
}

// Settings are the fixed timings and limits of the scenarios.
type Settings struct {
	StepInterval          time.Duration
	ProximityInterval     time.Duration
	ProximityRadius       float64
	TourOrder             []int
	TourDwell             time.Duration
	TruckStepFraction     float64
	LogisticsStepFraction float64
	TruckStepLimit        int
	FactoryStepLimit      int
	ArrivalTolerance      float64
	SourceAddress         string
	DestinationAddress    string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	s := cfg.Simulation
	return Settings{
		StepInterval:          s.StepInterval,
		ProximityInterval:     s.ProximityInterval,
		ProximityRadius:       s.ProximityRadius,
		TourOrder:             append([]int(nil), cfg.Paths.Tour...),
		TourDwell:             time.Duration(s.TourDwellSeconds) * time.Second,
		TruckStepFraction:     s.TruckStepFraction,
		LogisticsStepFraction: s.LogisticsStepFraction,
		TruckStepLimit:        s.TruckStepLimit,
		FactoryStepLimit:      s.FactoryStepLimit,
		ArrivalTolerance:      s.ArrivalTolerance,
		SourceAddress:         cfg.Addresses.Source,
		DestinationAddress:    cfg.Addresses.Destination,
	}
}
