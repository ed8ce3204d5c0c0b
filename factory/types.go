package factory

import (
	"fmt"
	"time"
)

// Point is a position on the factory floor.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Machine is a piece of equipment the AGV visits.
type Machine struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Position Point         `json:"position"`
	Dwell    time.Duration `json:"dwell"`
}

// MachineState is a machine as drawn for one step. Near machines are drawn
// green, the others red.
type MachineState struct {
	Machine
	Near bool `json:"near"`
}

// Range is a closed axis interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
