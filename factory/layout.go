package factory

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fkdmshk/agv-simulation/config"
)

var ErrUnknownMachine = errors.New("unknown machine")

// Layout is the factory floor: axis ranges plus the machines on it.
type Layout struct {
	XRange   Range     `json:"x_range"`
	YRange   Range     `json:"y_range"`
	Machines []Machine `json:"machines"`
}

// NewLayout builds a layout from the validated configuration.
func NewLayout(cfg config.LayoutConfig) *Layout {
	l := &Layout{
		XRange: Range{Min: cfg.XRange[0], Max: cfg.XRange[1]},
		YRange: Range{Min: cfg.YRange[0], Max: cfg.YRange[1]},
	}
	for _, m := range cfg.Machines {
		l.Machines = append(l.Machines, Machine{
			ID:       m.ID,
			Name:     m.Name,
			Position: Point{X: m.Position[0], Y: m.Position[1]},
			Dwell:    time.Duration(m.DwellSeconds) * time.Second,
		})
	}
	return l
}

// PathFromConfig converts configured [x, y] pairs into points.
func PathFromConfig(pairs [][]float64) []Point {
	path := make([]Point, 0, len(pairs))
	for _, p := range pairs {
		path = append(path, Point{X: p[0], Y: p[1]})
	}
	return path
}

// ProximityPath is the left, down, right walk used by the proximity
// scenario. The corner (5, 5) appears twice.
func ProximityPath() []Point {
	var path []Point
	for i := 0; i < 6; i++ {
		path = append(path, Point{X: float64(i), Y: 5})
	}
	for j := 0; j < 6; j++ {
		path = append(path, Point{X: 5, Y: float64(5 - j)})
	}
	for i := 6; i < 10; i++ {
		path = append(path, Point{X: float64(i), Y: 0})
	}
	return path
}

// Machine looks a machine up by id.
func (l *Layout) Machine(id int) (Machine, error) {
	for _, m := range l.Machines {
		if m.ID == id {
			return m, nil
		}
	}
	return Machine{}, fmt.Errorf("%w: %d", ErrUnknownMachine, id)
}

// MachineByName looks a machine up by its display name.
func (l *Layout) MachineByName(name string) (Machine, error) {
	for _, m := range l.Machines {
		if m.Name == name {
			return m, nil
		}
	}
	return Machine{}, fmt.Errorf("%w: %q", ErrUnknownMachine, name)
}

// Lookup resolves a machine reference given either as an id or as a
// display name.
func (l *Layout) Lookup(ref string) (Machine, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		return l.Machine(id)
	}
	return l.MachineByName(strings.TrimSpace(ref))
}

// TourPath returns the machine positions in visiting order. The same machine
// may appear more than once.
func (l *Layout) TourPath(order []int) ([]Point, error) {
	path := make([]Point, 0, len(order))
	for _, id := range order {
		m, err := l.Machine(id)
		if err != nil {
			return nil, err
		}
		path = append(path, m.Position)
	}
	return path, nil
}

// MachineAt returns the machine standing exactly on p.
func (l *Layout) MachineAt(p Point) (Machine, bool) {
	for _, m := range l.Machines {
		if m.Position == p {
			return m, true
		}
	}
	return Machine{}, false
}

// States marks every machine closer than radius to the AGV as near.
func (l *Layout) States(agv Point, radius float64) []MachineState {
	states := make([]MachineState, 0, len(l.Machines))
	for _, m := range l.Machines {
		states = append(states, MachineState{
			Machine: m,
			Near:    Distance(agv, m.Position) < radius,
		})
	}
	return states
}

// Distance is the Euclidean distance between two floor positions.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
