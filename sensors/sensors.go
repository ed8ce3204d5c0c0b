// Package sensors produces the synthetic AGV sensor readings plotted on the
// dashboard. Values are uniform random draws; battery drains one percent per
// step down to a floor.
package sensors

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fkdmshk/agv-simulation/config"
)

// Kind tells four-sensor samples from unit-sensor readings.
type Kind string

const (
	KindSample Kind = "sample"
	KindUnit   Kind = "unit"
)

// Reading is one row of the sensor table.
type Reading struct {
	Kind        Kind      `json:"kind"`
	Step        int       `json:"step"`
	Battery     float64   `json:"battery"`     // %
	Temperature float64   `json:"temperature"` // °C
	Distance    float64   `json:"distance"`    // m, to the nearest obstacle
	Speed       float64   `json:"speed"`       // m/s
	Value       float64   `json:"value"`       // unit sensor, proximity scenario only
	RecordedAt  time.Time `json:"recorded_at"`
}

// IsUnit reports whether r carries only the unit sensor value. Readings
// without a kind are four-sensor samples.
func (r Reading) IsUnit() bool {
	return r.Kind == KindUnit
}

// Ranges bounds the uniform draws.
type Ranges struct {
	BatteryStart float64
	BatteryFloor float64
	Temperature  [2]float64
	Distance     [2]float64
	Speed        [2]float64
}

// RangesFromConfig converts the validated sensor section.
func RangesFromConfig(cfg config.SensorsConfig) Ranges {
	return Ranges{
		BatteryStart: cfg.BatteryStart,
		BatteryFloor: cfg.BatteryFloor,
		Temperature:  [2]float64{cfg.Temperature[0], cfg.Temperature[1]},
		Distance:     [2]float64{cfg.Distance[0], cfg.Distance[1]},
		Speed:        [2]float64{cfg.Speed[0], cfg.Speed[1]},
	}
}

// Generator draws readings from a single random source.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	ranges Ranges
	now    func() time.Time
}

// NewGenerator returns a generator seeded from seed. The same seed yields the
// same sequence of readings.
func NewGenerator(ranges Ranges, seed uint64) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ranges: ranges,
		now:    time.Now,
	}
}

// Battery is the remaining charge after step steps.
func (g *Generator) Battery(step int) float64 {
	return math.Max(g.ranges.BatteryStart-float64(step), g.ranges.BatteryFloor)
}

// Sample draws the four-sensor reading for step.
func (g *Generator) Sample(step int) Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Reading{
		Kind:        KindSample,
		Step:        step,
		Battery:     g.Battery(step),
		Temperature: g.uniform(g.ranges.Temperature),
		Distance:    g.uniform(g.ranges.Distance),
		Speed:       g.uniform(g.ranges.Speed),
		RecordedAt:  g.now(),
	}
}

// Unit draws the single [0, 1) sensor value used by the proximity scenario.
func (g *Generator) Unit(step int) Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Reading{
		Kind:       KindUnit,
		Step:       step,
		Value:      g.rng.Float64(),
		RecordedAt: g.now(),
	}
}

func (g *Generator) uniform(r [2]float64) float64 {
	return r[0] + g.rng.Float64()*(r[1]-r[0])
}
