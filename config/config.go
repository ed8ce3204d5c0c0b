// Package config loads the simulator configuration: the factory layout, the
// fixed AGV path, sensor ranges, step timings and the external geocoding and
// routing services.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the root structure loaded from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Layout     LayoutConfig     `yaml:"layout"`
	Paths      PathsConfig      `yaml:"paths"`
	Simulation SimulationConfig `yaml:"simulation"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Routing    RoutingConfig    `yaml:"routing"`
	Addresses  AddressesConfig  `yaml:"addresses"`
	Events     EventsConfig     `yaml:"events"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LayoutConfig describes the factory floor shown in the layout chart.
type LayoutConfig struct {
	XRange   []float64       `yaml:"x_range"`
	YRange   []float64       `yaml:"y_range"`
	Machines []MachineConfig `yaml:"machines"`
}

type MachineConfig struct {
	ID           int       `yaml:"id"`
	Name         string    `yaml:"name"`
	Position     []float64 `yaml:"position"`
	DwellSeconds int       `yaml:"dwell_seconds"`
}

type PathsConfig struct {
	Fixed [][]float64 `yaml:"fixed"`
	Tour  []int       `yaml:"tour"` // default visiting order, by machine id
}

type SimulationConfig struct {
	StepInterval          time.Duration `yaml:"step_interval"`
	ProximityInterval     time.Duration `yaml:"proximity_interval"`
	ProximityRadius       float64       `yaml:"proximity_radius"`
	TourDwellSeconds      int           `yaml:"tour_dwell_seconds"`
	TruckStepFraction     float64       `yaml:"truck_step_fraction"`
	LogisticsStepFraction float64       `yaml:"logistics_step_fraction"`
	TruckStepLimit        int           `yaml:"truck_step_limit"`
	FactoryStepLimit      int           `yaml:"factory_step_limit"`
	ArrivalTolerance      float64       `yaml:"arrival_tolerance"` // degrees
}

type SensorsConfig struct {
	BatteryStart float64   `yaml:"battery_start"`
	BatteryFloor float64   `yaml:"battery_floor"`
	Temperature  []float64 `yaml:"temperature"`
	Distance     []float64 `yaml:"distance"`
	Speed        []float64 `yaml:"speed"`
}

type GeocoderConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RoutingConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AddressesConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

type EventsConfig struct {
	LogDir string `yaml:"log_dir"`
}

// Sidebar dwell inputs accept whole seconds in this range.
const (
	minDwellSeconds = 1
	maxDwellSeconds = 10
)

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Load reads the defaults and overlays the file at path on top of them. An
// empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the simulation relies on.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Layout.XRange) != 2 || len(c.Layout.YRange) != 2 {
		errs = append(errs, errors.New("layout ranges must have exactly two values"))
	} else if c.Layout.XRange[0] >= c.Layout.XRange[1] || c.Layout.YRange[0] >= c.Layout.YRange[1] {
		errs = append(errs, errors.New("layout ranges must be increasing"))
	}

	if len(c.Layout.Machines) == 0 {
		errs = append(errs, errors.New("layout needs at least one machine"))
	}
	ids := make(map[int]bool, len(c.Layout.Machines))
	for _, m := range c.Layout.Machines {
		if ids[m.ID] {
			errs = append(errs, fmt.Errorf("duplicate machine id %d", m.ID))
		}
		ids[m.ID] = true
		if len(m.Position) != 2 {
			errs = append(errs, fmt.Errorf("machine %d: position must be [x, y]", m.ID))
		}
		if m.DwellSeconds < 0 {
			errs = append(errs, fmt.Errorf("machine %d: negative dwell", m.ID))
		}
	}

	if len(c.Paths.Fixed) == 0 {
		errs = append(errs, errors.New("fixed path is empty"))
	}
	for i, p := range c.Paths.Fixed {
		if len(p) != 2 {
			errs = append(errs, fmt.Errorf("fixed path point %d must be [x, y]", i))
		}
	}
	for _, id := range c.Paths.Tour {
		if !ids[id] {
			errs = append(errs, fmt.Errorf("tour references unknown machine %d", id))
		}
	}

	s := c.Simulation
	if s.StepInterval <= 0 || s.ProximityInterval <= 0 {
		errs = append(errs, errors.New("step intervals must be positive"))
	}
	if s.ProximityRadius <= 0 {
		errs = append(errs, errors.New("proximity radius must be positive"))
	}
	for name, f := range map[string]float64{
		"truck_step_fraction":     s.TruckStepFraction,
		"logistics_step_fraction": s.LogisticsStepFraction,
	} {
		if f <= 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1]", name))
		}
	}
	if s.TruckStepLimit <= 0 || s.FactoryStepLimit <= 0 {
		errs = append(errs, errors.New("step limits must be positive"))
	}
	if s.ArrivalTolerance <= 0 {
		errs = append(errs, errors.New("arrival tolerance must be positive"))
	}
	if s.TourDwellSeconds < minDwellSeconds || s.TourDwellSeconds > maxDwellSeconds {
		errs = append(errs, fmt.Errorf("tour_dwell_seconds must be between %d and %d", minDwellSeconds, maxDwellSeconds))
	}

	if c.Sensors.BatteryStart <= 0 {
		errs = append(errs, errors.New("battery_start must be positive"))
	}
	if c.Sensors.BatteryFloor < 0 || c.Sensors.BatteryFloor > c.Sensors.BatteryStart {
		errs = append(errs, errors.New("battery_floor must be between 0 and battery_start"))
	}

	for name, r := range map[string][]float64{
		"temperature": c.Sensors.Temperature,
		"distance":    c.Sensors.Distance,
		"speed":       c.Sensors.Speed,
	} {
		if len(r) != 2 || r[0] > r[1] {
			errs = append(errs, fmt.Errorf("sensor range %s must be [min, max]", name))
		}
	}

	if c.Geocoder.BaseURL == "" {
		errs = append(errs, errors.New("geocoder base_url is required"))
	}
	if c.Routing.Enabled && c.Routing.BaseURL == "" {
		errs = append(errs, errors.New("routing base_url is required when routing is enabled"))
	}

	return errors.Join(errs...)
}
