// Package observability holds the Prometheus collector and the OpenTelemetry
// tracer setup of the simulator.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fkdmshk/agv-simulation/simulation"
)

// SimCollector bundles the simulator metrics.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Steps          *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	Sensors        *prometheus.GaugeVec
	TruckRemaining prometheus.Gauge
	WSClients      prometheus.Gauge
	Geocodes       *prometheus.CounterVec
}

// NewSimCollector registers the simulator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_steps_total",
		Help: "Simulation steps taken, labeled by scenario and phase.",
	}, []string{"scenario", "phase"}), "sim_steps_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_runs_total",
		Help: "Finished simulation runs, labeled by scenario and outcome.",
	}, []string{"scenario", "outcome"}), "sim_runs_total")
	if err != nil {
		return nil, err
	}

	sensors, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_sensor_value",
		Help: "Latest synthetic sensor reading, labeled by sensor.",
	}, []string{"sensor"}), "sim_sensor_value")
	if err != nil {
		return nil, err
	}

	remaining, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_truck_remaining_km",
		Help: "Great-circle distance between the truck and its destination.",
	}), "sim_truck_remaining_km")
	if err != nil {
		return nil, err
	}

	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_websocket_clients",
		Help: "Connected dashboard websocket clients.",
	}), "sim_websocket_clients")
	if err != nil {
		return nil, err
	}

	geocodes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_geocode_requests_total",
		Help: "Geocoding lookups, labeled by outcome (ok, not_found, error).",
	}, []string{"outcome"}), "sim_geocode_requests_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:       gatherer,
		Steps:          steps,
		Runs:           runs,
		Sensors:        sensors,
		TruckRemaining: remaining,
		WSClients:      clients,
		Geocodes:       geocodes,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame updates the counters and gauges from one simulation frame.
func (c *SimCollector) ObserveFrame(f simulation.Frame) {
	if c == nil {
		return
	}
	scenario := string(f.Scenario)

	if r := f.Reading; r != nil {
		c.Steps.WithLabelValues(scenario, string(f.Phase)).Inc()
		if r.IsUnit() {
			c.Sensors.WithLabelValues("value").Set(r.Value)
		} else {
			c.Sensors.WithLabelValues("battery").Set(r.Battery)
			c.Sensors.WithLabelValues("temperature").Set(r.Temperature)
			c.Sensors.WithLabelValues("distance").Set(r.Distance)
			c.Sensors.WithLabelValues("speed").Set(r.Speed)
		}
	}
	if f.Truck != nil && f.Event == "" {
		c.Steps.WithLabelValues(scenario, string(f.Phase)).Inc()
		c.TruckRemaining.Set(f.Truck.RemainingKm)
	}
	if f.Done {
		c.Runs.WithLabelValues(scenario, string(f.Outcome)).Inc()
	}
}

// SetClients records the websocket client count.
func (c *SimCollector) SetClients(n int) {
	if c == nil {
		return
	}
	c.WSClients.Set(float64(n))
}

// GeocodeOutcome counts one geocoding lookup.
func (c *SimCollector) GeocodeOutcome(outcome string) {
	if c == nil {
		return
	}
	c.Geocodes.WithLabelValues(outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
