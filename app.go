package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fkdmshk/agv-simulation/charts"
	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/dashboard"
	"github.com/fkdmshk/agv-simulation/events"
	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/observability"
	"github.com/fkdmshk/agv-simulation/scenarios"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/simulation"
	"github.com/fkdmshk/agv-simulation/telemetry"
	"github.com/fkdmshk/agv-simulation/truck"
)

// app is the wired simulator: one runner whose frames feed the reading
// table, the charts, the truck map, the metrics, the event log and the
// websocket hub.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	layout   *factory.Layout
	runner   *simulation.Runner
	store    *telemetry.Store
	events   *events.Log
	hub      *dashboard.Hub
	tracker  *truck.Tracker
	board    *charts.Board
	metrics  *observability.SimCollector
	geocoder *truck.Geocoder
}

func newApp(cfg *config.Config, log logging.Logger, reg prometheus.Registerer, seed uint64) (*app, error) {
	metrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	store, err := telemetry.Open()
	if err != nil {
		return nil, err
	}
	eventLog, err := events.Open(cfg.Events.LogDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	geocoder := truck.NewGeocoder(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout)
	geocoder.OnLookup = metrics.GeocodeOutcome

	layout := factory.NewLayout(cfg.Layout)
	runner := &simulation.Runner{
		Layout:    layout,
		FixedPath: factory.PathFromConfig(cfg.Paths.Fixed),
		Sensors:   sensors.NewGenerator(sensors.RangesFromConfig(cfg.Sensors), seed),
		Geocoder:  geocoder,
		Settings:  simulation.SettingsFromConfig(cfg),
		Sleeper:   simulation.WallSleeper{},
		Log:       log,
	}
	if cfg.Routing.Enabled {
		runner.Router = truck.NewRouter(cfg.Routing.BaseURL, cfg.Routing.Timeout)
	}

	hub := dashboard.NewHub(log)
	hub.OnClients = metrics.SetClients

	a := &app{
		cfg:      cfg,
		log:      log,
		layout:   layout,
		runner:   runner,
		store:    store,
		events:   eventLog,
		hub:      hub,
		tracker:  truck.NewTracker(),
		board:    &charts.Board{},
		metrics:  metrics,
		geocoder: geocoder,
	}

	runner.AddListener(scenarios.Sinks{
		Readings: store,
		Board:    a.board,
		Tracker:  a.tracker,
		Metrics:  metrics,
		Events:   eventLog,
		Hub:      hub,
		Log:      log,
	}.Listener())

	return a, nil
}

// routes registers every handler on a new mux.
func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()

	dashboard.SetupHandlers(mux, a.hub)
	(&scenarios.Handlers{
		Runner:   a.runner,
		Layout:   a.layout,
		Settings: a.runner.Settings,
		Log:      a.log,
	}).SetupHandlers(mux)
	(&charts.Handlers{Layout: a.layout, Board: a.board, Readings: a.store}).SetupHandlers(mux)
	(&telemetry.Handlers{Store: a.store}).SetupHandlers(mux)
	(&truck.Handlers{Tracker: a.tracker, Geocoder: a.geocoder}).SetupHandlers(mux)
	(&events.Handlers{Log: a.events}).SetupHandlers(mux)
	mux.Handle("/metrics", a.metrics.Handler())

	return mux
}

// close stops a running simulation and releases the table and the log file.
func (a *app) close(ctx context.Context) {
	if err := a.runner.Stop(); err == nil {
		a.log.Info(ctx, "stopped running simulation")
	}
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn(ctx, "failed to close reading table", logging.Err(err))
	}
	if err := a.events.Close(); err != nil {
		a.log.Warn(ctx, "failed to close event log", logging.Err(err))
	}
}

func seedFromClock() uint64 {
	return uint64(time.Now().UnixNano())
}
