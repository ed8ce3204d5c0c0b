package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/truck"
)

// recordingSleeper returns immediately and remembers every requested pause.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	block  chan struct{} // when set, Sleep waits on it or ctx
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
		}
	}
	return ctx.Err()
}

func (s *recordingSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sleeps {
		if v == d {
			n++
		}
	}
	return n
}

type fakeGeocoder map[string]truck.Coordinate

func (f fakeGeocoder) Geocode(_ context.Context, address string) (truck.Coordinate, error) {
	c, ok := f[address]
	if !ok {
		return truck.Coordinate{}, fmt.Errorf("%q: %w", address, truck.ErrAddressNotFound)
	}
	return c, nil
}

type fakeRouter struct{ err error }

func (f fakeRouter) Route(_ context.Context, from, to truck.Coordinate) (*truck.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &truck.Route{Path: []truck.Coordinate{from, to}}, nil
}

type frameLog struct {
	mu     sync.Mutex
	frames []Frame
}

func (l *frameLog) add(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *frameLog) all() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Frame(nil), l.frames...)
}

func (l *frameLog) steps() []Frame {
	var out []Frame
	for _, f := range l.all() {
		if f.Reading != nil || (f.Truck != nil && f.Event == "") {
			out = append(out, f)
		}
	}
	return out
}

func (l *frameLog) events(name string) []Frame {
	var out []Frame
	for _, f := range l.all() {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func newTestRunner(t *testing.T) (*Runner, *recordingSleeper, *frameLog) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	sleeper := &recordingSleeper{}
	log := &frameLog{}
	ids := 0
	r := &Runner{
		Layout:    factory.NewLayout(cfg.Layout),
		FixedPath: factory.PathFromConfig(cfg.Paths.Fixed),
		Sensors:   sensors.NewGenerator(sensors.RangesFromConfig(cfg.Sensors), 7),
		Geocoder: fakeGeocoder{
			cfg.Addresses.Source:      {Lat: 37.9, Lon: 139.0},
			cfg.Addresses.Destination: {Lat: 34.5, Lon: 135.5},
			"near":                    {Lat: 35.0, Lon: 135.0},
			"nearer":                  {Lat: 35.005, Lon: 135.005},
		},
		Settings: SettingsFromConfig(cfg),
		Sleeper:  sleeper,
		NewRunID: func() string { ids++; return fmt.Sprintf("run-%d", ids) },
	}
	r.AddListener(log.add)
	return r, sleeper, log
}

func TestRunProximity(t *testing.T) {
	r, sleeper, log := newTestRunner(t)

	res, err := r.Run(context.Background(), Params{Kind: KindProximity})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 16, res.Steps)

	steps := log.steps()
	require.Len(t, steps, 16)
	for i, f := range steps {
		assert.Equal(t, i, f.Step)
		require.NotNil(t, f.Reading)
		assert.GreaterOrEqual(t, f.Reading.Value, 0.0)
		assert.Less(t, f.Reading.Value, 1.0)
	}
	// (2, 5) is within 1.5 of the warehouse.
	assert.True(t, steps[2].Machines[0].Near)
	assert.False(t, steps[0].Machines[0].Near)
	assert.Equal(t, 16, sleeper.count(500*time.Millisecond))

	all := log.all()
	assert.Equal(t, EventRunStarted, all[0].Event)
	last := all[len(all)-1]
	assert.True(t, last.Done)
	assert.Equal(t, OutcomeCompleted, last.Outcome)
	assert.NotEmpty(t, log.events(EventProximityChanged))
}

func TestRunPath(t *testing.T) {
	r, sleeper, log := newTestRunner(t)

	res, err := r.Run(context.Background(), Params{Kind: KindPath})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Steps)

	steps := log.steps()
	require.Len(t, steps, 15)
	assert.Equal(t, factory.Point{X: 0, Y: 5}, *steps[0].AGV)
	assert.Equal(t, 100.0, steps[0].Reading.Battery)
	assert.Equal(t, 86.0, steps[14].Reading.Battery)
	for _, f := range steps {
		assert.GreaterOrEqual(t, f.Reading.Temperature, 25.0)
		assert.LessOrEqual(t, f.Reading.Temperature, 40.0)
		for _, m := range f.Machines {
			assert.False(t, m.Near)
		}
	}
	assert.Equal(t, 15, sleeper.count(time.Second))
	assert.Empty(t, log.events(EventMachineArrived))
}

func TestRunDwellWaitsAtMachines(t *testing.T) {
	r, sleeper, log := newTestRunner(t)
	r.FixedPath = []factory.Point{{X: 0, Y: 4}, {X: 2, Y: 4}, {X: 4, Y: 4}, {X: 6, Y: 4}}

	_, err := r.Run(context.Background(), Params{Kind: KindDwell})
	require.NoError(t, err)

	arrivals := log.events(EventMachineArrived)
	require.Len(t, arrivals, 2)
	assert.Contains(t, arrivals[0].Message, "Warehouse")
	assert.Contains(t, arrivals[1].Message, "Machining")
	// arrivals carry the step they precede
	assert.Equal(t, 1, arrivals[0].Step)
	assert.Equal(t, 3, arrivals[1].Step)
	assert.Equal(t, 1, sleeper.count(3*time.Second))
	assert.Equal(t, 1, sleeper.count(5*time.Second))
}

func TestRunTourLoopsUntilStopped(t *testing.T) {
	r, sleeper, log := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())

	// stop after three laps worth of steps
	r.AddListener(func(f Frame) {
		if f.Reading != nil && f.Step == 11 {
			cancel()
		}
	})

	res, err := r.Run(ctx, Params{
		Kind:  KindTour,
		Order: []int{4, 3, 2, 1},
		Dwell: map[int]time.Duration{4: 7 * time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, res.Outcome)

	steps := log.steps()
	require.Len(t, steps, 12)
	assert.Equal(t, factory.Point{X: 4, Y: 1}, *steps[0].AGV)
	assert.Equal(t, factory.Point{X: 4, Y: 1}, *steps[4].AGV)
	// the step counter keeps counting across laps
	assert.Equal(t, 8, steps[8].Step)
	assert.Equal(t, 3, sleeper.count(7*time.Second))
	arrivals := log.events(EventMachineArrived)
	require.GreaterOrEqual(t, len(arrivals), 9)
	assert.Equal(t, 4, arrivals[4].Step)
	assert.Equal(t, 8, arrivals[8].Step)
	assert.GreaterOrEqual(t, sleeper.count(3*time.Second), 9)

	all := log.all()
	assert.Equal(t, EventRunStopped, all[len(all)-1].Event)
}

func TestRunTruckUntilArrival(t *testing.T) {
	r, _, log := newTestRunner(t)
	r.Router = fakeRouter{}

	res, err := r.Run(context.Background(), Params{Kind: KindTruck, Source: "near", Destination: "nearer"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	// already inside the tolerance after the first step
	steps := log.steps()
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Truck.Arrived)
	assert.Len(t, steps[0].Truck.Route, 2)
	require.Len(t, log.events(EventTruckArrived), 1)
}

func TestRunTruckDefaultAddresses(t *testing.T) {
	r, _, log := newTestRunner(t)

	_, err := r.Run(context.Background(), Params{Kind: KindTruck})
	require.NoError(t, err)

	steps := log.steps()
	require.NotEmpty(t, steps)
	first, last := steps[0].Truck, steps[len(steps)-1].Truck
	assert.Equal(t, "新潟県新潟市中央区", first.SourceAddress)
	assert.InDelta(t, 37.9+(34.5-37.9)*0.02, first.Position.Lat, 1e-9)
	assert.True(t, last.Arrived)
	assert.Less(t, last.RemainingKm, first.RemainingKm)
	for i, f := range steps[:len(steps)-1] {
		assert.False(t, f.Truck.Arrived, "step %d", i)
	}
}

func TestRunTruckRouteFailureFallsBack(t *testing.T) {
	r, _, log := newTestRunner(t)
	r.Router = fakeRouter{err: errors.New("osrm down")}

	_, err := r.Run(context.Background(), Params{Kind: KindTruck, Source: "near", Destination: "nearer"})
	require.NoError(t, err)
	assert.Empty(t, log.steps()[0].Truck.Route)
}

func TestRunTruckUnknownAddressFails(t *testing.T) {
	r, _, log := newTestRunner(t)

	res, err := r.Run(context.Background(), Params{Kind: KindTruck, Source: "Atlantis"})
	assert.ErrorIs(t, err, truck.ErrAddressNotFound)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	all := log.all()
	last := all[len(all)-1]
	assert.Equal(t, EventRunFailed, last.Event)
	assert.Contains(t, last.Error, "Atlantis")
}

func TestRunLogistics(t *testing.T) {
	r, _, log := newTestRunner(t)

	res, err := r.Run(context.Background(), Params{Kind: KindLogistics})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	var truckSteps, factorySteps []Frame
	for _, f := range log.steps() {
		if f.Phase == PhaseTruck {
			truckSteps = append(truckSteps, f)
		} else {
			factorySteps = append(factorySteps, f)
		}
	}
	require.Len(t, truckSteps, 30)
	// the factory phase finishes its last lap: 8 laps of 4 machines
	require.Len(t, factorySteps, 32)
	assert.Equal(t, 0, factorySteps[0].Step)
	assert.Equal(t, 31, factorySteps[31].Step)
	assert.Equal(t, 62, res.Steps)
}

func TestRunRejectsInvalidParams(t *testing.T) {
	r, _, _ := newTestRunner(t)

	_, err := r.Run(context.Background(), Params{Kind: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownScenario)

	_, err = r.Run(context.Background(), Params{Kind: KindTour, Order: []int{9}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = r.Run(context.Background(), Params{Kind: KindTour, Dwell: map[int]time.Duration{1: 11 * time.Second}})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestStartStop(t *testing.T) {
	r, sleeper, log := newTestRunner(t)
	sleeper.block = make(chan struct{})

	id, err := r.Start(Params{Kind: KindTour})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	st := r.Status()
	assert.True(t, st.Running)
	assert.Equal(t, KindTour, st.Kind)

	_, err = r.Start(Params{Kind: KindPath})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, r.Stop())
	st = r.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.Last)
	assert.Equal(t, OutcomeStopped, st.Last.Outcome)

	assert.ErrorIs(t, r.Stop(), ErrNotRunning)

	all := log.all()
	assert.True(t, all[len(all)-1].Done)
}

func TestWallSleeperHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WallSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
