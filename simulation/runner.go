package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/truck"
)

// Geocoder resolves an address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (truck.Coordinate, error)
}

// Router fetches a street route for display.
type Router interface {
	Route(ctx context.Context, from, to truck.Coordinate) (*truck.Route, error)
}

// Status is the runner state shown on the scenario cards.
type Status struct {
	Running bool      `json:"running"`
	RunID   string    `json:"run_id,omitempty"`
	Kind    Kind      `json:"kind,omitempty"`
	Started time.Time `json:"started,omitempty"`
	Last    *Result   `json:"last,omitempty"`
}

// Runner executes one scenario at a time.
type Runner struct {
	Layout    *factory.Layout
	FixedPath []factory.Point
	Sensors   *sensors.Generator
	Geocoder  Geocoder
	Router    Router // optional
	Settings  Settings
	Sleeper   Sleeper
	Log       logging.Logger
	NewRunID  func() string
	Now       func() time.Time

	mu        sync.Mutex
	listeners []func(Frame)
	cancel    context.CancelFunc
	done      chan struct{}
	status    Status
}

// AddListener registers a callback invoked, in registration order, for every
// frame of every run.
func (r *Runner) AddListener(fn func(Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Status returns the current runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Start launches params in the background. Only one run may be active.
func (r *Runner) Start(params Params) (string, error) {
	if err := params.Validate(r.Layout); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.status.Running {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	runID := r.newRunID()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status = Status{Running: true, RunID: runID, Kind: params.Kind, Started: r.now(), Last: r.status.Last}
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		res, err := r.run(ctx, runID, params)
		if err != nil && res.Outcome == OutcomeFailed {
			r.logger().Error(ctx, "simulation failed",
				logging.String("run_id", runID),
				logging.String("scenario", string(params.Kind)),
				logging.Err(err),
			)
		}

		r.mu.Lock()
		r.status = Status{Last: &res}
		r.cancel = nil
		r.mu.Unlock()
	}()

	return runID, nil
}

// Stop cancels the active run and waits for it to wind down.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.status.Running || r.cancel == nil {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Wait blocks until the active run, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Run executes params synchronously. Cancelling ctx stops the run between
// steps; that is reported as OutcomeStopped with a nil error.
func (r *Runner) Run(ctx context.Context, params Params) (Result, error) {
	if err := params.Validate(r.Layout); err != nil {
		return Result{Kind: params.Kind, Outcome: OutcomeFailed}, err
	}
	return r.run(ctx, r.newRunID(), params)
}

func (r *Runner) run(ctx context.Context, runID string, params Params) (Result, error) {
	s := &session{
		runner: r,
		runID:  runID,
		kind:   params.Kind,
		params: params,
	}
	log := r.logger().With(logging.String("run_id", runID), logging.String("scenario", string(params.Kind)))
	log.Info(ctx, "simulation started")
	s.emit(Frame{Phase: s.startPhase(), Event: EventRunStarted, Message: "Simulation started"})

	var err error
	switch params.Kind {
	case KindProximity:
		err = s.runProximity(ctx)
	case KindPath:
		err = s.runPath(ctx, false)
	case KindDwell:
		err = s.runPath(ctx, true)
	case KindTour:
		err = s.runTour(ctx, -1)
	case KindTruck:
		err = s.runTruck(ctx)
	case KindLogistics:
		err = s.runLogistics(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownScenario, params.Kind)
	}

	res := Result{RunID: runID, Kind: params.Kind, Steps: s.steps}
	final := Frame{Phase: s.phase, Done: true}
	switch {
	case err == nil:
		res.Outcome = OutcomeCompleted
		final.Event, final.Message = EventRunCompleted, "Simulation complete"
	case errors.Is(err, context.Canceled):
		res.Outcome = OutcomeStopped
		final.Event, final.Message = EventRunStopped, "Simulation stopped"
		err = nil
	default:
		res.Outcome = OutcomeFailed
		final.Event, final.Message, final.Error = EventRunFailed, "Simulation failed", err.Error()
	}
	final.Outcome = res.Outcome
	s.emit(final)

	log.Info(ctx, "simulation finished",
		logging.String("outcome", string(res.Outcome)),
		logging.Int("steps", res.Steps),
	)
	return res, err
}

func (r *Runner) emit(f Frame) {
	r.mu.Lock()
	listeners := append([]func(Frame){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(f)
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleeper == nil {
		return WallSleeper{}.Sleep(ctx, d)
	}
	return r.Sleeper.Sleep(ctx, d)
}

func (r *Runner) newRunID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() logging.Logger {
	if r.Log == nil {
		return logging.Noop()
	}
	return r.Log
}

// session is the state of a single run.
type session struct {
	runner *Runner
	runID  string
	kind   Kind
	params Params
	phase  Phase
	steps  int
}

func (s *session) startPhase() Phase {
	if s.kind == KindTruck || s.kind == KindLogistics {
		return PhaseTruck
	}
	return PhaseFactory
}

func (s *session) emit(f Frame) {
	f.RunID = s.runID
	f.Scenario = s.kind
	if f.Phase == "" {
		f.Phase = s.startPhase()
	}
	s.phase = f.Phase
	f.Time = s.runner.now()
	s.runner.emit(f)
}

// runProximity walks the L-shaped path, recolouring machines by distance and
// sampling the unit sensor.
func (s *session) runProximity(ctx context.Context) error {
	r := s.runner
	var prev map[int]bool

	for step, p := range factory.ProximityPath() {
		if err := ctx.Err(); err != nil {
			return err
		}

		states := r.Layout.States(p, r.Settings.ProximityRadius)
		reading := r.Sensors.Unit(step)
		agv := p

		f := Frame{Phase: PhaseFactory, Step: step, AGV: &agv, Machines: states, Reading: &reading}
		if changed := proximityChanges(prev, states); len(changed) > 0 {
			f.Event = EventProximityChanged
			f.Message = strings.Join(changed, ", ")
		}
		prev = nearSet(states)

		s.emit(f)
		s.steps++

		if err := r.sleep(ctx, r.Settings.ProximityInterval); err != nil {
			return err
		}
	}
	return nil
}

// runPath walks the fixed path. With dwell set, the AGV waits at any machine
// whose position it stops on.
func (s *session) runPath(ctx context.Context, dwell bool) error {
	r := s.runner

	for step, p := range r.FixedPath {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dwell {
			if m, ok := r.Layout.MachineAt(p); ok {
				if err := s.dwell(ctx, step, p, m, m.Dwell); err != nil {
					return err
				}
			}
		}
		if err := s.factoryStep(ctx, step, p); err != nil {
			return err
		}
	}
	return nil
}

// runTour visits the machines in the chosen order, lap after lap. A negative
// limit tours until the context is cancelled; otherwise a new lap only starts
// while fewer than limit steps have been taken.
func (s *session) runTour(ctx context.Context, limit int) error {
	r := s.runner

	order := s.params.Order
	if len(order) == 0 {
		order = r.Settings.TourOrder
	}
	path, err := r.Layout.TourPath(order)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		return fmt.Errorf("%w: empty tour", ErrInvalidParams)
	}

	step := 0
	for limit < 0 || step < limit {
		for _, p := range path {
			if err := ctx.Err(); err != nil {
				return err
			}
			if m, ok := r.Layout.MachineAt(p); ok {
				if err := s.dwell(ctx, step, p, m, s.tourDwell(m)); err != nil {
					return err
				}
			}
			if err := s.factoryStep(ctx, step, p); err != nil {
				return err
			}
			step++
		}
	}
	return nil
}

func (s *session) tourDwell(m factory.Machine) time.Duration {
	if d, ok := s.params.Dwell[m.ID]; ok {
		return d
	}
	return s.runner.Settings.TourDwell
}

func (s *session) dwell(ctx context.Context, step int, p factory.Point, m factory.Machine, d time.Duration) error {
	agv := p
	s.emit(Frame{
		Phase:    PhaseFactory,
		Step:     step,
		AGV:      &agv,
		Machines: s.runner.Layout.States(p, 0),
		Event:    EventMachineArrived,
		Message:  fmt.Sprintf("AGV reached %s - dwelling %s", m.Name, d),
	})
	return s.runner.sleep(ctx, d)
}

// factoryStep samples the four sensors at p, publishes the frame and waits
// for the step interval.
func (s *session) factoryStep(ctx context.Context, step int, p factory.Point) error {
	r := s.runner
	reading := r.Sensors.Sample(step)
	agv := p

	s.emit(Frame{
		Phase:    PhaseFactory,
		Step:     step,
		AGV:      &agv,
		Machines: r.Layout.States(p, 0),
		Reading:  &reading,
	})
	s.steps++

	return r.sleep(ctx, r.Settings.StepInterval)
}

// resolve geocodes both addresses and, when a router is configured, fetches
// the street route for the map.
func (s *session) resolve(ctx context.Context) (truck.Snapshot, error) {
	r := s.runner
	if r.Geocoder == nil {
		return truck.Snapshot{}, errors.New("no geocoder configured")
	}

	snap := truck.Snapshot{
		SourceAddress:      firstNonEmpty(s.params.Source, r.Settings.SourceAddress),
		DestinationAddress: firstNonEmpty(s.params.Destination, r.Settings.DestinationAddress),
	}

	var err error
	if snap.Source, err = r.Geocoder.Geocode(ctx, snap.SourceAddress); err != nil {
		return snap, fmt.Errorf("source address: %w", err)
	}
	if snap.Destination, err = r.Geocoder.Geocode(ctx, snap.DestinationAddress); err != nil {
		return snap, fmt.Errorf("destination address: %w", err)
	}
	snap.Position = snap.Source

	if r.Router != nil {
		route, err := r.Router.Route(ctx, snap.Source, snap.Destination)
		if err != nil {
			r.logger().Warn(ctx, "route lookup failed; drawing straight line",
				logging.String("run_id", s.runID), logging.Err(err))
		} else {
			snap.Route = route.Path
		}
	}
	return snap, nil
}

// driveStep moves the truck one fraction closer and publishes the frame.
func (s *session) driveStep(snap *truck.Snapshot, step int, fraction float64) {
	r := s.runner
	snap.Position = truck.Move(snap.Position, snap.Destination, fraction)
	snap.Step = step
	snap.RemainingKm = truck.DistanceKm(snap.Position, snap.Destination)
	snap.Arrived = truck.Arrived(snap.Position, snap.Destination, r.Settings.ArrivalTolerance)

	cp := *snap
	s.emit(Frame{Phase: PhaseTruck, Step: step, Truck: &cp})
	s.steps++
}

// runTruck drives until the truck is within the arrival tolerance.
func (s *session) runTruck(ctx context.Context) error {
	r := s.runner
	snap, err := s.resolve(ctx)
	if err != nil {
		return err
	}

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.driveStep(&snap, step, r.Settings.TruckStepFraction)

		if err := r.sleep(ctx, r.Settings.StepInterval); err != nil {
			return err
		}
		if snap.Arrived {
			cp := snap
			s.emit(Frame{Phase: PhaseTruck, Step: step, Truck: &cp, Event: EventTruckArrived, Message: "Truck arrived at destination"})
			return nil
		}
	}
}

// runLogistics drives the truck for a fixed number of steps and then runs
// the factory tour.
func (s *session) runLogistics(ctx context.Context) error {
	r := s.runner
	snap, err := s.resolve(ctx)
	if err != nil {
		return err
	}

	for step := 0; step < r.Settings.TruckStepLimit; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.driveStep(&snap, step, r.Settings.LogisticsStepFraction)
		if err := r.sleep(ctx, r.Settings.StepInterval); err != nil {
			return err
		}
	}

	return s.runTour(ctx, r.Settings.FactoryStepLimit)
}

func proximityChanges(prev map[int]bool, states []factory.MachineState) []string {
	var changed []string
	for _, st := range states {
		if st.Near == prev[st.ID] {
			continue
		}
		if st.Near {
			changed = append(changed, st.Name+" near")
		} else if prev != nil {
			changed = append(changed, st.Name+" clear")
		}
	}
	sort.Strings(changed)
	return changed
}

func nearSet(states []factory.MachineState) map[int]bool {
	m := make(map[int]bool, len(states))
	for _, st := range states {
		m[st.ID] = st.Near
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
