// Package scenarios launches and stops simulation runs from the sidebar and
// fans every frame out to the dashboard, the reading table, the metrics and
// the event log.
package scenarios

import (
	"context"

	"github.com/fkdmshk/agv-simulation/events"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/sensors"
	"github.com/fkdmshk/agv-simulation/simulation"
	"github.com/fkdmshk/agv-simulation/truck"
)

type Broadcaster interface {
	Broadcast(v any)
}

type ReadingRecorder interface {
	Record(ctx context.Context, runID, scenario string, r sensors.Reading) error
}

type FrameObserver interface {
	ObserveFrame(f simulation.Frame)
}

// Sinks are the consumers of simulation frames. Nil sinks are skipped.
type Sinks struct {
	Readings ReadingRecorder
	Board    interface{ Update(simulation.Frame) }
	Tracker  *truck.Tracker
	Metrics  FrameObserver
	Events   *events.Log
	Hub      Broadcaster
	Log      logging.Logger
}

// Listener returns the runner listener feeding every sink. The hub is fed
// last so dashboards reloading on a frame already see its reading.
func (s Sinks) Listener() func(simulation.Frame) {
	log := s.Log
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	return func(f simulation.Frame) {
		if f.Reading != nil && s.Readings != nil {
			if err := s.Readings.Record(ctx, f.RunID, string(f.Scenario), *f.Reading); err != nil {
				log.Warn(ctx, "failed to record reading", logging.String("run_id", f.RunID), logging.Err(err))
			}
		}
		if s.Board != nil {
			s.Board.Update(f)
		}
		if s.Tracker != nil {
			switch {
			case f.Event == simulation.EventRunStarted && f.Phase == simulation.PhaseTruck:
				s.Tracker.Clear()
			case f.Truck != nil && f.Event == "":
				s.Tracker.Record(*f.Truck, f.Time)
			}
		}
		if s.Metrics != nil {
			s.Metrics.ObserveFrame(f)
		}
		if f.Event != "" && s.Events != nil {
			if err := s.Events.LogEvent(eventFromFrame(f)); err != nil {
				log.Warn(ctx, "failed to log event", logging.Err(err))
			}
		}
		if s.Hub != nil {
			s.Hub.Broadcast(f)
		}
	}
}

func eventFromFrame(f simulation.Frame) events.Event {
	detail := f.Message
	if f.Error != "" {
		detail = f.Error
	}
	return events.Event{
		Type:      f.Event,
		Program:   string(f.Scenario),
		RunID:     f.RunID,
		Detail:    detail,
		Timestamp: f.Time,
	}
}
