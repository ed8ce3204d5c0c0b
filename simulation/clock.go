package simulation

import (
	"context"
	"time"
)

// Sleeper pauses the simulation loop between steps. Sleep returns early with
// the context error when the run is stopped.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// WallSleeper sleeps on the wall clock.
type WallSleeper struct{}

func (WallSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
