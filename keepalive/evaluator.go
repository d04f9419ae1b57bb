package keepalive

import (
	"context"
	"time"
)

// DefaultThreshold is the number of failures tolerated before a restart.
const DefaultThreshold = 3

// Restarter restarts the service behind a tunnel.
// It is implemented in package restart.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

// Evaluator consumes one probe result per tunnel per tick and decides whether to restart the tunnel.
type Evaluator struct {
	// Threshold is the number of consecutive failures tolerated.
	// A restart is considered once Failures is strictly greater.
	Threshold int
	Policy    Policy
	// RestartTimeout bounds each Restarter call. Zero means no bound beyond ctx.
	RestartTimeout time.Duration
	// BackoffInitial and BackoffMax shape PolicyBackoff.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Restarter      Restarter
	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Evaluate applies one probe outcome to s, emitting events to sink.
// probeErr is set when the probe could not give a clean answer; ok must then be false.
// It returns whether a restart was attempted on this tick.
func (e *Evaluator) Evaluate(ctx context.Context, s *TunnelState, ok bool, probeErr error, sink EventSink) (restarted bool) {
	if e.Restarter == nil {
		panic("keepalive: Evaluator.Restarter must not be nil")
	}
	now := e.now()
	s.LastProbe = now
	emit := func(kind EventKind, err error) {
		if sink != nil {
			sink(Event{Time: e.now(), Kind: kind, Tunnel: s.Name, Count: s.Failures, Err: err})
		}
	}

	if ok && probeErr == nil {
		s.Failures = 0
		resetStreak(s)
		if !s.WasReachable {
			emit(EventUp, nil)
		}
		s.WasReachable = true
		return false
	}

	if probeErr != nil {
		emit(EventProbeError, probeErr)
	}
	s.Failures++
	if s.Failures == 1 {
		emit(EventDown, nil)
	}
	emit(EventWaiting, nil)

	if s.Failures > e.Threshold && e.allowRestart(s, now) {
		emit(EventRestart, nil)
		err := e.restart(ctx, s.Name)
		e.recordRestart(s, now)
		if err != nil {
			emit(EventRestartFailed, err)
		} else {
			emit(EventRestarted, nil)
		}
		restarted = true
	}
	s.WasReachable = false
	return restarted
}

func (e *Evaluator) restart(ctx context.Context, name string) error {
	if e.RestartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.RestartTimeout)
		defer cancel()
	}
	return e.Restarter.Restart(ctx, name)
}
