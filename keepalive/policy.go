package keepalive

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy decides whether a tunnel above the failure threshold is restarted on a given tick.
type Policy string

const (
	// PolicyEveryTick restarts on every tick while the tunnel stays above the threshold.
	PolicyEveryTick Policy = "every-tick"
	// PolicyOnce restarts at most once per failure streak.
	PolicyOnce Policy = "once"
	// PolicyBackoff restarts immediately once above the threshold, then waits exponentially longer between attempts.
	PolicyBackoff Policy = "backoff"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyEveryTick, PolicyOnce, PolicyBackoff:
		return p, nil
	case "":
		return PolicyEveryTick, nil
	default:
		return "", fmt.Errorf("unknown restart policy %q (want every-tick, once or backoff)", s)
	}
}

func (e *Evaluator) allowRestart(s *TunnelState, now time.Time) bool {
	switch e.Policy {
	case PolicyOnce:
		return s.Restarts == 0
	case PolicyBackoff:
		return s.Restarts == 0 || !now.Before(s.NextRestart)
	default:
		return true
	}
}

// recordRestart books a restart attempt, successful or not.
func (e *Evaluator) recordRestart(s *TunnelState, now time.Time) {
	s.Restarts++
	s.LastRestart = now
	if e.Policy != PolicyBackoff {
		return
	}
	if s.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = e.BackoffInitial
		b.MaxInterval = e.BackoffMax
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()
		s.backoff = b
	}
	s.NextRestart = now.Add(s.backoff.NextBackOff())
}

// resetStreak forgets restart bookkeeping after a success.
func resetStreak(s *TunnelState) {
	s.Restarts = 0
	s.NextRestart = time.Time{}
	s.backoff = nil
}
