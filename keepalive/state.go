// Package keepalive implements the per-tunnel health state machine.
//
// A TunnelState is owned by exactly one goroutine at a time; nothing in this package locks.
package keepalive

import (
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TunnelState holds the identity and health counters of one monitored tunnel.
type TunnelState struct {
	// Name selects the restart target, e.g. the interface name wg0.
	Name string
	// Address is probed each tick; usually the tunnel's gateway.
	Address netip.Addr

	// Failures is the number of consecutive failed probes. It is reset to 0 by any success.
	Failures int
	// WasReachable is the outcome of the previous tick. It starts false since nothing has been probed yet.
	WasReachable bool

	// Restarts counts restart attempts in the current failure streak.
	Restarts    int
	LastProbe   time.Time
	LastRestart time.Time
	// NextRestart is the earliest time the backoff policy allows another attempt.
	NextRestart time.Time

	backoff *backoff.ExponentialBackOff
}

// NewTunnelState returns the initial state for a tunnel.
func NewTunnelState(name string, addr netip.Addr) *TunnelState {
	return &TunnelState{Name: name, Address: addr}
}

// Snapshot is a copy of the exported fields of a TunnelState, safe to hand to other goroutines.
type Snapshot struct {
	Name         string
	Address      string
	Failures     int
	WasReachable bool
	Restarts     int
	LastProbe    time.Time
	LastRestart  time.Time
}

func (s *TunnelState) Snapshot() Snapshot {
	return Snapshot{
		Name:         s.Name,
		Address:      s.Address.String(),
		Failures:     s.Failures,
		WasReachable: s.WasReachable,
		Restarts:     s.Restarts,
		LastProbe:    s.LastProbe,
		LastRestart:  s.LastRestart,
	}
}
