package keepalive

import (
	"time"
)

// EventKind identifies a log-worthy transition or action.
type EventKind string

const (
	// EventUp is emitted when a tunnel becomes reachable after being unreachable (or at startup).
	EventUp EventKind = "up"
	// EventDown is emitted on the first failure of a streak.
	EventDown EventKind = "down"
	// EventWaiting is emitted on every failed tick with the current count.
	EventWaiting EventKind = "waiting"
	// EventProbeError is emitted when the probe could not give a clean answer.
	EventProbeError EventKind = "probe-error"
	// EventRestart is emitted right before the restarter is invoked.
	EventRestart EventKind = "restart"
	// EventRestarted is emitted when the restarter reported success.
	EventRestarted EventKind = "restarted"
	// EventRestartFailed is emitted when the restarter reported an error.
	EventRestartFailed EventKind = "restart-failed"
)

type Event struct {
	Time   time.Time
	Kind   EventKind
	Tunnel string
	// Count is the consecutive failure count after the tick.
	Count int
	// Err is set for EventProbeError and EventRestartFailed.
	Err error
}

// EventSink receives events in the order they happen for a tunnel.
type EventSink func(Event)
