// Package supervisor runs the keepalive loop over a fixed set of tunnels.
package supervisor

import (
	"context"
	"time"

	"github.com/nyiyui/wgkeepalive/keepalive"
	"github.com/nyiyui/wgkeepalive/probe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval        = 5 * time.Second
	DefaultProbeTimeout    = 2 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Recorder receives the state of every tunnel and the events of a round after the round has finished.
type Recorder interface {
	Record(snapshots []keepalive.Snapshot, events []keepalive.Event) error
}

type Supervisor struct {
	// States is processed in order on every tick. It must not change once Run is called.
	States    []*keepalive.TunnelState
	Prober    probe.Prober
	Evaluator *keepalive.Evaluator

	Interval     time.Duration
	ProbeTimeout time.Duration
	// ShutdownTimeout is how long in-flight probes and restarts may keep running after Run's context is done.
	ShutdownTimeout time.Duration
	// Workers is the number of tunnels checked at the same time. 0 or 1 checks them one after another.
	Workers int

	// Sink receives every event, in registration order of the tunnels. Defaults to LogEvent.
	Sink     keepalive.EventSink
	Recorder Recorder
}

// Run checks every tunnel, waits Interval, and repeats until ctx is done.
// A round that is in progress when ctx is done is allowed to finish within ShutdownTimeout.
func (s *Supervisor) Run(ctx context.Context) error {
	work, cancel := s.workContext(ctx)
	defer cancel()
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	zap.S().Infof("supervising %d tunnels every %s", len(s.States), interval)
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.S().Info("stopping.")
			return nil
		case <-t.C:
		}
		s.Tick(work)
		t.Reset(interval)
	}
}

// workContext returns a context that outlives ctx by ShutdownTimeout.
func (s *Supervisor) workContext(ctx context.Context) (context.Context, context.CancelFunc) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	grace := s.ShutdownTimeout
	if grace <= 0 {
		grace = DefaultShutdownTimeout
	}
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(grace, cancel)
	})
	return work, func() {
		stop()
		cancel()
	}
}

// Tick runs one round over all tunnels.
func (s *Supervisor) Tick(ctx context.Context) {
	buffers := make([][]keepalive.Event, len(s.States))
	var g errgroup.Group
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, st := range s.States {
		g.Go(func() error {
			buffers[i] = s.check(ctx, st)
			return nil
		})
	}
	_ = g.Wait()

	sink := s.Sink
	if sink == nil {
		sink = LogEvent
	}
	var events []keepalive.Event
	for _, buf := range buffers {
		for _, e := range buf {
			sink(e)
		}
		events = append(events, buf...)
	}
	if s.Recorder == nil {
		return
	}
	snaps := make([]keepalive.Snapshot, len(s.States))
	for i, st := range s.States {
		snaps[i] = st.Snapshot()
	}
	err := s.Recorder.Record(snaps, events)
	if err != nil {
		zap.S().Errorf("recording round: %s", err)
	}
}

// check probes one tunnel and feeds the result to the evaluator. It owns st for its duration.
func (s *Supervisor) check(ctx context.Context, st *keepalive.TunnelState) []keepalive.Event {
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	ok, err := s.Prober.Probe(probeCtx, probe.Target{Name: st.Name, Address: st.Address})
	cancel()
	if ctx.Err() != nil {
		zap.S().Debugf("network %s: probe abandoned: %s", st.Name, ctx.Err())
		return nil
	}
	if err != nil {
		ok = false
	}
	var buf []keepalive.Event
	s.Evaluator.Evaluate(ctx, st, ok, err, func(e keepalive.Event) {
		buf = append(buf, e)
	})
	return buf
}

// LogEvent writes e to the global logger.
func LogEvent(e keepalive.Event) {
	switch e.Kind {
	case keepalive.EventUp:
		zap.S().Infof("network %s is up.", e.Tunnel)
	case keepalive.EventDown:
		zap.S().Warnf("network %s is down.", e.Tunnel)
	case keepalive.EventWaiting:
		zap.S().Infof("network %s waiting %d", e.Tunnel, e.Count)
	case keepalive.EventProbeError:
		zap.S().Warnf("network %s: probe error: %s", e.Tunnel, e.Err)
	case keepalive.EventRestart:
		zap.S().Warnf("network %s probe failed %d times. restarting...", e.Tunnel, e.Count)
	case keepalive.EventRestarted:
		zap.S().Infof("network %s restarted.", e.Tunnel)
	case keepalive.EventRestartFailed:
		zap.S().Errorf("network %s: restart failed: %s", e.Tunnel, e.Err)
	default:
		zap.S().Infof("network %s: %s (%d)", e.Tunnel, e.Kind, e.Count)
	}
}
