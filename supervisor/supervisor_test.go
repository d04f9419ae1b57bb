package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nyiyui/wgkeepalive/keepalive"
	"github.com/nyiyui/wgkeepalive/probe"
)

type countingRestarter struct {
	lock  sync.Mutex
	calls []string
}

func (r *countingRestarter) Restart(ctx context.Context, name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, name)
	return nil
}

func (r *countingRestarter) Calls() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.calls...)
}

// scripted answers each tunnel's probes from a fixed list; once the list runs out the last answer repeats.
type scripted struct {
	lock    sync.Mutex
	answers map[string][]bool
	delay   map[string]time.Duration
}

func (p *scripted) Probe(ctx context.Context, t probe.Target) (bool, error) {
	p.lock.Lock()
	as := p.answers[t.Name]
	ok := as[0]
	if len(as) > 1 {
		p.answers[t.Name] = as[1:]
	}
	d := p.delay[t.Name]
	p.lock.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return ok, nil
}

type memRecorder struct {
	rounds int
	snaps  []keepalive.Snapshot
	events []keepalive.Event
}

func (r *memRecorder) Record(snaps []keepalive.Snapshot, events []keepalive.Event) error {
	r.rounds++
	r.snaps = snaps
	r.events = append(r.events, events...)
	return nil
}

type brief struct {
	Kind   keepalive.EventKind
	Tunnel string
	Count  int
}

func briefs(events []keepalive.Event) []brief {
	var bs []brief
	for _, e := range events {
		bs = append(bs, brief{e.Kind, e.Tunnel, e.Count})
	}
	return bs
}

func newSupervisor(p probe.Prober, r keepalive.Restarter, names ...string) (*Supervisor, *[]keepalive.Event) {
	var got []keepalive.Event
	s := &Supervisor{
		Prober:    p,
		Evaluator: &keepalive.Evaluator{Threshold: keepalive.DefaultThreshold, Restarter: r},
		Sink:      func(e keepalive.Event) { got = append(got, e) },
	}
	for i, name := range names {
		s.States = append(s.States, keepalive.NewTunnelState(name, netip.AddrFrom4([4]byte{10, byte(i), 0, 1})))
	}
	return s, &got
}

func TestScenario(t *testing.T) {
	r := new(countingRestarter)
	p := &scripted{answers: map[string][]bool{"wg0": {false, false, false, false, true}}}
	s, got := newSupervisor(p, r, "wg0")
	rec := new(memRecorder)
	s.Recorder = rec
	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	want := []brief{
		{keepalive.EventDown, "wg0", 1},
		{keepalive.EventWaiting, "wg0", 1},
		{keepalive.EventWaiting, "wg0", 2},
		{keepalive.EventWaiting, "wg0", 3},
		{keepalive.EventWaiting, "wg0", 4},
		{keepalive.EventRestart, "wg0", 4},
		{keepalive.EventRestarted, "wg0", 4},
		{keepalive.EventUp, "wg0", 0},
	}
	if !cmp.Equal(briefs(*got), want) {
		t.Log(cmp.Diff(briefs(*got), want))
		t.Fatal("mismatch")
	}
	if calls := r.Calls(); !cmp.Equal(calls, []string{"wg0"}) {
		t.Fatalf("restarts: %v", calls)
	}
	if rec.rounds != 5 || len(rec.events) != len(want) {
		t.Fatalf("recorder saw %d rounds and %d events", rec.rounds, len(rec.events))
	}
	if rec.snaps[0].Failures != 0 || !rec.snaps[0].WasReachable {
		t.Fatalf("last snapshot: %+v", rec.snaps[0])
	}
}

func TestIndependentTunnels(t *testing.T) {
	r := new(countingRestarter)
	p := &scripted{answers: map[string][]bool{"a": {false}, "b": {true}}}
	s, _ := newSupervisor(p, r, "a", "b")
	s.Workers = 2
	for i := 0; i < 4; i++ {
		s.Tick(context.Background())
	}
	if calls := r.Calls(); !cmp.Equal(calls, []string{"a"}) {
		t.Fatalf("restarts: %v", calls)
	}
	if s.States[0].Failures != 4 || s.States[1].Failures != 0 || !s.States[1].WasReachable {
		t.Fatalf("states: %+v %+v", s.States[0], s.States[1])
	}
}

func TestEventOrderWithWorkers(t *testing.T) {
	p := &scripted{answers: map[string][]bool{}, delay: map[string]time.Duration{}}
	var names []string
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("wg%d", i)
		names = append(names, name)
		p.answers[name] = []bool{false}
		// later tunnels finish first
		p.delay[name] = time.Duration(6-i) * 5 * time.Millisecond
	}
	s, got := newSupervisor(p, new(countingRestarter), names...)
	s.Workers = 6
	s.Tick(context.Background())
	var want []brief
	for _, name := range names {
		want = append(want, brief{keepalive.EventDown, name, 1}, brief{keepalive.EventWaiting, name, 1})
	}
	if !cmp.Equal(briefs(*got), want) {
		t.Log(cmp.Diff(briefs(*got), want))
		t.Fatal("events out of registration order")
	}
}

func TestProbeTimeout(t *testing.T) {
	p := probe.ProberFunc(func(ctx context.Context, _ probe.Target) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	s, got := newSupervisor(p, new(countingRestarter), "wg0")
	s.ProbeTimeout = 10 * time.Millisecond
	s.Tick(context.Background())
	want := []brief{
		{keepalive.EventProbeError, "wg0", 0},
		{keepalive.EventDown, "wg0", 1},
		{keepalive.EventWaiting, "wg0", 1},
	}
	if !cmp.Equal(briefs(*got), want) {
		t.Log(cmp.Diff(briefs(*got), want))
		t.Fatal("mismatch")
	}
	if !errors.Is((*got)[0].Err, context.DeadlineExceeded) {
		t.Fatalf("probe error = %v", (*got)[0].Err)
	}
}

func TestPingWithoutReplyIsCleanFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not in PATH")
	}
	// stands in for ping -W waiting out its timeout
	script := filepath.Join(t.TempDir(), "ping")
	err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	s, got := newSupervisor(&probe.PingCommand{Command: script, Timeout: time.Second}, new(countingRestarter), "wg0")
	s.ProbeTimeout = 50 * time.Millisecond
	s.Tick(context.Background())
	want := []brief{
		{keepalive.EventDown, "wg0", 1},
		{keepalive.EventWaiting, "wg0", 1},
	}
	if !cmp.Equal(briefs(*got), want) {
		t.Log(cmp.Diff(briefs(*got), want))
		t.Fatal("mismatch")
	}
}

func TestProbeErrorOverridesOK(t *testing.T) {
	p := probe.ProberFunc(func(context.Context, probe.Target) (bool, error) {
		return true, errors.New("half an answer")
	})
	s, _ := newSupervisor(p, new(countingRestarter), "wg0")
	s.Tick(context.Background())
	if s.States[0].Failures != 1 {
		t.Fatalf("Failures = %d, want 1", s.States[0].Failures)
	}
}

func TestRunStops(t *testing.T) {
	p := &scripted{answers: map[string][]bool{"wg0": {true}}}
	s, _ := newSupervisor(p, new(countingRestarter), "wg0")
	s.Interval = 5 * time.Millisecond
	rec := new(memRecorder)
	s.Recorder = rec
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if rec.rounds < 2 {
		t.Fatalf("only %d rounds ran", rec.rounds)
	}
}

func TestShutdownFinishesRound(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := probe.ProberFunc(func(ctx context.Context, _ probe.Target) (bool, error) {
		close(started)
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
	s, got := newSupervisor(p, new(countingRestarter), "wg0")
	s.ProbeTimeout = time.Minute
	s.ShutdownTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started
	cancel()
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if want := []brief{{keepalive.EventUp, "wg0", 0}}; !cmp.Equal(briefs(*got), want) {
		t.Log(cmp.Diff(briefs(*got), want))
		t.Fatal("in-flight round did not finish")
	}
}

func TestShutdownTimeout(t *testing.T) {
	started := make(chan struct{})
	p := probe.ProberFunc(func(ctx context.Context, _ probe.Target) (bool, error) {
		close(started)
		<-ctx.Done()
		return false, ctx.Err()
	})
	s, got := newSupervisor(p, new(countingRestarter), "wg0")
	s.ProbeTimeout = time.Minute
	s.ShutdownTimeout = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the shutdown timeout")
	}
	if len(*got) != 0 || s.States[0].Failures != 0 {
		t.Fatalf("abandoned probe was evaluated: %+v", *got)
	}
}
