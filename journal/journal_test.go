package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nyiyui/wgkeepalive/keepalive"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRecord(t *testing.T) {
	s, err := Open(":memory:", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.Record([]keepalive.Snapshot{
		{Name: "wg1", Address: "10.1.0.1", Failures: 2},
		{Name: "wg0", Address: "10.0.0.1", WasReachable: true},
	}, []keepalive.Event{
		{Time: t0, Kind: keepalive.EventUp, Tunnel: "wg0"},
		{Time: t0, Kind: keepalive.EventDown, Tunnel: "wg1", Count: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Record([]keepalive.Snapshot{
		{Name: "wg1", Address: "10.1.0.1", Failures: 4, Restarts: 1},
	}, []keepalive.Event{
		{Time: t0.Add(5 * time.Second), Kind: keepalive.EventRestartFailed, Tunnel: "wg1", Count: 4, Err: errors.New("exit status 1")},
	})
	if err != nil {
		t.Fatal(err)
	}

	snaps, err := s.Tunnels()
	if err != nil {
		t.Fatal(err)
	}
	wantSnaps := []keepalive.Snapshot{
		{Name: "wg0", Address: "10.0.0.1", WasReachable: true},
		{Name: "wg1", Address: "10.1.0.1", Failures: 4, Restarts: 1},
	}
	if !cmp.Equal(snaps, wantSnaps) {
		t.Log(cmp.Diff(snaps, wantSnaps))
		t.Fatal("snapshots mismatch")
	}

	entries, err := s.Events(0)
	if err != nil {
		t.Fatal(err)
	}
	wantEntries := []Entry{
		{Seq: 1, Time: t0, Kind: keepalive.EventUp, Tunnel: "wg0"},
		{Seq: 2, Time: t0, Kind: keepalive.EventDown, Tunnel: "wg1", Count: 1},
		{Seq: 3, Time: t0.Add(5 * time.Second), Kind: keepalive.EventRestartFailed, Tunnel: "wg1", Count: 4, Error: "exit status 1"},
	}
	if !cmp.Equal(entries, wantEntries) {
		t.Log(cmp.Diff(entries, wantEntries))
		t.Fatal("events mismatch")
	}

	latest, err := s.Events(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 || latest[0].Seq != 2 || latest[1].Seq != 3 {
		t.Fatalf("Events(2) = %+v", latest)
	}
}

func TestEventOrderPastTen(t *testing.T) {
	s, err := Open(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	for i := 1; i <= 12; i++ {
		err := s.Record(nil, []keepalive.Event{{Time: t0, Kind: keepalive.EventWaiting, Tunnel: "wg0", Count: i}})
		if err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Events(3)
	if err != nil {
		t.Fatal(err)
	}
	var counts []int
	for _, en := range entries {
		counts = append(counts, en.Count)
	}
	if want := []int{10, 11, 12}; !cmp.Equal(counts, want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Record(nil, []keepalive.Event{
		{Time: t0, Kind: keepalive.EventDown, Tunnel: "wg0", Count: 1},
		{Time: t0, Kind: keepalive.EventWaiting, Tunnel: "wg0", Count: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err = s.Record(nil, []keepalive.Event{{Time: t0, Kind: keepalive.EventUp, Tunnel: "wg0"}})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := s.Events(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[2].Seq != 3 || entries[2].Kind != keepalive.EventUp {
		t.Fatalf("entries = %+v", entries)
	}
}
