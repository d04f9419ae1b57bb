// Package journal keeps the latest tunnel snapshots and a bounded history of events in buntdb.
//
// The journal is write-only from the supervisor's point of view; it is read by the control socket.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nyiyui/wgkeepalive/keepalive"
	"github.com/tidwall/buntdb"
	"go.uber.org/multierr"
)

const (
	tunnelPrefix = "tunnel:"
	eventPrefix  = "event:"
	eventIndex   = "events"
)

// Entry is the stored form of a keepalive.Event.
type Entry struct {
	Seq    int64               `json:"seq"`
	Time   time.Time           `json:"time"`
	Kind   keepalive.EventKind `json:"kind"`
	Tunnel string              `json:"tunnel"`
	Count  int                 `json:"count"`
	Error  string              `json:"error,omitempty"`
}

func entryFrom(seq int64, e keepalive.Event) Entry {
	en := Entry{
		Seq:    seq,
		Time:   e.Time,
		Kind:   e.Kind,
		Tunnel: e.Tunnel,
		Count:  e.Count,
	}
	if e.Err != nil {
		en.Error = e.Err.Error()
	}
	return en
}

type Store struct {
	db *buntdb.DB
	// history is how long events are kept. Zero keeps them forever.
	history time.Duration
	seq     atomic.Int64
}

// Open opens (or creates) the journal at path. ":memory:" keeps it in memory.
func Open(path string, history time.Duration) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	err = db.CreateIndex(eventIndex, eventPrefix+"*", buntdb.IndexJSON("seq"))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("creating index: %w", err), db.Close())
	}
	s := &Store{db: db, history: history}
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(eventIndex, func(_, value string) bool {
			var en Entry
			if json.Unmarshal([]byte(value), &en) == nil {
				s.seq.Store(en.Seq)
			}
			return false
		})
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("reading last event: %w", err), db.Close())
	}
	return s, nil
}

func eventKey(seq int64) string {
	return eventPrefix + strconv.FormatInt(seq, 10)
}

// Record stores the latest snapshots (replacing earlier ones of the same tunnel) and appends events.
func (s *Store) Record(snapshots []keepalive.Snapshot, events []keepalive.Event) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, snap := range snapshots {
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			_, _, err = tx.Set(tunnelPrefix+snap.Name, string(data), nil)
			if err != nil {
				return fmt.Errorf("storing tunnel %s: %w", snap.Name, err)
			}
		}
		var opts *buntdb.SetOptions
		if s.history > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: s.history}
		}
		for _, e := range events {
			seq := s.seq.Add(1)
			data, err := json.Marshal(entryFrom(seq, e))
			if err != nil {
				return err
			}
			_, _, err = tx.Set(eventKey(seq), string(data), opts)
			if err != nil {
				return fmt.Errorf("storing event %d: %w", seq, err)
			}
		}
		return nil
	})
}

// Tunnels returns the latest snapshot of every recorded tunnel, ordered by name.
func (s *Store) Tunnels() ([]keepalive.Snapshot, error) {
	var snaps []keepalive.Snapshot
	err := s.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(tunnelPrefix+"*", func(key, value string) bool {
			var snap keepalive.Snapshot
			if err := json.Unmarshal([]byte(value), &snap); err != nil {
				decodeErr = fmt.Errorf("decoding %s: %w", key, err)
				return false
			}
			snaps = append(snaps, snap)
			return true
		})
		return multierr.Append(err, decodeErr)
	})
	return snaps, err
}

// Events returns up to limit of the most recent events, oldest first.
// A limit of 0 or less returns every retained event.
func (s *Store) Events(limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.Descend(eventIndex, func(key, value string) bool {
			var en Entry
			if err := json.Unmarshal([]byte(value), &en); err != nil {
				decodeErr = fmt.Errorf("decoding %s: %w", key, err)
				return false
			}
			entries = append(entries, en)
			return limit <= 0 || len(entries) < limit
		})
		return multierr.Append(err, decodeErr)
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	err := s.db.Close()
	if errors.Is(err, buntdb.ErrDatabaseClosed) {
		return nil
	}
	return err
}
