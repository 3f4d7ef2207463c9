package store

import (
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quotewatch/quotewatch/pkg/types"
)

// Store is the process-wide quote cache. The zero value is not usable; call New.
type Store struct {
	mu     sync.Mutex // serialises writers
	cur    atomic.Pointer[types.Snapshot]
	writes atomic.Uint64
}

// New returns a Store in the initializing state with every symbol unavailable.
func New(symbols []string) *Store {
	recs := make(map[string]types.QuoteRecord, len(symbols))
	for _, sym := range symbols {
		recs[sym] = types.Unavailable(sym, time.Time{})
	}
	s := &Store{}
	s.cur.Store(&types.Snapshot{
		Records: recs,
		Status:  types.StatusInitializing,
	})
	return s
}

// Snapshot returns a copy of the current snapshot. It never blocks.
func (s *Store) Snapshot() types.Snapshot {
	return s.cur.Load().Clone()
}

// Replace installs records as the full record set of a successful cycle.
// Status becomes success, or partial if any record lacks a side; Ready is
// set and Error cleared. LastUpdated is at, nudged forward if needed so it
// strictly increases across replacements. Records is copied.
func (s *Store) Replace(records map[string]types.QuoteRecord, at time.Time, next time.Duration) types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	if !at.After(prev.LastUpdated) {
		at = prev.LastUpdated.Add(time.Nanosecond)
	}

	status := types.StatusSuccess
	for _, r := range records {
		if !r.Complete() {
			status = types.StatusPartial
			break
		}
	}

	snap := types.Snapshot{
		Records:      maps.Clone(records),
		Status:       status,
		LastUpdated:  at,
		NextInterval: next,
		Ready:        true,
	}
	if snap.Records == nil {
		snap.Records = map[string]types.QuoteRecord{}
	}
	s.swap(&snap)
	return snap.Clone()
}

// RecordFailure marks the last cycle as failed. Records, LastUpdated and
// Ready are carried over unchanged.
func (s *Store) RecordFailure(msg string, next time.Duration) types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := *s.cur.Load()
	snap.Status = types.StatusError
	snap.Error = msg
	snap.NextInterval = next
	s.swap(&snap)
	return snap.Clone()
}

// Writes returns how many updates have been applied.
func (s *Store) Writes() uint64 { return s.writes.Load() }

func (s *Store) swap(snap *types.Snapshot) {
	s.cur.Store(snap)
	n := s.writes.Add(1)
	slog.Debug("store: snapshot updated",
		"status", snap.Status,
		"ready", snap.Ready,
		"next", snap.NextInterval,
		"write", n,
	)
}
