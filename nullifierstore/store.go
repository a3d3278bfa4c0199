// Package nullifierstore holds the gossip engine's bounded mapping from
// nullifier to observation record, with time-based pruning and a hard-cap
// safety valve.
package nullifierstore

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/nullmesh/nullmesh/witness"
)

// Record is one locally observed nullifier.
//
// Invariant: PeerCount >= 1 and only ever increases; Proof and FirstSeen
// are fixed at first observation and never overwritten by later ones.
type Record struct {
	Nullifier [32]byte
	Proof     witness.Attestation
	FirstSeen time.Time
	PeerCount int
}

// Store is the nullifier record store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]*Record)}
}

func key(nullifier [32]byte) string {
	return hex.EncodeToString(nullifier[:])
}

// Observe records a nullifier sighting. On first observation it inserts a
// new record with PeerCount=1 and firstObservation=true; on every later
// call for the same nullifier it only increments PeerCount and returns the
// existing record with firstObservation=false.
func (s *Store) Observe(nullifier [32]byte, proof witness.Attestation, now time.Time) (rec Record, firstObservation bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(nullifier)
	if existing, ok := s.records[k]; ok {
		existing.PeerCount++
		return *existing, false
	}

	r := &Record{
		Nullifier: nullifier,
		Proof:     proof,
		FirstSeen: now,
		PeerCount: 1,
	}
	s.records[k] = r
	return *r, true
}

// Get returns the record for nullifier, if any.
func (s *Store) Get(nullifier [32]byte) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key(nullifier)]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// InsertIfAbsent inserts a brand-new record with PeerCount=1 only if
// nullifier is not already known. It reports false, without mutating
// anything, if the nullifier was already present — the primitive a local
// publish uses to detect a local double-spend attempt.
func (s *Store) InsertIfAbsent(nullifier [32]byte, proof witness.Attestation, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(nullifier)
	if _, ok := s.records[k]; ok {
		return false
	}
	s.records[k] = &Record{
		Nullifier: nullifier,
		Proof:     proof,
		FirstSeen: now,
		PeerCount: 1,
	}
	return true
}

// Has reports whether nullifier is already known, without mutating
// anything.
func (s *Store) Has(nullifier [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key(nullifier)]
	return ok
}

// Len returns the current number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Prune removes records older than maxAge (relative to now, measured
// against FirstSeen, the local wall clock — never the witness clock in
// Proof.Timestamp), then, if the store is still over maxNullifiers,
// evicts the oldest-by-FirstSeen records until it is within bound. This
// hard cap is a documented last-resort safety valve: under a sustained
// flood it can evict a record before the network has had a chance to
// converge on it, trading a theoretical double-spend window for liveness.
func (s *Store) Prune(now time.Time, maxAge time.Duration, maxNullifiers int) (aged, evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxAge)
	for k, r := range s.records {
		if r.FirstSeen.Before(cutoff) {
			delete(s.records, k)
			aged++
		}
	}

	if maxNullifiers <= 0 || len(s.records) <= maxNullifiers {
		return aged, evicted
	}

	type entry struct {
		key string
		rec *Record
	}
	remaining := make([]entry, 0, len(s.records))
	for k, r := range s.records {
		remaining = append(remaining, entry{k, r})
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].rec.FirstSeen.Before(remaining[j].rec.FirstSeen)
	})

	excess := len(remaining) - maxNullifiers
	for i := 0; i < excess; i++ {
		delete(s.records, remaining[i].key)
		evicted++
	}
	return aged, evicted
}
