// Package memstore provides an in-memory implementation of approval.Store.
// Suitable for dev and tests; production runs use pgstore so approval state
// survives restarts.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/threatwatch/internal/approval"
)

// Store holds approval states in memory, keyed by threat ID.
type Store struct {
	mu     sync.RWMutex
	states map[string]*approval.State
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{states: make(map[string]*approval.State)}
}

// Get retrieves the state for a threat ID. Returns a copy.
func (s *Store) Get(_ context.Context, threatID string) (*approval.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[threatID]
	if !ok {
		return nil, false, nil
	}
	cp := *st
	return &cp, true, nil
}

// List returns copies of all stored states, ordered by threat ID.
func (s *Store) List(_ context.Context) ([]*approval.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*approval.State, 0, len(s.states))
	for _, st := range s.states {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreatID < out[j].ThreatID })
	return out, nil
}

// Update stores next only when the current status matches expect; an absent
// entry counts as not_posted. The check and write happen under one lock, so
// concurrent updaters cannot both win.
func (s *Store) Update(_ context.Context, next *approval.State, expect approval.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := approval.StatusNotPosted
	if st, ok := s.states[next.ThreatID]; ok {
		current = st.Status
	}
	if current != expect {
		return approval.ErrConflict
	}

	cp := *next
	s.states[next.ThreatID] = &cp
	return nil
}

// Put stores a copy of next unconditionally.
func (s *Store) Put(_ context.Context, next *approval.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *next
	s.states[next.ThreatID] = &cp
	return nil
}
