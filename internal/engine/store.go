package engine

import (
	"errors"
	"sync/atomic"
)

// ErrModelUnavailable indicates no generation has ever completed training.
// Only possible at cold start, before the first train or artifact load.
var ErrModelUnavailable = errors.New("no trained model generation available")

// Store holds the currently live generation behind an atomic pointer. Reads
// grab the reference once and keep using it; the swap is a single pointer
// store, so no lock is held for the duration of training.
type Store struct {
	live atomic.Pointer[Generation]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Live returns the current live generation, or ErrModelUnavailable before the
// first generation is published.
func (s *Store) Live() (*Generation, error) {
	g := s.live.Load()
	if g == nil {
		return nil, ErrModelUnavailable
	}
	return g, nil
}

// Swap unconditionally publishes g as the live generation.
func (s *Store) Swap(g *Generation) {
	s.live.Store(g)
}

// SwapIfNewer publishes g only if it is strictly newer than the current live
// generation. Returns whether the swap happened. Used by artifact hot-reload
// so a concurrently completing local run can never be regressed.
func (s *Store) SwapIfNewer(g *Generation) bool {
	for {
		cur := s.live.Load()
		if cur != nil && cur.ID >= g.ID {
			return false
		}
		if s.live.CompareAndSwap(cur, g) {
			return true
		}
	}
}
