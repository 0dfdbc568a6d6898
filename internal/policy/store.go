package policy

import "sync/atomic"

// Store holds the active policy set behind an atomic pointer. In-flight
// evaluations keep reading the set they loaded; a swap is a single
// pointer switch, never a partial update.
type Store struct {
	active  atomic.Pointer[Set]
	version atomic.Int64
}

// NewStore creates a Store with the given initial set as version 1.
func NewStore(initial *Set) *Store {
	s := &Store{}
	s.Swap(initial)
	return s
}

// Active returns the current policy set. Never nil after NewStore.
func (s *Store) Active() *Set {
	return s.active.Load()
}

// Swap installs a validated set as the new active version and returns
// the version number it was assigned.
func (s *Store) Swap(set *Set) int {
	v := int(s.version.Add(1))
	installed := &Set{
		Version:    v,
		Hash:       set.Hash,
		Rules:      set.Rules,
		Alerts:     set.Alerts,
		RateLimits: set.RateLimits,
	}
	s.active.Store(installed)
	return v
}
