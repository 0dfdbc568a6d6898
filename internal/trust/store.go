package trust

import (
	"sync"
	"time"
)

// Score is the trust state of one principal. Value is always within
// [0,1]; UpdateCount counts applied updates since creation.
type Score struct {
	Value       float64   `json:"value"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdateCount int       `json:"update_count"`
}

// Store persists trust scores keyed by principal ID. Save must be
// atomic per key; the Manager serializes writers per principal on top.
type Store interface {
	Load(principalID string) (Score, bool, error)
	Save(principalID string, s Score) error
	Close() error
}

// MemoryStore is an in-process Store. Used by tests and by embedders
// that do not need scores to survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[string]Score
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]Score)}
}

// Load returns the score for a principal and whether it exists.
func (m *MemoryStore) Load(principalID string) (Score, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[principalID]
	return s, ok, nil
}

// Save stores the score for a principal.
func (m *MemoryStore) Save(principalID string, s Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[principalID] = s
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
