package trust

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the result of a mediated action, fed back into the
// principal's trust score.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeViolation Outcome = "violation"
	OutcomeNeutral   Outcome = "neutral"
)

// Config holds trust scoring parameters. Magnitudes vary by deployment,
// so everything here is configurable.
type Config struct {
	// Floor is the lowest value decay or penalties can reach, and the
	// default value for principals never seen before.
	Floor float64 `yaml:"floor"`
	// Initial is the score assigned on first sighting. Zero means
	// "use Floor".
	Initial float64 `yaml:"initial"`
	// Midpoint is the neutral value decay reverts toward.
	Midpoint float64 `yaml:"midpoint"`
	// SuccessStep is added on a successful outcome.
	SuccessStep float64 `yaml:"success_step"`
	// ViolationPenalty is subtracted on a violation. Expected to be
	// larger than SuccessStep.
	ViolationPenalty float64 `yaml:"violation_penalty"`
	// HalfLife is the idle time after which a score is pulled halfway
	// toward Midpoint on read. Zero disables decay.
	HalfLife time.Duration `yaml:"half_life"`
}

// DefaultConfig returns conservative scoring parameters.
func DefaultConfig() Config {
	return Config{
		Floor:            0.1,
		Midpoint:         0.5,
		SuccessStep:      0.02,
		ViolationPenalty: 0.2,
		HalfLife:         24 * time.Hour,
	}
}

// Manager maintains per-principal trust scores. Reads and updates for
// the same principal are serialized by a per-key lock so concurrent
// outcomes are never lost. Unknown principals are created, never
// rejected: identity is fail-open, permission is the policy layer's job.
type Manager struct {
	cfg   Config
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager creates a Manager over the given store.
func NewManager(cfg Config, store Store) *Manager {
	if cfg.Midpoint == 0 {
		cfg.Midpoint = 0.5
	}
	if cfg.Initial == 0 {
		cfg.Initial = cfg.Floor
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		locks: make(map[string]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) lockFor(principalID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[principalID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[principalID] = l
	}
	return l
}

// Get returns the current score for a principal, creating a default
// entry on first sighting. Decay is applied to the returned value but
// not persisted; persistence happens on Update.
func (m *Manager) Get(principalID string) (Score, error) {
	l := m.lockFor(principalID)
	l.Lock()
	defer l.Unlock()
	return m.loadLocked(principalID)
}

// Set overwrites a principal's score value, clamped to [0,1]. Intended
// for administrative seeding and tests.
func (m *Manager) Set(principalID string, value float64) (Score, error) {
	l := m.lockFor(principalID)
	l.Lock()
	defer l.Unlock()

	s, err := m.loadLocked(principalID)
	if err != nil {
		return Score{}, err
	}
	s.Value = clamp(value, 0, 1)
	s.UpdatedAt = m.now()
	if err := m.store.Save(principalID, s); err != nil {
		return Score{}, err
	}
	return s, nil
}

// Update applies an outcome to a principal's score: a bounded step up
// for success, a larger penalty for violation, decay only for neutral.
// Returns the scores before and after the update. The write is a
// read-modify-write under the per-principal lock.
func (m *Manager) Update(principalID string, outcome Outcome) (before, after Score, err error) {
	l := m.lockFor(principalID)
	l.Lock()
	defer l.Unlock()

	before, err = m.loadLocked(principalID)
	if err != nil {
		return Score{}, Score{}, err
	}

	after = before
	switch outcome {
	case OutcomeSuccess:
		after.Value = clamp(before.Value+m.cfg.SuccessStep, m.cfg.Floor, 1)
	case OutcomeViolation:
		after.Value = clamp(before.Value-m.cfg.ViolationPenalty, m.cfg.Floor, 1)
	case OutcomeNeutral:
		// decay already applied by loadLocked
	default:
		return Score{}, Score{}, fmt.Errorf("trust: unknown outcome %q", outcome)
	}

	after.UpdatedAt = m.now()
	after.UpdateCount = before.UpdateCount + 1

	if err := m.store.Save(principalID, after); err != nil {
		return Score{}, Score{}, err
	}
	return before, after, nil
}

// loadLocked loads (or lazily creates) a score and applies time-based
// decay toward the midpoint. Caller must hold the per-principal lock.
func (m *Manager) loadLocked(principalID string) (Score, error) {
	s, ok, err := m.store.Load(principalID)
	if err != nil {
		return Score{}, err
	}
	if !ok {
		s = Score{Value: clamp(m.cfg.Initial, m.cfg.Floor, 1), UpdatedAt: m.now()}
		if err := m.store.Save(principalID, s); err != nil {
			return Score{}, err
		}
		return s, nil
	}
	s.Value = m.decayed(s)
	return s, nil
}

// decayed pulls an idle score halfway toward the midpoint per elapsed
// half-life. Reversion, not punishment: the result never drops below
// the floor.
func (m *Manager) decayed(s Score) float64 {
	if m.cfg.HalfLife <= 0 {
		return s.Value
	}
	elapsed := m.now().Sub(s.UpdatedAt)
	if elapsed < m.cfg.HalfLife {
		return s.Value
	}
	v := s.Value
	for elapsed >= m.cfg.HalfLife {
		v = v + (m.cfg.Midpoint-v)/2
		elapsed -= m.cfg.HalfLife
	}
	return clamp(v, m.cfg.Floor, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
