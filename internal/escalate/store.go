package escalate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status represents the state of an escalation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
	StatusUnknown  Status = "unknown"
)

// Escalation is one decision surfaced to a human reviewer. The pipeline
// treats it as a terminal deny until the reviewer resolves it.
type Escalation struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason"`
	RuleID     string     `json:"rule_id"`
	Principal  string     `json:"principal"`
	ActionType string     `json:"action_type"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Store manages escalation files on disk, one JSON file per key.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create escalation directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default escalation store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "warden-escalations")
	}
	return filepath.Join(home, ".warden", "escalations")
}

// Request creates a pending escalation. No-op if one already exists for
// the key.
func (s *Store) Request(key, reason, ruleID, principal, actionType string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil // already exists
	}

	e := Escalation{
		Key:        key,
		Status:     StatusPending,
		Reason:     reason,
		RuleID:     ruleID,
		Principal:  principal,
		ActionType: actionType,
		CreatedAt:  time.Now().UTC(),
	}
	return s.write(path, e)
}

// Check returns the current status for a key. Expired approvals report
// StatusExpired. Unknown keys report StatusUnknown, never an error.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return StatusUnknown, fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return StatusUnknown, nil
		}
		return StatusUnknown, err
	}
	if e.Status == StatusApproved && e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
		return StatusExpired, nil
	}
	return e.Status, nil
}

// Approve marks an escalation approved. A non-zero duration grants a
// window; zero means one-time use (consumed on next admit).
func (s *Store) Approve(key string, duration time.Duration) error {
	return s.resolve(key, StatusApproved, duration)
}

// Deny marks an escalation denied.
func (s *Store) Deny(key string) error {
	return s.resolve(key, StatusDenied, 0)
}

// Consume marks a one-time approval used.
func (s *Store) Consume(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	e, err := s.read(path)
	if err != nil {
		return fmt.Errorf("escalation %q: %w", key, err)
	}
	if e.Status != StatusApproved {
		return fmt.Errorf("escalation %q is %s, not approved", key, e.Status)
	}
	// Window approvals are not consumed until they expire.
	if e.ExpiresAt != nil {
		return nil
	}
	now := time.Now().UTC()
	e.Status = StatusConsumed
	e.ResolvedAt = &now
	return s.write(path, e)
}

// List returns all escalations sorted by creation time.
func (s *Store) List() ([]Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read escalation directory: %w", err)
	}

	var out []Escalation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		e, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Cleanup removes consumed, denied, and expired escalations older than
// a day. Best effort.
func (s *Store) Cleanup() {
	list, err := s.List()
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range list {
		stale := e.Status == StatusConsumed || e.Status == StatusDenied
		if e.Status == StatusApproved && e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
			stale = true
		}
		if stale && e.CreatedAt.Before(cutoff) {
			os.Remove(s.path(e.Key))
		}
	}
}

func (s *Store) resolve(key string, status Status, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	e, err := s.read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("escalation %q: %w", key, err)
		}
		// Resolving ahead of the request is allowed: pre-approval.
		e = Escalation{Key: key, CreatedAt: time.Now().UTC()}
	}

	now := time.Now().UTC()
	e.Status = status
	e.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		e.ExpiresAt = &exp
	}
	return s.write(path, e)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(path string) (Escalation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Escalation{}, err
	}
	var e Escalation
	if err := json.Unmarshal(data, &e); err != nil {
		return Escalation{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return e, nil
}

// write persists an escalation atomically: temp file then rename, so a
// crash mid-write never leaves a corrupt entry.
func (s *Store) write(path string, e Escalation) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write escalation: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write escalation: %w", err)
	}
	return nil
}
