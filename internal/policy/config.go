package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adaptsec/warden/internal/alert"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/ratelimit"
)

// ConfigError rejects an invalid policy document at load time. The
// active policy version is never touched when one is returned.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "policy config: " + e.Msg
}

// document is the on-disk YAML shape of a policy set.
type document struct {
	Rules      []Rule           `yaml:"rules"`
	Alerts     []alert.Config   `yaml:"alerts"`
	RateLimits ratelimit.Config `yaml:"rate_limits"`
}

// Parse validates a raw policy document and returns an unversioned Set
// with its content hash. The Store assigns the version on swap.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parse: %v", err)}
	}
	if err := validate(doc.Rules); err != nil {
		return nil, err
	}

	h := sha256.Sum256(data)
	return &Set{
		Hash:       "sha256:" + hex.EncodeToString(h[:]),
		Rules:      doc.Rules,
		Alerts:     doc.Alerts,
		RateLimits: doc.RateLimits,
	}, nil
}

// LoadFile reads and parses a policy document from disk.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// validate enforces the load-time invariants: non-empty ids, no
// duplicate ids, a known effect per rule, at least one catch-all
// default rule, and no rule unreachable below a catch-all.
func validate(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return &ConfigError{Msg: "rule with empty id"}
		}
		if seen[r.ID] {
			return &ConfigError{Msg: fmt.Sprintf("duplicate rule id %q", r.ID)}
		}
		seen[r.ID] = true

		switch r.Effect {
		case model.Allow, model.Deny, model.Sanitize, model.Escalate:
		default:
			return &ConfigError{Msg: fmt.Sprintf("rule %q: unknown effect %q", r.ID, r.Effect)}
		}
	}

	// Find the strongest catch-all: highest priority, lowest id on ties.
	// That is the rule selection would pick among catch-alls, so any
	// rule it shadows can never match.
	var catchAll *Rule
	for i := range rules {
		r := &rules[i]
		if !r.Match.IsCatchAll() {
			continue
		}
		if catchAll == nil || r.Priority > catchAll.Priority ||
			(r.Priority == catchAll.Priority && r.ID < catchAll.ID) {
			catchAll = r
		}
	}
	if catchAll == nil {
		return &ConfigError{Msg: "missing default rule (no catch-all match)"}
	}

	for _, r := range rules {
		if r.ID == catchAll.ID {
			continue
		}
		if r.Priority < catchAll.Priority ||
			(r.Priority == catchAll.Priority && r.ID > catchAll.ID) {
			return &ConfigError{Msg: fmt.Sprintf(
				"rule %q is unreachable below catch-all %q", r.ID, catchAll.ID)}
		}
	}
	return nil
}
