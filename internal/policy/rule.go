package policy

import (
	"github.com/adaptsec/warden/internal/alert"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/ratelimit"
)

// Predicate is the closed set of match conditions a rule may combine.
// All set fields must hold for the rule to match (conjunction). Unset
// fields match anything. No open-ended expression evaluation happens
// inside the enforcer.
type Predicate struct {
	ActionType    string              `yaml:"action_type,omitempty" json:"action_type,omitempty"`
	PrincipalKind model.PrincipalKind `yaml:"principal_kind,omitempty" json:"principal_kind,omitempty"`
	TrustAtLeast  *float64            `yaml:"trust_at_least,omitempty" json:"trust_at_least,omitempty"`
	TrustBelow    *float64            `yaml:"trust_below,omitempty" json:"trust_below,omitempty"`
	TaintAtLeast  *model.TaintLevel   `yaml:"taint_at_least,omitempty" json:"taint_at_least,omitempty"`
	TaintAtMost   *model.TaintLevel   `yaml:"taint_at_most,omitempty" json:"taint_at_most,omitempty"`
}

// IsCatchAll reports whether the predicate matches every request.
func (p Predicate) IsCatchAll() bool {
	return p.ActionType == "" && p.PrincipalKind == "" &&
		p.TrustAtLeast == nil && p.TrustBelow == nil &&
		p.TaintAtLeast == nil && p.TaintAtMost == nil
}

// Matches evaluates the predicate against one request's facts.
func (p Predicate) Matches(actionType string, kind model.PrincipalKind, trust float64, taint model.TaintLevel) bool {
	if p.ActionType != "" && p.ActionType != actionType {
		return false
	}
	if p.PrincipalKind != "" && p.PrincipalKind != kind {
		return false
	}
	if p.TrustAtLeast != nil && trust < *p.TrustAtLeast {
		return false
	}
	if p.TrustBelow != nil && trust >= *p.TrustBelow {
		return false
	}
	if p.TaintAtLeast != nil && model.TaintRank[taint] < model.TaintRank[*p.TaintAtLeast] {
		return false
	}
	if p.TaintAtMost != nil && model.TaintRank[taint] > model.TaintRank[*p.TaintAtMost] {
		return false
	}
	return true
}

// Rule is one ordered, immutable policy rule: predicate, effect,
// priority. Higher priority wins; ties break by lowest rule id.
type Rule struct {
	ID       string        `yaml:"id" json:"id"`
	Match    Predicate     `yaml:"match" json:"match"`
	Effect   model.Verdict `yaml:"effect" json:"effect"`
	Priority int           `yaml:"priority" json:"priority"`
	Reason   string        `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Set is one immutable, versioned policy rule set. Evaluation always
// reads a single Set, never a mix of two versions.
type Set struct {
	Version    int              `json:"version"`
	Hash       string           `json:"hash"`
	Rules      []Rule           `json:"rules"`
	Alerts     []alert.Config   `json:"alerts,omitempty"`
	RateLimits ratelimit.Config `json:"rate_limits,omitempty"`
}
