package audit

import (
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/taint"
)

// RequestSnapshot is the flattened request recorded in each entry.
type RequestSnapshot struct {
	RequestID  string              `json:"request_id"`
	Principal  string              `json:"principal"`
	Kind       model.PrincipalKind `json:"kind"`
	ActionType string              `json:"action_type"`
	Target     string              `json:"target"`
}

// TrustDelta records a principal's score around one mediated action.
type TrustDelta struct {
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
	Outcome string  `json:"outcome"`
}

// Record is one line in the hash-chained JSONL audit log: the full
// story of a single mediated request. Never mutated after it is
// written. All fields are structs (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type Record struct {
	ID            string                 `json:"id"`
	Timestamp     string                 `json:"ts"`
	State         string                 `json:"state"`
	Request       RequestSnapshot        `json:"request"`
	InputLabels   []model.TaintLabel     `json:"input_labels,omitempty"`
	Label         model.TaintLabel       `json:"label"`
	Verdict       model.Verdict          `json:"verdict"`
	RuleID        string                 `json:"rule_id,omitempty"`
	Reason        string                 `json:"reason"`
	PolicyVersion int                    `json:"policy_version"`
	PolicyHash    string                 `json:"policy_hash,omitempty"`
	Trust         *TrustDelta            `json:"trust,omitempty"`
	Sanitizations []taint.SanitizeRecord `json:"sanitizations,omitempty"`
	PrevHash      string                 `json:"prev_hash"`
}
