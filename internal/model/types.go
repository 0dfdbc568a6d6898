package model

import "time"

// PrincipalKind classifies who (or what) is asking to act.
type PrincipalKind string

const (
	KindAgent      PrincipalKind = "agent"
	KindTool       PrincipalKind = "tool"
	KindDataSource PrincipalKind = "data_source"
)

// ParsePrincipalKind maps a string to a PrincipalKind. Unknown kinds
// collapse to data_source, the least privileged of the three.
func ParsePrincipalKind(s string) PrincipalKind {
	switch PrincipalKind(s) {
	case KindAgent, KindTool, KindDataSource:
		return PrincipalKind(s)
	default:
		return KindDataSource
	}
}

// Principal is an identified actor: an agent, a tool, or an external
// data source. Immutable once created; referenced by ID everywhere else.
type Principal struct {
	ID        string        `json:"id"`
	Kind      PrincipalKind `json:"kind"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewPrincipal creates a Principal stamped with the current UTC time.
func NewPrincipal(id string, kind PrincipalKind) Principal {
	return Principal{ID: id, Kind: kind, CreatedAt: time.Now().UTC()}
}

// TaintLevel classifies data trustworthiness.
type TaintLevel string

const (
	TaintTrusted     TaintLevel = "trusted"
	TaintUntrusted   TaintLevel = "untrusted"
	TaintQuarantined TaintLevel = "quarantined"
)

// ParseTaintLevel maps a declared taint level string. Empty stays empty
// so callers can classify from the principal instead; anything
// unrecognized is untrusted — a typo must never grant trust.
func ParseTaintLevel(s string) TaintLevel {
	switch TaintLevel(s) {
	case "":
		return ""
	case TaintTrusted, TaintUntrusted, TaintQuarantined:
		return TaintLevel(s)
	default:
		return TaintUntrusted
	}
}

// TaintRank maps taint levels to a comparable integer. Propagation always
// takes the maximum, so taint is never lost by omission.
var TaintRank = map[TaintLevel]int{
	TaintTrusted:     0,
	TaintUntrusted:   1,
	TaintQuarantined: 2,
}

// MaxTaint returns the more restrictive of two taint levels.
func MaxTaint(a, b TaintLevel) TaintLevel {
	if TaintRank[b] > TaintRank[a] {
		return b
	}
	return a
}

// TaintLabel records the provenance and trust classification of one unit
// of data. Depth counts propagation hops since the origin.
type TaintLabel struct {
	Origin string     `json:"origin"`
	Level  TaintLevel `json:"level"`
	Depth  int        `json:"depth"`
}

// Payload is a unit of request data with its attached taint label.
type Payload struct {
	Data  string     `json:"data"`
	Label TaintLabel `json:"label"`
}

// Verdict is the outcome of mediating an action request.
type Verdict string

const (
	Allow    Verdict = "allow"
	Deny     Verdict = "deny"
	Sanitize Verdict = "sanitize"
	Escalate Verdict = "escalate"
)

// VerdictRank orders verdicts by restrictiveness: deny > escalate >
// sanitize > allow. Verdict fusion always takes the maximum.
var VerdictRank = map[Verdict]int{
	Allow:    0,
	Sanitize: 1,
	Escalate: 2,
	Deny:     3,
}

// MaxVerdict returns the more restrictive of two verdicts.
func MaxVerdict(a, b Verdict) Verdict {
	if VerdictRank[b] > VerdictRank[a] {
		return b
	}
	return a
}

// ParseVerdict maps a string to a Verdict. Fail-closed: unknown → Deny.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case Allow, Deny, Sanitize, Escalate:
		return Verdict(s)
	default:
		return Deny
	}
}

// ActionRequest is the ephemeral input to the mediation pipeline: one
// requested action with its declared provenance.
type ActionRequest struct {
	ID         string    `json:"id"`
	Principal  Principal `json:"principal"`
	ActionType string    `json:"action_type"`
	Target     string    `json:"target"`
	Payloads   []Payload `json:"payloads"`
}

// JoinedPayload concatenates all payload data for content inspection.
func (r *ActionRequest) JoinedPayload() string {
	switch len(r.Payloads) {
	case 0:
		return ""
	case 1:
		return r.Payloads[0].Data
	}
	var out string
	for i, p := range r.Payloads {
		if i > 0 {
			out += "\n"
		}
		out += p.Data
	}
	return out
}

// Decision is the ephemeral output of mediation. Callers can distinguish
// an explicit policy deny from an internal failure via Reason, but both
// are Deny — the system never fails open.
type Decision struct {
	Verdict     Verdict   `json:"verdict"`
	RuleID      string    `json:"rule_id,omitempty"`
	Reason      string    `json:"reason"`
	Sanitized   []Payload `json:"sanitized,omitempty"`
	EscalateKey string    `json:"escalate_key,omitempty"`
}
