package warden

import (
	"fmt"

	"github.com/adaptsec/warden/internal/model"
)

// Verdict is the mediation outcome.
type Verdict string

const (
	Allow    Verdict = Verdict(model.Allow)
	Deny     Verdict = Verdict(model.Deny)
	Sanitize Verdict = Verdict(model.Sanitize)
	Escalate Verdict = Verdict(model.Escalate)
)

// Payload is one unit of action data with declared provenance.
type Payload struct {
	Data   string // content
	Origin string // where the data came from; defaults to the principal
	Level  string // declared taint level: "trusted", "untrusted", "quarantined"
}

// Action describes what a tool intends to do.
type Action struct {
	Principal  string    // requesting principal id; defaults to the wrap principal
	Kind       string    // principal kind: "agent", "tool", "data_source"
	ActionType string    // action category: "write_file", "http_request", "exec"
	Target     string    // resource: URL, file path, command string
	Payloads   []Payload // request data with provenance
}

// Result is a mediation outcome.
type Result struct {
	Verdict     Verdict
	RuleID      string
	Reason      string
	EscalateKey string
	Sanitized   []string
}

// Allowed returns true if the verdict permits the action.
func (r Result) Allowed() bool {
	return r.Verdict == Allow || r.Verdict == Sanitize
}

// BlockedError is returned when mediation denies or escalates an action.
type BlockedError struct {
	Action      Action
	Verdict     Verdict
	Reason      string
	RuleID      string
	EscalateKey string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("warden blocked (%s): %s", e.Verdict, e.Reason)
}

// toRequest maps an SDK Action to an internal request.
func toRequest(a Action, defaultPrincipal, defaultKind string) model.ActionRequest {
	principal := a.Principal
	if principal == "" {
		principal = defaultPrincipal
	}
	kind := a.Kind
	if kind == "" {
		kind = defaultKind
	}
	r := model.ActionRequest{
		Principal:  model.NewPrincipal(principal, model.ParsePrincipalKind(kind)),
		ActionType: a.ActionType,
		Target:     a.Target,
	}
	for _, p := range a.Payloads {
		origin := p.Origin
		if origin == "" {
			origin = principal
		}
		r.Payloads = append(r.Payloads, model.Payload{
			Data:  p.Data,
			Label: model.TaintLabel{Origin: origin, Level: model.ParseTaintLevel(p.Level)},
		})
	}
	return r
}
