package policy

import (
	"fmt"

	"github.com/adaptsec/warden/internal/model"
)

// Evaluate matches one request against a single policy set version.
//
// Selection is deterministic: among matching rules the highest priority
// wins, ties break by lowest rule id. No match means Deny (fail-closed
// default), even though a validated set always carries a catch-all.
//
// Sanitize only signals intent; the firewall performs the actual
// payload transformation. Escalate is terminal Deny for the caller
// until externally resolved.
func Evaluate(set *Set, req *model.ActionRequest, taint model.TaintLabel, trust float64) model.Decision {
	var matched *Rule
	for i := range set.Rules {
		r := &set.Rules[i]
		if !r.Match.Matches(req.ActionType, req.Principal.Kind, trust, taint.Level) {
			continue
		}
		if matched == nil || r.Priority > matched.Priority ||
			(r.Priority == matched.Priority && r.ID < matched.ID) {
			matched = r
		}
	}

	if matched == nil {
		return model.Decision{
			Verdict: model.Deny,
			Reason:  model.ReasonDefaultDeny,
		}
	}

	reason := matched.Reason
	if reason == "" {
		switch {
		case matched.Effect == model.Deny && matched.Match.IsCatchAll():
			// A catch-all deny is the written-down form of the
			// fail-closed default; callers see the same reason either
			// way.
			reason = model.ReasonDefaultDeny
		case matched.Effect == model.Escalate:
			reason = model.ReasonEscalated
		default:
			reason = model.ReasonPolicyMatch
		}
	}
	d := model.Decision{
		Verdict: matched.Effect,
		RuleID:  matched.ID,
		Reason:  reason,
	}
	if matched.Effect == model.Escalate {
		d.EscalateKey = escalateKey(matched.ID, req)
	}
	return d
}

// escalateKey derives a stable key for the escalation store so a
// reviewer's approval admits exactly this rule/principal/action shape.
func escalateKey(ruleID string, req *model.ActionRequest) string {
	return fmt.Sprintf("%s.%s.%s", ruleID, req.Principal.ID, req.ActionType)
}
