package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/adaptsec/warden/internal/alert"
	"github.com/adaptsec/warden/internal/audit"
	"github.com/adaptsec/warden/internal/escalate"
	"github.com/adaptsec/warden/internal/firewall"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/policy"
	"github.com/adaptsec/warden/internal/ratelimit"
	"github.com/adaptsec/warden/internal/taint"
	"github.com/adaptsec/warden/internal/trust"
)

// ReasonEscalationApproved marks a decision admitted by a reviewer's
// earlier approval of the same escalation key.
const ReasonEscalationApproved = "escalation_approved"

// Options are the explicit store handles the pipeline runs over. No
// ambient singletons: each instance is fully isolated, which is also
// what makes per-test pipelines cheap.
type Options struct {
	Tracker     *taint.Tracker
	Policies    *policy.Store
	Trust       *trust.Manager
	Firewall    *firewall.Firewall
	Sink        audit.Sink
	Escalations *escalate.Store    // optional; escalations stay terminal denies without it
	Alerts      *alert.Dispatcher  // optional; decision webhooks
	Limits      *ratelimit.Limiter // optional; per-principal request limits
}

// Pipeline sequences taint propagation, policy evaluation, firewall
// inspection, and trust update for each action request, and emits one
// audit record per request. Requests run as independent parallel
// instances; only the trust store and the active policy set are shared.
type Pipeline struct {
	opts Options
	seq  *trust.Sequencer
}

// New validates the store handles and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Tracker == nil || opts.Policies == nil || opts.Trust == nil ||
		opts.Firewall == nil || opts.Sink == nil {
		return nil, fmt.Errorf("pipeline: tracker, policies, trust, firewall, and sink are required")
	}
	return &Pipeline{opts: opts, seq: trust.NewSequencer()}, nil
}

// Mediate runs one action request through the full state machine and
// returns its Decision. It never returns an error and never panics
// outward: every internal failure becomes a deny with reason
// internal_error (fail closed), recorded in the audit log. Safe to
// retry if the caller discards any partial Decision from a prior
// failed call.
func (p *Pipeline) Mediate(ctx context.Context, req model.ActionRequest) (decision model.Decision) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	state := StateReceived
	set := p.opts.Policies.Active()
	var label model.TaintLabel
	var inputs []model.TaintLabel
	var verdict firewall.FinalVerdict
	var delta *audit.TrustDelta

	// Admission ticket: trust updates for one principal apply in the
	// order their requests entered the pipeline.
	ticket := p.seq.Admit(req.Principal.ID)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "pipeline: recovered %s at %s: %v\n", req.ID, state, r)
			decision = model.Decision{Verdict: model.Deny, Reason: model.ReasonInternalError}
			verdict = firewall.FinalVerdict{Verdict: model.Deny, Reason: model.ReasonInternalError}
			// Best-effort audit: a second panic here must not escape.
			func() {
				defer func() { recover() }()
				p.record(StateAudited, &req, set, inputs, label, verdict, delta)
			}()
		}
		ticket.Done()
	}()

	// Cancellation before policy evaluation leaves no trace beyond a
	// cancelled audit record.
	if err := ctx.Err(); err != nil {
		p.record(StateCancelled, &req, set, nil, label, firewall.FinalVerdict{
			Verdict: model.Deny,
			Reason:  model.ReasonCancelled,
		}, nil)
		return model.Decision{Verdict: model.Deny, Reason: model.ReasonCancelled}
	}

	// Taint propagation: combine declared payload labels, classifying
	// unlabeled payloads from the requesting principal.
	inputs = make([]model.TaintLabel, 0, len(req.Payloads))
	for i := range req.Payloads {
		if req.Payloads[i].Label.Level == "" {
			req.Payloads[i].Label = p.opts.Tracker.Classify(req.Principal)
		}
		inputs = append(inputs, req.Payloads[i].Label)
	}
	label = p.opts.Tracker.Propagate(inputs, req.Principal)
	state = StateTaintPropagated

	// Load shedding: over-limit requests are denied and audited but do
	// not touch the principal's trust score.
	if p.opts.Limits != nil {
		if res := p.opts.Limits.Allow(req.Principal.ID, req.ActionType); res.Exceeded {
			verdict = firewall.FinalVerdict{Verdict: model.Deny, Reason: model.ReasonRateLimited}
			p.record(StateAudited, &req, set, inputs, label, verdict, nil)
			p.dispatch(&req, set, label, verdict)
			return model.Decision{Verdict: model.Deny, Reason: model.ReasonRateLimited}
		}
	}

	if err := ctx.Err(); err != nil {
		p.record(StateCancelled, &req, set, inputs, label, firewall.FinalVerdict{
			Verdict: model.Deny,
			Reason:  model.ReasonCancelled,
		}, nil)
		return model.Decision{Verdict: model.Deny, Reason: model.ReasonCancelled}
	}

	// Policy evaluation reads one consistent set version and the
	// decayed trust score.
	score, err := p.opts.Trust.Get(req.Principal.ID)
	if err != nil {
		return p.failClosed(&req, set, inputs, label, state, err)
	}
	ruling := policy.Evaluate(set, &req, label, score.Value)
	state = StatePolicyEvaluated

	// Firewall inspection. From here the request runs to completion:
	// cancellation no longer short-circuits, or trust and audit would
	// drift apart.
	verdict = p.opts.Firewall.Inspect(&req, ruling, label)
	state = StateFirewallInspected

	if verdict.Verdict == model.Escalate {
		p.resolveEscalation(&req, &verdict)
	}

	// Trust update, FIFO per principal.
	ticket.Wait()
	before, after, err := p.opts.Trust.Update(req.Principal.ID, outcomeFor(verdict.Verdict))
	if err != nil {
		return p.failClosed(&req, set, inputs, label, state, err)
	}
	delta = &audit.TrustDelta{
		Before:  before.Value,
		After:   after.Value,
		Outcome: string(outcomeFor(verdict.Verdict)),
	}
	state = StateTrustUpdated

	if err := p.record(StateAudited, &req, set, inputs, label, verdict, delta); err != nil {
		// An unrecorded decision must not take effect.
		fmt.Fprintf(os.Stderr, "pipeline: audit write failed for %s: %v\n", req.ID, err)
		return model.Decision{Verdict: model.Deny, Reason: model.ReasonInternalError}
	}
	state = StateAudited

	p.dispatch(&req, set, label, verdict)

	return model.Decision{
		Verdict:     verdict.Verdict,
		RuleID:      verdict.RuleID,
		Reason:      verdict.Reason,
		Sanitized:   verdict.Sanitized,
		EscalateKey: verdict.EscalateKey,
	}
}

// resolveEscalation consults the escalation store. An approved key
// admits the action (one-time approvals are consumed); anything else
// files a pending request and leaves the verdict terminal.
func (p *Pipeline) resolveEscalation(req *model.ActionRequest, verdict *firewall.FinalVerdict) {
	store := p.opts.Escalations
	if store == nil || verdict.EscalateKey == "" {
		return
	}
	status, err := store.Check(verdict.EscalateKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: escalation check %q: %v\n", verdict.EscalateKey, err)
		return
	}
	switch status {
	case escalate.StatusApproved:
		if err := store.Consume(verdict.EscalateKey); err == nil {
			verdict.Verdict = model.Allow
			verdict.Reason = ReasonEscalationApproved
		}
	case escalate.StatusPending, escalate.StatusDenied:
		// Already filed; stays terminal.
	default:
		if err := store.Request(verdict.EscalateKey, verdict.Reason, verdict.RuleID,
			req.Principal.ID, req.ActionType); err != nil {
			fmt.Fprintf(os.Stderr, "pipeline: escalation request %q: %v\n", verdict.EscalateKey, err)
		}
	}
}

// failClosed converts a stage error into an audited deny.
func (p *Pipeline) failClosed(req *model.ActionRequest, set *policy.Set, inputs []model.TaintLabel, label model.TaintLabel, state State, err error) model.Decision {
	fmt.Fprintf(os.Stderr, "pipeline: %s failed at %s: %v\n", req.ID, state, err)
	verdict := firewall.FinalVerdict{Verdict: model.Deny, Reason: model.ReasonInternalError}
	p.record(StateAudited, req, set, inputs, label, verdict, nil)
	p.dispatch(req, set, label, verdict)
	return model.Decision{Verdict: model.Deny, Reason: model.ReasonInternalError}
}

// dispatch notifies configured webhooks of a recorded decision.
func (p *Pipeline) dispatch(req *model.ActionRequest, set *policy.Set, label model.TaintLabel, verdict firewall.FinalVerdict) {
	if p.opts.Alerts == nil {
		return
	}
	p.opts.Alerts.Dispatch(alert.Event{
		Timestamp:  time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		RequestID:  req.ID,
		Principal:  req.Principal.ID,
		ActionType: req.ActionType,
		Target:     req.Target,
		Verdict:    string(verdict.Verdict),
		Reason:     verdict.Reason,
		TaintLevel: string(label.Level),
		PolicyHash: set.Hash,
	})
}

// record writes the audit entry for one request. Terminal states are
// immutable once written.
func (p *Pipeline) record(state State, req *model.ActionRequest, set *policy.Set, inputs []model.TaintLabel, label model.TaintLabel, verdict firewall.FinalVerdict, delta *audit.TrustDelta) error {
	return p.opts.Sink.Record(audit.Record{
		ID:    uuid.NewString(),
		State: string(state),
		Request: audit.RequestSnapshot{
			RequestID:  req.ID,
			Principal:  req.Principal.ID,
			Kind:       req.Principal.Kind,
			ActionType: req.ActionType,
			Target:     req.Target,
		},
		InputLabels:   inputs,
		Label:         label,
		Verdict:       verdict.Verdict,
		RuleID:        verdict.RuleID,
		Reason:        verdict.Reason,
		PolicyVersion: set.Version,
		PolicyHash:    set.Hash,
		Trust:         delta,
		Sanitizations: verdict.SanitizeRecords,
	})
}

// outcomeFor maps a final verdict to the trust outcome applied to the
// requesting principal: a deny is a violation, an allow is a success,
// everything mediated in between is neutral.
func outcomeFor(v model.Verdict) trust.Outcome {
	switch v {
	case model.Allow:
		return trust.OutcomeSuccess
	case model.Deny:
		return trust.OutcomeViolation
	default:
		return trust.OutcomeNeutral
	}
}
