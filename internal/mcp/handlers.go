package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/policy"
)

// --- Input/Output types ---

// PayloadInput is one unit of request data with declared provenance.
type PayloadInput struct {
	Data   string `json:"data" jsonschema:"payload content"`
	Origin string `json:"origin,omitempty" jsonschema:"where the data came from (tool or source id)"`
	Level  string `json:"level,omitempty" jsonschema:"declared taint level (trusted/untrusted/quarantined), omit to classify from the principal"`
}

// MediateInput defines parameters for the warden_mediate tool.
type MediateInput struct {
	Principal  string         `json:"principal" jsonschema:"principal id requesting the action"`
	Kind       string         `json:"kind,omitempty" jsonschema:"principal kind (agent/tool/data_source)"`
	ActionType string         `json:"action_type" jsonschema:"action type (e.g. write_file, http_request, exec)"`
	Target     string         `json:"target,omitempty" jsonschema:"resource the action touches"`
	Payloads   []PayloadInput `json:"payloads,omitempty" jsonschema:"request payloads with provenance"`
}

// MediateOutput contains the mediation decision.
type MediateOutput struct {
	Verdict     string   `json:"verdict"`
	RuleID      string   `json:"rule_id,omitempty"`
	Reason      string   `json:"reason"`
	Blocked     bool     `json:"blocked,omitempty"`
	EscalateKey string   `json:"escalate_key,omitempty"`
	Sanitized   []string `json:"sanitized,omitempty"`
}

// CheckInput defines parameters for the warden_check tool. Same shape
// as MediateInput; the evaluation is side-effect free.
type CheckInput struct {
	Principal  string         `json:"principal" jsonschema:"principal id requesting the action"`
	Kind       string         `json:"kind,omitempty" jsonschema:"principal kind (agent/tool/data_source)"`
	ActionType string         `json:"action_type" jsonschema:"action type"`
	Target     string         `json:"target,omitempty" jsonschema:"resource the action touches"`
	Payloads   []PayloadInput `json:"payloads,omitempty" jsonschema:"request payloads with provenance"`
}

// CheckOutput contains the dry-run verdict.
type CheckOutput struct {
	Verdict     string  `json:"verdict"`
	RuleID      string  `json:"rule_id,omitempty"`
	Reason      string  `json:"reason"`
	TaintLevel  string  `json:"taint_level"`
	TrustScore  float64 `json:"trust_score"`
	EscalateKey string  `json:"escalate_key,omitempty"`
}

// ApproveInput defines parameters for the warden_approve tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"escalate_key from a blocked mediation"`
	Duration string `json:"duration,omitempty" jsonschema:"approval window (e.g. 5m), omit for one-time approval"`
}

// ApproveOutput confirms the approval.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// EscalationsInput is empty.
type EscalationsInput struct{}

// EscalationsOutput lists filed escalations.
type EscalationsOutput struct {
	Escalations []EscalationItem `json:"escalations"`
}

// EscalationItem describes one escalation request.
type EscalationItem struct {
	Key        string `json:"key"`
	Status     string `json:"status"`
	Principal  string `json:"principal"`
	ActionType string `json:"action_type"`
	Reason     string `json:"reason"`
	CreatedAt  string `json:"created_at"`
}

// TrustInput defines parameters for the warden_trust tool.
type TrustInput struct {
	Principal string `json:"principal" jsonschema:"principal id"`
}

// TrustOutput reports a principal's current score.
type TrustOutput struct {
	Principal   string  `json:"principal"`
	Score       float64 `json:"score"`
	UpdatedAt   string  `json:"updated_at"`
	UpdateCount int     `json:"update_count"`
}

// --- Handlers ---

func (s *Server) handleMediate(ctx context.Context, req *mcpsdk.CallToolRequest, input MediateInput) (*mcpsdk.CallToolResult, MediateOutput, error) {
	d := s.pipe.Mediate(ctx, buildRequest(input.Principal, input.Kind, input.ActionType, input.Target, input.Payloads))

	out := MediateOutput{
		Verdict:     string(d.Verdict),
		RuleID:      d.RuleID,
		Reason:      d.Reason,
		EscalateKey: d.EscalateKey,
	}
	for _, p := range d.Sanitized {
		out.Sanitized = append(out.Sanitized, p.Data)
	}
	if d.Verdict == model.Deny || d.Verdict == model.Escalate {
		out.Blocked = true
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	r := buildRequest(input.Principal, input.Kind, input.ActionType, input.Target, input.Payloads)

	inputs := make([]model.TaintLabel, 0, len(r.Payloads))
	for i := range r.Payloads {
		if r.Payloads[i].Label.Level == "" {
			r.Payloads[i].Label = s.tracker.Classify(r.Principal)
		}
		inputs = append(inputs, r.Payloads[i].Label)
	}
	label := s.tracker.Propagate(inputs, r.Principal)

	score, err := s.trust.Get(r.Principal.ID)
	if err != nil {
		return nil, CheckOutput{}, err
	}

	set := s.policies.Active()
	ruling := policy.Evaluate(set, &r, label, score.Value)
	verdict := s.fw.Inspect(&r, ruling, label)

	return nil, CheckOutput{
		Verdict:     string(verdict.Verdict),
		RuleID:      verdict.RuleID,
		Reason:      verdict.Reason,
		TaintLevel:  string(label.Level),
		TrustScore:  score.Value,
		EscalateKey: verdict.EscalateKey,
	}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, err
		}
	}

	if err := s.escalations.Approve(input.Key, duration); err != nil {
		return nil, ApproveOutput{}, err
	}

	out := ApproveOutput{Key: input.Key, Status: "approved"}
	if duration > 0 {
		out.Duration = duration.String()
	}
	return nil, out, nil
}

func (s *Server) handleEscalations(ctx context.Context, req *mcpsdk.CallToolRequest, input EscalationsInput) (*mcpsdk.CallToolResult, EscalationsOutput, error) {
	list, err := s.escalations.List()
	if err != nil {
		return nil, EscalationsOutput{}, err
	}

	items := make([]EscalationItem, len(list))
	for i, e := range list {
		items[i] = EscalationItem{
			Key:        e.Key,
			Status:     string(e.Status),
			Principal:  e.Principal,
			ActionType: e.ActionType,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, EscalationsOutput{Escalations: items}, nil
}

func (s *Server) handleTrust(ctx context.Context, req *mcpsdk.CallToolRequest, input TrustInput) (*mcpsdk.CallToolResult, TrustOutput, error) {
	score, err := s.trust.Get(input.Principal)
	if err != nil {
		return nil, TrustOutput{}, err
	}
	return nil, TrustOutput{
		Principal:   input.Principal,
		Score:       score.Value,
		UpdatedAt:   score.UpdatedAt.Format(time.RFC3339),
		UpdateCount: score.UpdateCount,
	}, nil
}

// --- Helpers ---

func buildRequest(principal, kind, actionType, target string, payloads []PayloadInput) model.ActionRequest {
	r := model.ActionRequest{
		Principal:  model.NewPrincipal(principal, model.ParsePrincipalKind(kind)),
		ActionType: actionType,
		Target:     target,
	}
	for _, p := range payloads {
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
