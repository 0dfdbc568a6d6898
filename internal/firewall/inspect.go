package firewall

import (
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/taint"
)

// DefaultBlockThreshold is the detector confidence at or above which
// content may not pass without successful sanitization.
const DefaultBlockThreshold = 0.75

// DefaultReplacement marks scrubbed segments in sanitized payloads.
const DefaultReplacement = "[REMOVED]"

// Config holds firewall parameters.
type Config struct {
	// Signatures overrides the built-in signature set when non-empty.
	Signatures []Signature `yaml:"signatures"`
	// BlockThreshold is the confidence bound for hard blocking.
	BlockThreshold float64 `yaml:"block_threshold"`
	// Replacement marks scrubbed segments.
	Replacement string `yaml:"replacement"`
}

// DefaultConfig returns a Config with built-in signatures.
func DefaultConfig() Config {
	return Config{BlockThreshold: DefaultBlockThreshold, Replacement: DefaultReplacement}
}

// FinalVerdict is the fused mediation outcome for one request.
type FinalVerdict struct {
	Verdict         model.Verdict          `json:"verdict"`
	RuleID          string                 `json:"rule_id,omitempty"`
	Reason          string                 `json:"reason"`
	EscalateKey     string                 `json:"escalate_key,omitempty"`
	Sanitized       []model.Payload        `json:"sanitized,omitempty"`
	Findings        []Finding              `json:"findings,omitempty"`
	SanitizeRecords []taint.SanitizeRecord `json:"sanitize_records,omitempty"`
}

// Firewall fuses the policy decision, content-pattern detection, and
// the taint-implied verdict into a final verdict, performing payload
// sanitization when that verdict is Sanitize.
type Firewall struct {
	cfg     Config
	det     *Detector
	tracker *taint.Tracker
}

// New creates a Firewall over the given taint tracker.
func New(cfg Config, tracker *taint.Tracker) *Firewall {
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = DefaultBlockThreshold
	}
	if cfg.Replacement == "" {
		cfg.Replacement = DefaultReplacement
	}
	det := NewDefaultDetector()
	if len(cfg.Signatures) > 0 {
		det = NewDetector(cfg.Signatures)
	}
	return &Firewall{cfg: cfg, det: det, tracker: tracker}
}

// Inspect runs the detectors against the request payload, independently
// of the policy rule match, and fuses the three verdict sources. The
// most restrictive wins: deny > escalate > sanitize > allow. Quarantined
// taint forces at least sanitize; a sanitize that cannot clear detector
// confidence is upgraded to deny.
func (f *Firewall) Inspect(req *model.ActionRequest, decision model.Decision, label model.TaintLabel) FinalVerdict {
	findings, _ := f.det.Scan(req.JoinedPayload())

	fused := decision.Verdict
	reason := decision.Reason

	// Detector-implied verdict: any hit means the payload cannot pass
	// as-is.
	if len(findings) > 0 && model.MaxVerdict(fused, model.Sanitize) != fused {
		fused = model.Sanitize
		reason = model.ReasonInjection
	}

	// Taint-implied verdict: quarantined data never flows through
	// unsanitized.
	if label.Level == model.TaintQuarantined && model.MaxVerdict(fused, model.Sanitize) != fused {
		fused = model.Sanitize
		reason = model.ReasonQuarantine
	}

	out := FinalVerdict{
		Verdict:     fused,
		RuleID:      decision.RuleID,
		Reason:      reason,
		EscalateKey: decision.EscalateKey,
		Findings:    findings,
	}

	if fused != model.Sanitize {
		return out
	}

	sanitized, records, clean := f.sanitizePayloads(req.Payloads)
	if !clean {
		// Scrubbing did not bring detector confidence under the block
		// threshold: defense in depth says this content does not pass.
		out.Verdict = model.Deny
		out.Reason = model.ReasonSanitizeFailed
		out.SanitizeRecords = records
		return out
	}

	out.Reason = model.ReasonSanitized
	out.Sanitized = sanitized
	out.SanitizeRecords = records
	return out
}

// sanitizePayloads scrubs each payload and lowers its taint label via
// the tracker (the only operation allowed to reduce taint, always
// recorded). A payload whose scrubbed content still scans at or above
// the block threshold keeps its label and fails the sanitize.
func (f *Firewall) sanitizePayloads(payloads []model.Payload) ([]model.Payload, []taint.SanitizeRecord, bool) {
	sanitized := make([]model.Payload, 0, len(payloads))
	var records []taint.SanitizeRecord
	clean := true

	for _, p := range payloads {
		scrub := func(data string) (string, int) {
			return f.det.Scrub(data, f.cfg.Replacement)
		}
		data, lowered, rec := f.tracker.Sanitize(p.Data, p.Label, scrub)
		records = append(records, rec)

		if _, confidence := f.det.Scan(data); confidence >= f.cfg.BlockThreshold {
			// Detector confidence stayed high: the reduction does not
			// hold, the original label stands.
			sanitized = append(sanitized, p)
			clean = false
			continue
		}
		sanitized = append(sanitized, model.Payload{Data: data, Label: lowered})
	}
	return sanitized, records, clean
}
