package warden

import (
	"fmt"

	"github.com/adaptsec/warden/internal/alert"
	"github.com/adaptsec/warden/internal/audit"
	"github.com/adaptsec/warden/internal/escalate"
	"github.com/adaptsec/warden/internal/firewall"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/pipeline"
	"github.com/adaptsec/warden/internal/policy"
	"github.com/adaptsec/warden/internal/ratelimit"
	"github.com/adaptsec/warden/internal/taint"
	"github.com/adaptsec/warden/internal/trust"
)

// failClosedPolicy denies everything when no policy file is given.
const failClosedPolicy = `
rules:
  - id: default
    priority: 0
    effect: deny
`

// Client holds the mediation pipeline for in-process enforcement.
// Thread-safe for concurrent tool calls.
type Client struct {
	cfg         clientConfig
	pipe        *pipeline.Pipeline
	policies    *policy.Store
	tracker     *taint.Tracker
	fw          *firewall.Firewall
	trust       *trust.Manager
	trustStore  trust.Store
	escalations *escalate.Store
	sink        audit.Sink
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		principal: "warden-sdk",
		kind:      "agent",
	}
	for _, o := range opts {
		o(&cfg)
	}

	var set *policy.Set
	var err error
	if cfg.policyPath != "" {
		set, err = policy.LoadFile(cfg.policyPath)
	} else {
		set, err = policy.Parse([]byte(failClosedPolicy))
	}
	if err != nil {
		return nil, fmt.Errorf("warden: failed to load policy: %w", err)
	}

	var trustStore trust.Store
	if cfg.trustDBPath != "" {
		trustStore, err = trust.OpenSQLite(cfg.trustDBPath)
		if err != nil {
			return nil, fmt.Errorf("warden: failed to open trust store: %w", err)
		}
	} else {
		trustStore = trust.NewMemoryStore()
	}

	var sink audit.Sink
	if cfg.auditLogPath != "" {
		sink, err = audit.Open(cfg.auditLogPath)
		if err != nil {
			trustStore.Close()
			return nil, fmt.Errorf("warden: failed to open audit log: %w", err)
		}
	} else {
		sink = audit.NewMemorySink()
	}

	escDir := cfg.escalationDir
	if escDir == "" {
		escDir = escalate.DefaultDir()
	}
	escStore, err := escalate.NewStore(escDir)
	if err != nil {
		trustStore.Close()
		sink.Close()
		return nil, fmt.Errorf("warden: failed to create escalation store: %w", err)
	}
	escStore.Cleanup()

	tracker := taint.NewTracker(taint.Config{TrustedOrigins: cfg.trustedOrigins})
	fw := firewall.New(firewall.DefaultConfig(), tracker)
	policies := policy.NewStore(set)
	trustMgr := trust.NewManager(trust.DefaultConfig(), trustStore)

	pipe, err := pipeline.New(pipeline.Options{
		Tracker:     tracker,
		Policies:    policies,
		Trust:       trustMgr,
		Firewall:    fw,
		Sink:        sink,
		Escalations: escStore,
		Alerts:      alert.NewDispatcher(set.Alerts),
		Limits:      ratelimit.NewLimiter(set.RateLimits),
	})
	if err != nil {
		trustStore.Close()
		sink.Close()
		return nil, err
	}

	return &Client{
		cfg:         cfg,
		pipe:        pipe,
		policies:    policies,
		tracker:     tracker,
		fw:          fw,
		trust:       trustMgr,
		trustStore:  trustStore,
		escalations: escStore,
		sink:        sink,
	}, nil
}

// Check evaluates an action without side effects: no trust update, no
// audit record, no escalation filed.
func (c *Client) Check(action Action) (Result, error) {
	req := toRequest(action, c.cfg.principal, c.cfg.kind)

	inputs := make([]model.TaintLabel, 0, len(req.Payloads))
	for i := range req.Payloads {
		if req.Payloads[i].Label.Level == "" {
			req.Payloads[i].Label = c.tracker.Classify(req.Principal)
		}
		inputs = append(inputs, req.Payloads[i].Label)
	}
	label := c.tracker.Propagate(inputs, req.Principal)

	score, err := c.trust.Get(req.Principal.ID)
	if err != nil {
		return Result{}, err
	}

	ruling := policy.Evaluate(c.policies.Active(), &req, label, score.Value)
	verdict := c.fw.Inspect(&req, ruling, label)

	r := Result{
		Verdict:     Verdict(verdict.Verdict),
		RuleID:      verdict.RuleID,
		Reason:      verdict.Reason,
		EscalateKey: verdict.EscalateKey,
	}
	for _, p := range verdict.Sanitized {
		r.Sanitized = append(r.Sanitized, p.Data)
	}
	return r, nil
}

// Trust reports the current (decayed) score for a principal.
func (c *Client) Trust(principalID string) (float64, error) {
	score, err := c.trust.Get(principalID)
	if err != nil {
		return 0, err
	}
	return score.Value, nil
}

// Close releases the trust store and the audit sink.
func (c *Client) Close() error {
	err := c.trustStore.Close()
	if cerr := c.sink.Close(); err == nil {
		err = cerr
	}
	return err
}
