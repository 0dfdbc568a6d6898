package warden

import (
	"context"
	"time"

	"github.com/adaptsec/warden/internal/model"
)

// ToolFunc is the function signature that Wrap guards. The caller
// provides an Action describing the intended operation.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a new ToolFunc that mediates every call before invoking
// fn. A deny or unresolved escalation returns a *BlockedError without
// calling fn. A sanitize verdict calls fn with the scrubbed payloads in
// place of the originals.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	wcfg := wrapConfig{principal: c.cfg.principal, kind: c.cfg.kind}
	for _, o := range opts {
		o(&wcfg)
	}

	return func(ctx context.Context, action Action) (any, error) {
		req := toRequest(action, wcfg.principal, wcfg.kind)
		d := c.pipe.Mediate(ctx, req)

		switch d.Verdict {
		case model.Deny, model.Escalate:
			return nil, &BlockedError{
				Action:      action,
				Verdict:     Verdict(d.Verdict),
				Reason:      d.Reason,
				RuleID:      d.RuleID,
				EscalateKey: d.EscalateKey,
			}

		case model.Sanitize:
			// The tool only ever sees the scrubbed content.
			for i := range action.Payloads {
				if i < len(d.Sanitized) {
					action.Payloads[i].Data = d.Sanitized[i].Data
					action.Payloads[i].Level = string(d.Sanitized[i].Label.Level)
				}
			}
		}

		return fn(ctx, action)
	}
}

// Approve resolves an escalation so the next identical action passes.
// Zero duration grants one-time use.
func (c *Client) Approve(key string, duration time.Duration) error {
	return c.escalations.Approve(key, duration)
}
