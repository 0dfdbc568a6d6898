// Package warden provides in-process action mediation for Go agent
// frameworks. It wraps tool functions and runs every call through the
// full mediation pipeline: taint propagation, deterministic policy
// evaluation, content inspection, trust scoring, and hash-chained
// auditing. Denied and escalated actions never reach the tool.
//
// Usage:
//
//	w, err := warden.New(warden.WithPolicy("policy.yaml"))
//	wrapped := w.Wrap(myTool, warden.WrapWithPrincipal("crawler", "tool"))
//	result, err := wrapped(ctx, warden.Action{
//	    ActionType: "write_file",
//	    Target:     "/tmp/report.txt",
//	    Payloads:   []warden.Payload{{Data: page, Origin: "web-fetch", Level: "untrusted"}},
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/adaptsec/warden/sdk/go/warden.
package warden
