package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/adaptsec/warden/internal/model"
)

const validDoc = `
rules:
  - id: r1
    priority: 10
    effect: sanitize
    match:
      action_type: write_file
      taint_at_least: untrusted
  - id: default
    priority: 0
    effect: deny
`

func TestParseValidDocument(t *testing.T) {
	set, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(set.Rules))
	}
	if set.Hash == "" {
		t.Error("expected content hash")
	}
	r1 := set.Rules[0]
	if r1.ID != "r1" || r1.Effect != model.Sanitize || r1.Priority != 10 {
		t.Errorf("rule r1 parsed wrong: %+v", r1)
	}
	if r1.Match.TaintAtLeast == nil || *r1.Match.TaintAtLeast != model.TaintUntrusted {
		t.Errorf("taint_at_least not parsed: %+v", r1.Match)
	}
}

func TestDuplicateRuleIDRejected(t *testing.T) {
	doc := `
rules:
  - id: r1
    priority: 10
    effect: allow
    match: {action_type: read_file}
  - id: r1
    priority: 5
    effect: deny
    match: {action_type: write_file}
  - id: default
    priority: 0
    effect: deny
`
	_, err := Parse([]byte(doc))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestMissingDefaultRuleRejected(t *testing.T) {
	doc := `
rules:
  - id: r1
    priority: 10
    effect: allow
    match: {action_type: read_file}
`
	_, err := Parse([]byte(doc))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for missing catch-all, got %v", err)
	}
}

func TestUnreachableRuleBelowCatchAllRejected(t *testing.T) {
	doc := `
rules:
  - id: default
    priority: 10
    effect: deny
  - id: shadowed
    priority: 5
    effect: allow
    match: {action_type: read_file}
`
	_, err := Parse([]byte(doc))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for unreachable rule, got %v", err)
	}
}

func TestUnknownEffectRejected(t *testing.T) {
	doc := `
rules:
  - id: r1
    priority: 10
    effect: maybe
    match: {action_type: read_file}
  - id: default
    priority: 0
    effect: deny
`
	_, err := Parse([]byte(doc))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for unknown effect, got %v", err)
	}
}

func TestAlertAndRateLimitSectionsParsed(t *testing.T) {
	doc := validDoc + `
alerts:
  - url: https://hooks.example.com/warden
    format: slack
    events: [deny, escalate]
rate_limits:
  agent-1:
    write_file:
      max_requests: 10
      window: 1m
  "*":
    "*":
      max_requests: 100
      window: 1m
`
	set, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Alerts) != 1 || set.Alerts[0].Format != "slack" {
		t.Errorf("alerts not parsed: %+v", set.Alerts)
	}
	limit := set.RateLimits["agent-1"]["write_file"]
	if limit == nil || limit.MaxRequests != 10 || limit.Window != time.Minute {
		t.Errorf("rate limits not parsed: %+v", set.RateLimits)
	}

	// Sections survive the swap into the active version.
	store := NewStore(set)
	active := store.Active()
	if len(active.Alerts) != 1 || active.RateLimits["*"]["*"] == nil {
		t.Errorf("alerts/rate limits lost on swap: %+v", active)
	}
}

func TestRejectedLoadLeavesActiveVersionUnchanged(t *testing.T) {
	good, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(good)
	before := store.Active()

	if _, err := Parse([]byte("rules:\n  - id: r1\n  - id: r1\n")); err == nil {
		t.Fatal("expected parse failure")
	}

	if store.Active() != before {
		t.Error("active policy version changed after rejected load")
	}
	if store.Active().Version != 1 {
		t.Errorf("expected version 1, got %d", store.Active().Version)
	}
}

func TestSwapIncrementsVersion(t *testing.T) {
	set, _ := Parse([]byte(validDoc))
	store := NewStore(set)

	next, _ := Parse([]byte(validDoc))
	v := store.Swap(next)
	if v != 2 || store.Active().Version != 2 {
		t.Errorf("expected version 2 after swap, got %d / %d", v, store.Active().Version)
	}
}
