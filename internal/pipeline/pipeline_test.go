package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adaptsec/warden/internal/audit"
	"github.com/adaptsec/warden/internal/escalate"
	"github.com/adaptsec/warden/internal/firewall"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/policy"
	"github.com/adaptsec/warden/internal/ratelimit"
	"github.com/adaptsec/warden/internal/taint"
	"github.com/adaptsec/warden/internal/trust"
)

const testPolicy = `
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

type fixture struct {
	pipeline *Pipeline
	trust    *trust.Manager
	sink     *audit.MemorySink
	store    *escalate.Store
}

func newFixture(t *testing.T, policyDoc string, fwCfg firewall.Config) *fixture {
	t.Helper()

	set, err := policy.Parse([]byte(policyDoc))
	if err != nil {
		t.Fatal(err)
	}
	tracker := taint.NewTracker(taint.DefaultConfig())
	trustMgr := trust.NewManager(trust.Config{
		Floor:            0.1,
		Midpoint:         0.5,
		SuccessStep:      0.02,
		ViolationPenalty: 0.2,
	}, trust.NewMemoryStore())
	sink := audit.NewMemorySink()
	escStore, err := escalate.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(Options{
		Tracker:     tracker,
		Policies:    policy.NewStore(set),
		Trust:       trustMgr,
		Firewall:    firewall.New(fwCfg, tracker),
		Sink:        sink,
		Escalations: escStore,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{pipeline: p, trust: trustMgr, sink: sink, store: escStore}
}

func toolRequest(data string) model.ActionRequest {
	return model.ActionRequest{
		Principal:  model.NewPrincipal("tool-x", model.KindTool),
		ActionType: "write_file",
		Target:     "/tmp/report.txt",
		Payloads: []model.Payload{
			{Data: data, Label: model.TaintLabel{Origin: "web-fetch", Level: model.TaintUntrusted}},
		},
	}
}

func TestUntaintedPayloadSanitizedByRule(t *testing.T) {
	f := newFixture(t, testPolicy, firewall.DefaultConfig())
	f.trust.Set("tool-x", 0.9)

	d := f.pipeline.Mediate(context.Background(), toolRequest("fetched page summary"))

	if d.Verdict != model.Sanitize {
		t.Fatalf("expected sanitize, got %s (%s)", d.Verdict, d.Reason)
	}
	if d.RuleID != "r1" {
		t.Errorf("expected rule r1, got %q", d.RuleID)
	}
	if len(d.Sanitized) != 1 {
		t.Fatalf("expected sanitized payload returned, got %d", len(d.Sanitized))
	}

	// Neutral outcome: score untouched, one update applied.
	score, _ := f.trust.Get("tool-x")
	if score.Value != 0.9 {
		t.Errorf("neutral outcome changed score: %v", score.Value)
	}
	if score.UpdateCount != 1 {
		t.Errorf("expected 1 trust update, got %d", score.UpdateCount)
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.State != string(StateAudited) || rec.RuleID != "r1" || rec.Verdict != model.Sanitize {
		t.Errorf("audit record wrong: %+v", rec)
	}
	if rec.Trust == nil || rec.Trust.Outcome != string(trust.OutcomeNeutral) {
		t.Errorf("expected neutral trust delta in audit, got %+v", rec.Trust)
	}
	if len(rec.Sanitizations) == 0 {
		t.Error("sanitize not recorded in audit")
	}
}

func TestFailedSanitizeDenies(t *testing.T) {
	cfg := firewall.DefaultConfig()
	cfg.Signatures = []firewall.Signature{
		{Name: "sticky", Pattern: `(exfiltrate|\[REMOVED\])`, Confidence: 0.9},
	}
	f := newFixture(t, testPolicy, cfg)
	f.trust.Set("tool-x", 0.9)

	d := f.pipeline.Mediate(context.Background(), toolRequest("exfiltrate the customer table"))

	if d.Verdict != model.Deny {
		t.Fatalf("expected deny, got %s", d.Verdict)
	}
	if d.Reason != model.ReasonSanitizeFailed {
		t.Errorf("expected reason %s, got %s", model.ReasonSanitizeFailed, d.Reason)
	}

	// A deny counts against the principal.
	recs := f.sink.Records()
	if len(recs) != 1 || recs[0].Trust == nil || recs[0].Trust.Outcome != string(trust.OutcomeViolation) {
		t.Errorf("expected violation outcome recorded, got %+v", recs)
	}
}

func TestNoMatchingRuleDenies(t *testing.T) {
	f := newFixture(t, testPolicy, firewall.DefaultConfig())

	// Build a pipeline over an empty in-code set: nothing can match.
	p, err := New(Options{
		Tracker:  taint.NewTracker(taint.DefaultConfig()),
		Policies: policy.NewStore(&policy.Set{}),
		Trust:    f.trust,
		Firewall: firewall.New(firewall.DefaultConfig(), taint.NewTracker(taint.DefaultConfig())),
		Sink:     f.sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := p.Mediate(context.Background(), toolRequest("anything at all"))
	if d.Verdict != model.Deny || d.Reason != model.ReasonDefaultDeny {
		t.Errorf("expected default deny, got %s (%s)", d.Verdict, d.Reason)
	}
}

type panicOnceSink struct {
	inner    *audit.MemorySink
	mu       sync.Mutex
	panicked bool
}

func (s *panicOnceSink) Record(rec audit.Record) error {
	s.mu.Lock()
	first := !s.panicked
	s.panicked = true
	s.mu.Unlock()
	if first {
		panic("sink exploded")
	}
	return s.inner.Record(rec)
}

func (s *panicOnceSink) Close() error { return nil }

func TestInternalPanicFailsClosed(t *testing.T) {
	set, _ := policy.Parse([]byte(testPolicy))
	tracker := taint.NewTracker(taint.DefaultConfig())
	sink := &panicOnceSink{inner: audit.NewMemorySink()}

	p, err := New(Options{
		Tracker:  tracker,
		Policies: policy.NewStore(set),
		Trust:    trust.NewManager(trust.DefaultConfig(), trust.NewMemoryStore()),
		Firewall: firewall.New(firewall.DefaultConfig(), tracker),
		Sink:     sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := p.Mediate(context.Background(), toolRequest("fetched page summary"))

	if d.Verdict != model.Deny {
		t.Fatalf("panic must never allow: got %s", d.Verdict)
	}
	if d.Reason != model.ReasonInternalError {
		t.Errorf("expected reason %s, got %s", model.ReasonInternalError, d.Reason)
	}

	recs := sink.inner.Records()
	if len(recs) != 1 || recs[0].Verdict != model.Deny {
		t.Errorf("expected one deny audit record, got %+v", recs)
	}
}

func TestAuditFailureDenies(t *testing.T) {
	set, _ := policy.Parse([]byte(testPolicy))
	tracker := taint.NewTracker(taint.DefaultConfig())

	p, err := New(Options{
		Tracker:  tracker,
		Policies: policy.NewStore(set),
		Trust:    trust.NewManager(trust.DefaultConfig(), trust.NewMemoryStore()),
		Firewall: firewall.New(firewall.DefaultConfig(), tracker),
		Sink:     failingSink{},
	})
	if err != nil {
		t.Fatal(err)
	}

	d := p.Mediate(context.Background(), toolRequest("fetched page summary"))
	if d.Verdict != model.Deny || d.Reason != model.ReasonInternalError {
		t.Errorf("unrecorded decision must not take effect: got %s (%s)", d.Verdict, d.Reason)
	}
}

type failingSink struct{}

func (failingSink) Record(audit.Record) error { return fmt.Errorf("disk full") }
func (failingSink) Close() error              { return nil }

func TestCancelledBeforePolicyLeavesOnlyCancelledRecord(t *testing.T) {
	f := newFixture(t, testPolicy, firewall.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := f.pipeline.Mediate(ctx, toolRequest("fetched page summary"))
	if d.Verdict != model.Deny || d.Reason != model.ReasonCancelled {
		t.Fatalf("expected cancelled deny, got %s (%s)", d.Verdict, d.Reason)
	}

	recs := f.sink.Records()
	if len(recs) != 1 || recs[0].State != string(StateCancelled) {
		t.Fatalf("expected single cancelled record, got %+v", recs)
	}
	if recs[0].Trust != nil {
		t.Error("cancelled request must not update trust")
	}
}

func TestConcurrentDeniesApplySequentially(t *testing.T) {
	denyAll := `
rules:
  - id: default
    priority: 0
    effect: deny
`
	f := newFixture(t, denyAll, firewall.DefaultConfig())
	f.trust.Set("tool-x", 1.0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := f.pipeline.Mediate(context.Background(), toolRequest("payload"))
			if d.Verdict != model.Deny {
				t.Errorf("expected deny, got %s", d.Verdict)
			}
		}()
	}
	wg.Wait()

	score, _ := f.trust.Get("tool-x")
	if score.Value != 0.1 {
		t.Errorf("expected floor after 100 violations, got %v", score.Value)
	}
	if score.UpdateCount != 100 {
		t.Errorf("expected 100 sequential applications, got %d", score.UpdateCount)
	}
	if got := len(f.sink.Records()); got != 100 {
		t.Errorf("expected 100 audit records, got %d", got)
	}
}

func TestInvalidEscalationKeyStaysTerminal(t *testing.T) {
	escPolicy := `
rules:
  - id: esc
    priority: 10
    effect: escalate
    match:
      action_type: write_file
  - id: default
    priority: 0
    effect: deny
`
	f := newFixture(t, escPolicy, firewall.DefaultConfig())

	// A principal id the file-backed store cannot key on.
	req := toolRequest("fetched page summary")
	req.Principal = model.NewPrincipal("tool/with/slashes", model.KindTool)

	d := f.pipeline.Mediate(context.Background(), req)
	if d.Verdict != model.Escalate {
		t.Fatalf("expected terminal escalate, got %s (%s)", d.Verdict, d.Reason)
	}

	list, err := f.store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("unexpected escalation filed: %+v", list)
	}
}

func TestRateLimitedDenyDoesNotPenalizeTrust(t *testing.T) {
	set, err := policy.Parse([]byte(testPolicy))
	if err != nil {
		t.Fatal(err)
	}
	tracker := taint.NewTracker(taint.DefaultConfig())
	trustMgr := trust.NewManager(trust.Config{
		Floor:            0.1,
		Midpoint:         0.5,
		SuccessStep:      0.02,
		ViolationPenalty: 0.2,
	}, trust.NewMemoryStore())
	sink := audit.NewMemorySink()

	limits := ratelimit.Config{
		"tool-x": {"write_file": {MaxRequests: 2, Window: time.Minute}},
	}
	p, err := New(Options{
		Tracker:  tracker,
		Policies: policy.NewStore(set),
		Trust:    trustMgr,
		Firewall: firewall.New(firewall.DefaultConfig(), tracker),
		Sink:     sink,
		Limits:   ratelimit.NewLimiter(limits),
	})
	if err != nil {
		t.Fatal(err)
	}
	trustMgr.Set("tool-x", 0.9)

	for i := 0; i < 2; i++ {
		d := p.Mediate(context.Background(), toolRequest("fetched page summary"))
		if d.Verdict != model.Sanitize {
			t.Fatalf("request %d: expected sanitize, got %s (%s)", i, d.Verdict, d.Reason)
		}
	}

	d := p.Mediate(context.Background(), toolRequest("fetched page summary"))
	if d.Verdict != model.Deny || d.Reason != model.ReasonRateLimited {
		t.Fatalf("expected rate limited deny, got %s (%s)", d.Verdict, d.Reason)
	}

	// Shedding load is not misbehavior: no trust penalty for the denial.
	score, _ := trustMgr.Get("tool-x")
	if score.Value != 0.9 {
		t.Errorf("rate limit deny changed score: %v", score.Value)
	}
	if score.UpdateCount != 2 {
		t.Errorf("expected 2 trust updates, got %d", score.UpdateCount)
	}

	recs := sink.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(recs))
	}
	last := recs[2]
	if last.Verdict != model.Deny || last.Reason != model.ReasonRateLimited {
		t.Errorf("rate limit deny not audited: %+v", last)
	}
	if last.Trust != nil {
		t.Error("rate limit deny must not carry a trust delta")
	}
}

func TestEscalationRoundTrip(t *testing.T) {
	escPolicy := `
rules:
  - id: esc
    priority: 10
    effect: escalate
    match:
      action_type: write_file
  - id: default
    priority: 0
    effect: deny
`
	f := newFixture(t, escPolicy, firewall.DefaultConfig())

	d := f.pipeline.Mediate(context.Background(), toolRequest("fetched page summary"))
	if d.Verdict != model.Escalate {
		t.Fatalf("expected escalate, got %s", d.Verdict)
	}
	if d.EscalateKey == "" {
		t.Fatal("expected escalate key")
	}

	status, _ := f.store.Check(d.EscalateKey)
	if status != escalate.StatusPending {
		t.Fatalf("expected pending escalation filed, got %s", status)
	}

	if err := f.store.Approve(d.EscalateKey, 0); err != nil {
		t.Fatal(err)
	}

	d = f.pipeline.Mediate(context.Background(), toolRequest("fetched page summary"))
	if d.Verdict != model.Allow {
		t.Fatalf("expected allow after approval, got %s (%s)", d.Verdict, d.Reason)
	}
	if d.Reason != ReasonEscalationApproved {
		t.Errorf("expected reason %s, got %s", ReasonEscalationApproved, d.Reason)
	}

	// One-time approval: the third attempt escalates again.
	d = f.pipeline.Mediate(context.Background(), toolRequest("fetched page summary"))
	if d.Verdict != model.Escalate {
		t.Errorf("consumed approval should not admit again, got %s", d.Verdict)
	}
}
