package pipeline

// State is a mediation pipeline stage. Transitions are strictly
// sequential per request; a failure at any stage jumps directly to
// StateAudited with a deny verdict.
type State string

const (
	StateReceived          State = "received"
	StateTaintPropagated   State = "taint_propagated"
	StatePolicyEvaluated   State = "policy_evaluated"
	StateFirewallInspected State = "firewall_inspected"
	StateTrustUpdated      State = "trust_updated"
	StateAudited           State = "audited"
	StateCancelled         State = "cancelled"
)
