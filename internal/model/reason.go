package model

// Reason codes are stable identifiers recorded in decisions and audit
// entries. They must not change between releases.
const (
	ReasonPolicyMatch    = "policy_match"
	ReasonDefaultDeny    = "default_deny"
	ReasonQuarantine     = "quarantined_taint"
	ReasonInjection      = "injection_pattern"
	ReasonSanitized      = "sanitized"
	ReasonSanitizeFailed = "sanitize_failed"
	ReasonEscalated      = "escalation_pending"
	ReasonInternalError  = "internal_error"
	ReasonCancelled      = "cancelled"
	ReasonRateLimited    = "rate_limited"
)
