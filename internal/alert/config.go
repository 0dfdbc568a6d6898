package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["deny", "escalate", "sanitize"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id"`
	Principal  string `json:"principal"`
	ActionType string `json:"action_type"`
	Target     string `json:"target"`
	Verdict    string `json:"verdict"`
	Reason     string `json:"reason"`
	TaintLevel string `json:"taint_level"`
	PolicyHash string `json:"policy_hash"`
}
