package warden

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	policyPath     string
	trustDBPath    string
	auditLogPath   string
	escalationDir  string
	trustedOrigins []string
	principal      string
	kind           string
}

// WithPolicy sets the path to a policy YAML file. Without it every
// action denies.
func WithPolicy(path string) Option {
	return func(c *clientConfig) { c.policyPath = path }
}

// WithTrustDB sets the path to the SQLite trust database. Without it
// scores live in memory and reset on restart.
func WithTrustDB(path string) Option {
	return func(c *clientConfig) { c.trustDBPath = path }
}

// WithAuditLog sets the path to the JSONL audit log. Without it records
// stay in memory.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithEscalationDir sets the escalation store directory.
func WithEscalationDir(dir string) Option {
	return func(c *clientConfig) { c.escalationDir = dir }
}

// WithTrustedOrigins lists principal IDs whose data starts trusted.
func WithTrustedOrigins(ids ...string) Option {
	return func(c *clientConfig) { c.trustedOrigins = ids }
}

// WithPrincipal sets the default principal for actions that do not name
// one.
func WithPrincipal(id, kind string) Option {
	return func(c *clientConfig) { c.principal = id; c.kind = kind }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	principal string
	kind      string
}

// WrapWithPrincipal overrides the client-level principal for this wrap.
func WrapWithPrincipal(id, kind string) WrapOption {
	return func(w *wrapConfig) { w.principal = id; w.kind = kind }
}
