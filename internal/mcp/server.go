package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adaptsec/warden/internal/alert"
	"github.com/adaptsec/warden/internal/audit"
	"github.com/adaptsec/warden/internal/escalate"
	"github.com/adaptsec/warden/internal/firewall"
	"github.com/adaptsec/warden/internal/pipeline"
	"github.com/adaptsec/warden/internal/policy"
	"github.com/adaptsec/warden/internal/ratelimit"
	"github.com/adaptsec/warden/internal/taint"
	"github.com/adaptsec/warden/internal/trust"
)

// defaultPolicy is the fail-closed set used when no policy file is
// given: everything denies.
const defaultPolicy = `
rules:
  - id: default
    priority: 0
    effect: deny
`

// Config holds MCP server configuration.
type Config struct {
	PolicyPath    string
	TrustDBPath   string // empty: in-memory trust store
	AuditLogPath  string // empty: in-memory audit sink
	EscalationDir string // empty: default directory
	Trust         trust.Config
	Taint         taint.Config
	Firewall      firewall.Config
}

// Server exposes the mediation pipeline over MCP stdio. One server, one
// pipeline, one audit chain.
type Server struct {
	mcpServer   *mcpsdk.Server
	pipe        *pipeline.Pipeline
	policies    *policy.Store
	tracker     *taint.Tracker
	fw          *firewall.Firewall
	trust       *trust.Manager
	trustStore  trust.Store
	escalations *escalate.Store
	sink        audit.Sink
}

// New creates an MCP server with the pipeline wired over the configured
// stores.
func New(cfg Config) (*Server, error) {
	var set *policy.Set
	var err error
	if cfg.PolicyPath != "" {
		set, err = policy.LoadFile(cfg.PolicyPath)
	} else {
		set, err = policy.Parse([]byte(defaultPolicy))
	}
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	var trustStore trust.Store
	if cfg.TrustDBPath != "" {
		trustStore, err = trust.OpenSQLite(cfg.TrustDBPath)
		if err != nil {
			return nil, fmt.Errorf("open trust store: %w", err)
		}
	} else {
		trustStore = trust.NewMemoryStore()
	}

	trustCfg := cfg.Trust
	if trustCfg == (trust.Config{}) {
		trustCfg = trust.DefaultConfig()
	}

	var sink audit.Sink
	if cfg.AuditLogPath != "" {
		sink, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			trustStore.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	} else {
		sink = audit.NewMemorySink()
	}

	escDir := cfg.EscalationDir
	if escDir == "" {
		escDir = escalate.DefaultDir()
	}
	escStore, err := escalate.NewStore(escDir)
	if err != nil {
		trustStore.Close()
		sink.Close()
		return nil, fmt.Errorf("create escalation store: %w", err)
	}
	escStore.Cleanup()

	tracker := taint.NewTracker(cfg.Taint)
	fw := firewall.New(cfg.Firewall, tracker)
	policies := policy.NewStore(set)
	trustMgr := trust.NewManager(trustCfg, trustStore)

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

	s := &Server{
		pipe:        pipe,
		policies:    policies,
		tracker:     tracker,
		fw:          fw,
		trust:       trustMgr,
		trustStore:  trustStore,
		escalations: escStore,
		sink:        sink,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "warden",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Policies returns the live policy store, for hot-reload wiring.
func (s *Server) Policies() *policy.Store {
	return s.policies
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the trust store and the audit sink.
func (s *Server) Close() error {
	err := s.trustStore.Close()
	if cerr := s.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

// registerTools adds all warden tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_mediate",
		Description: "Mediate an agent action request: propagate taint, evaluate policy, inspect content, update trust, and audit. Denied actions return an error with the reason.",
	}, s.handleMediate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_check",
		Description: "Evaluate an action request without side effects (dry-run): no trust update, no audit record, no escalation filed.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_approve",
		Description: "Approve an escalated action. Use the escalate_key returned by a blocked mediation.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_escalations",
		Description: "List escalation requests and their statuses.",
	}, s.handleEscalations)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_trust",
		Description: "Report the current trust score for a principal.",
	}, s.handleTrust)
}
