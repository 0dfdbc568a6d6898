package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	wardenmcp "github.com/adaptsec/warden/internal/mcp"
	"github.com/adaptsec/warden/internal/policy"
)

var (
	servePolicy      string
	serveTrustDB     string
	serveAuditLog    string
	serveEscalations string
	serveWatch       bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to policy YAML (omit for deny-everything)")
	serveCmd.Flags().StringVar(&serveTrustDB, "trust-db", "", "Path to SQLite trust database (omit for in-memory)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to JSONL audit log (omit for in-memory)")
	serveCmd.Flags().StringVar(&serveEscalations, "escalations", "", "Escalation store directory")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Hot-reload the policy file on change")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP mediation server for agent integration",
	Long: "Runs warden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes mediation tools: mediate, check, approve, escalations, trust.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := wardenmcp.New(wardenmcp.Config{
		PolicyPath:    servePolicy,
		TrustDBPath:   serveTrustDB,
		AuditLogPath:  serveAuditLog,
		EscalationDir: serveEscalations,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if serveWatch && servePolicy != "" {
		reloader, err := policy.NewReloader(srv.Policies(), servePolicy)
		if err != nil {
			return fmt.Errorf("failed to watch policy: %w", err)
		}
		reloader.OnSwap = func(version int, hash string) {
			fmt.Fprintf(os.Stderr, "policy reloaded: version %d hash %s\n", version, hash)
		}
		go reloader.Run(ctx)
	}

	fmt.Fprintln(os.Stderr, "warden MCP server running on stdio")
	if servePolicy == "" {
		fmt.Fprintln(os.Stderr, "no policy file given: every action denies")
	}

	return srv.Run(ctx)
}
