package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adaptsec/warden/internal/escalate"
)

var (
	escalationsDir  string
	approveDuration time.Duration
)

func init() {
	rootCmd.AddCommand(escalationsCmd)
	escalationsCmd.PersistentFlags().StringVar(&escalationsDir, "dir", "", "Escalation store directory")
	escalationsCmd.AddCommand(escalationsListCmd)
	escalationsCmd.AddCommand(escalationsApproveCmd)
	escalationsCmd.AddCommand(escalationsDenyCmd)
	escalationsApproveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 5m, 1h). Default: one-time use")
}

var escalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "Review and resolve escalated actions",
	Long:  "Escalated actions block until a reviewer approves or denies them here.",
}

var escalationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalation requests",
	RunE:  runEscalationsList,
}

var escalationsApproveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve an escalated action",
	Long:  "Without --duration, approval is one-time (consumed on first use).\nWith --duration, approval is valid for the period and can be reused.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalationsApprove,
}

var escalationsDenyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny an escalated action",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalationsDeny,
}

func openEscalationStore() (*escalate.Store, error) {
	dir := escalationsDir
	if dir == "" {
		dir = escalate.DefaultDir()
	}
	store, err := escalate.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open escalation store: %w", err)
	}
	return store, nil
}

func runEscalationsList(cmd *cobra.Command, args []string) error {
	store, err := openEscalationStore()
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list escalations: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No escalations.")
		return nil
	}

	fmt.Printf("%-35s %-10s %-15s %-15s %s\n", "KEY", "STATUS", "PRINCIPAL", "ACTION", "CREATED")
	for _, e := range list {
		fmt.Printf("%-35s %-10s %-15s %-15s %s\n",
			truncate(e.Key, 35),
			e.Status,
			truncate(e.Principal, 15),
			truncate(e.ActionType, 15),
			e.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}

func runEscalationsApprove(cmd *cobra.Command, args []string) error {
	store, err := openEscalationStore()
	if err != nil {
		return err
	}

	key := args[0]
	if err := store.Approve(key, approveDuration); err != nil {
		return err
	}
	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveDuration)
	} else {
		fmt.Printf("Approved %q (one-time use)\n", key)
	}
	return nil
}

func runEscalationsDeny(cmd *cobra.Command, args []string) error {
	store, err := openEscalationStore()
	if err != nil {
		return err
	}

	key := args[0]
	if err := store.Deny(key); err != nil {
		return err
	}
	fmt.Printf("Denied %q\n", key)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
