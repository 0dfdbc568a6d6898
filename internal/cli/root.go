package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Security mediation layer for LLM agent actions",
	Long:  "Mediates every agent action through taint tracking, policy evaluation,\ncontent inspection, and trust scoring. Deny by default; every decision audited.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
