package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adaptsec/warden/internal/policy"
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyShowCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy set operations",
	Long:  "Commands for validating and inspecting policy rule sets.",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a policy file",
	Long: "Parses and validates a policy YAML file: duplicate rule ids,\n" +
		"unknown effects, missing catch-all, and unreachable rules are all\n" +
		"rejected. Exits 0 if valid, 1 otherwise.",
	Args: cobra.ExactArgs(1),
	RunE: runPolicyValidate,
}

var policyShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print a validated policy set as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyShow,
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	set, err := policy.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d rules, hash %s\n", len(set.Rules), set.Hash)
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	set, err := policy.LoadFile(args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
