package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adaptsec/warden/internal/firewall"
	"github.com/adaptsec/warden/internal/model"
	"github.com/adaptsec/warden/internal/policy"
	"github.com/adaptsec/warden/internal/taint"
	"github.com/adaptsec/warden/internal/trust"
)

var (
	checkPolicy    string
	checkPrincipal string
	checkKind      string
	checkAction    string
	checkTarget    string
	checkPayload   string
	checkOrigin    string
	checkLevel     string
	checkTrust     float64
	checkFormat    string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Path to policy YAML (required)")
	checkCmd.Flags().StringVar(&checkPrincipal, "principal", "", "Principal id (required)")
	checkCmd.Flags().StringVar(&checkKind, "kind", "agent", "Principal kind (agent|tool|data_source)")
	checkCmd.Flags().StringVar(&checkAction, "action", "", "Action type (required)")
	checkCmd.Flags().StringVar(&checkTarget, "target", "", "Resource the action touches")
	checkCmd.Flags().StringVar(&checkPayload, "payload", "", "Payload content")
	checkCmd.Flags().StringVar(&checkOrigin, "origin", "", "Payload origin (defaults to principal)")
	checkCmd.Flags().StringVar(&checkLevel, "level", "", "Declared taint level (trusted|untrusted|quarantined)")
	checkCmd.Flags().Float64Var(&checkTrust, "trust", 0, "Assumed trust score for the principal (0 = config default)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("policy")
	checkCmd.MarkFlagRequired("principal")
	checkCmd.MarkFlagRequired("action")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one action request against a policy file",
	Long: "Runs a single request through the full mediation pipeline using\n" +
		"in-memory stores: nothing is persisted and no escalation is filed.\n\n" +
		"Exit code 0 for allow or sanitize, 1 for deny or escalate.\n" +
		"Use in CI to gate policy changes on expected decisions.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	set, err := policy.LoadFile(checkPolicy)
	if err != nil {
		return err
	}

	tracker := taint.NewTracker(taint.DefaultConfig())
	trustMgr := trust.NewManager(trust.DefaultConfig(), trust.NewMemoryStore())
	if checkTrust > 0 {
		if _, err := trustMgr.Set(checkPrincipal, checkTrust); err != nil {
			return err
		}
	}

	req := model.ActionRequest{
		Principal:  model.NewPrincipal(checkPrincipal, model.ParsePrincipalKind(checkKind)),
		ActionType: checkAction,
		Target:     checkTarget,
	}
	if checkPayload != "" {
		origin := checkOrigin
		if origin == "" {
			origin = checkPrincipal
		}
		req.Payloads = []model.Payload{{
			Data:  checkPayload,
			Label: model.TaintLabel{Origin: origin, Level: model.ParseTaintLevel(checkLevel)},
		}}
	}

	inputs := make([]model.TaintLabel, 0, len(req.Payloads))
	for i := range req.Payloads {
		if req.Payloads[i].Label.Level == "" {
			req.Payloads[i].Label = tracker.Classify(req.Principal)
		}
		inputs = append(inputs, req.Payloads[i].Label)
	}
	label := tracker.Propagate(inputs, req.Principal)

	score, err := trustMgr.Get(checkPrincipal)
	if err != nil {
		return err
	}
	ruling := policy.Evaluate(set, &req, label, score.Value)
	fw := firewall.New(firewall.DefaultConfig(), tracker)
	verdict := fw.Inspect(&req, ruling, label)

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("verdict: %s\n", verdict.Verdict)
		if verdict.RuleID != "" {
			fmt.Printf("rule:    %s\n", verdict.RuleID)
		}
		fmt.Printf("reason:  %s\n", verdict.Reason)
		fmt.Printf("taint:   %s\n", label.Level)
		for _, f := range verdict.Findings {
			fmt.Printf("finding: %s (%.2f)\n", f.Name, f.Confidence)
		}
	}

	if verdict.Verdict == model.Deny || verdict.Verdict == model.Escalate {
		os.Exit(1)
	}
	return nil
}
