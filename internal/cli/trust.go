package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/adaptsec/warden/internal/trust"
)

var trustDB string

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.PersistentFlags().StringVar(&trustDB, "db", "", "Path to SQLite trust database (required)")
	trustCmd.MarkPersistentFlagRequired("db")
	trustCmd.AddCommand(trustGetCmd)
	trustCmd.AddCommand(trustSetCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and seed trust scores",
	Long:  "Reads and writes the persistent trust store. Scores live in [0,1];\ndecay toward the midpoint is applied on read.",
}

var trustGetCmd = &cobra.Command{
	Use:   "get <principal>",
	Short: "Show a principal's current trust score",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustGet,
}

var trustSetCmd = &cobra.Command{
	Use:   "set <principal> <value>",
	Short: "Seed a principal's trust score",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrustSet,
}

func openTrustManager() (*trust.Manager, *trust.SQLiteStore, error) {
	store, err := trust.OpenSQLite(trustDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trust store: %w", err)
	}
	return trust.NewManager(trust.DefaultConfig(), store), store, nil
}

func runTrustGet(cmd *cobra.Command, args []string) error {
	m, store, err := openTrustManager()
	if err != nil {
		return err
	}
	defer store.Close()

	score, err := m.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("principal: %s\n", args[0])
	fmt.Printf("score:     %.3f\n", score.Value)
	fmt.Printf("updated:   %s\n", score.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("updates:   %d\n", score.UpdateCount)
	return nil
}

func runTrustSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	if value < 0 || value > 1 {
		return fmt.Errorf("value must be within [0,1], got %v", value)
	}

	m, store, err := openTrustManager()
	if err != nil {
		return err
	}
	defer store.Close()

	score, err := m.Set(args[0], value)
	if err != nil {
		return err
	}
	fmt.Printf("Set %s to %.3f\n", args[0], score.Value)
	return nil
}
