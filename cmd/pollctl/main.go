package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	callerID     string
	dbPath       string
	balancesPath string
	policyPath   string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "pollctl",
	Short: "Local governance polling ledger",
	Long: `pollctl drives a polling ledger kept in a single SQLite file.

Every invocation restores the newest snapshot, applies one command and, when
the command changed anything, writes a fresh snapshot and journals the events
it produced.

Example:
  pollctl --as alice create --question "Ship v2?" --option yes --option no
  pollctl --as bob vote 0 1
  pollctl results 0`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&callerID, "as", os.Getenv("POLLCTL_ACCOUNT"), "account the command acts as")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "ledger database file")
	rootCmd.PersistentFlags().StringVar(&balancesPath, "balances", "", "YAML balance book loaded before the command runs")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", os.Getenv("LEDGER_POLICY_FILE"), "YAML policy overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log ledger activity to stderr")
}

func defaultDBPath() string {
	if path := os.Getenv("POLLCTL_DB"); path != "" {
		return path
	}
	return "data/pollctl.db"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
