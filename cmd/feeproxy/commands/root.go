package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "feeproxy",
	Short: "Fee-collecting proxy in front of the Intuition vault",
	Long: `feeproxy sits between callers and the Intuition vault. It charges a
configurable fee (a flat part per entry plus a percentage of the deposited
amount) on every atom creation, triple creation and deposit, forwards the
vault-bound value, and routes the fee to a configured recipient. Fee
parameters and the admin roster are managed at runtime through the admin
API.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
}
