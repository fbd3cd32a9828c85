package commands

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Wieedze/intuition-fee-proxy/internal/api"
	"github.com/Wieedze/intuition-fee-proxy/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Issue an API bearer token for the given caller address",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address %q", args[0])
	}

	token, err := api.NewToken(cfg.Server.JWTSecret, common.HexToAddress(args[0]), tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
