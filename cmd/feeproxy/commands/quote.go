package commands

import (
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Wieedze/intuition-fee-proxy/internal/config"
	"github.com/Wieedze/intuition-fee-proxy/internal/fees"
)

var (
	quoteCount   uint64
	quoteAmount  string
	quotePayment string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Compute fees offline for the configured schedule",
	Long: `quote evaluates the fee schedule from the config file without
starting the service. Given --count and --amount it prints the fee and the
total payment required; given --payment it also prints the net amount a
deposit of that payment would recover.`,
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().Uint64Var(&quoteCount, "count", 1, "number of entries")
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "0", "total deposited amount (decimal or 0x)")
	quoteCmd.Flags().StringVar(&quotePayment, "payment", "", "payment to invert into a net amount")
	rootCmd.AddCommand(quoteCmd)
}

func parseBig(flag, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid --%s value %q", flag, s)
	}
	return v, nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	sched := fees.Schedule{
		FixedFee:      cfg.Fees.FixedFee.Int(),
		PercentageFee: cfg.Fees.PercentageFee,
		Recipient:     cfg.FeeRecipient(),
	}

	amount, err := parseBig("amount", quoteAmount)
	if err != nil {
		return err
	}

	fee := sched.DepositFee(quoteCount, amount)
	total := new(big.Int).Add(amount, fee)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schedule:  fixed %s, %s bp, recipient %s\n",
		humanize.BigComma(new(big.Int).Set(sched.FixedFee)),
		humanize.Comma(int64(sched.PercentageFee)),
		sched.Recipient.Hex())
	fmt.Fprintf(out, "fee:       %s\n", humanize.BigComma(fee))
	fmt.Fprintf(out, "total:     %s\n", humanize.BigComma(total))

	if quotePayment != "" {
		payment, err := parseBig("payment", quotePayment)
		if err != nil {
			return err
		}
		net := sched.InverseDepositAmount(payment)
		fmt.Fprintf(out, "inverse:   payment %s recovers net %s (fee %s)\n",
			humanize.BigComma(new(big.Int).Set(payment)),
			humanize.BigComma(new(big.Int).Set(net)),
			humanize.BigComma(new(big.Int).Sub(payment, net)))
	}
	return nil
}
