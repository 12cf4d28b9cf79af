package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kjannette/microtrend-backend/internal/bot"
	"github.com/kjannette/microtrend-backend/internal/external"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rank the scan list by signal quality",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Read-only: no store, no trader.
	market := external.NewBinanceClient(external.BinanceOptions{
		BaseURL: cfg.BinanceBaseURL(),
		Logger:  log,
	})
	engine := bot.NewEngine(*cfg, bot.Deps{Market: market, Logger: log})
	results := engine.Scan(cmd.Context())
	if len(results) == 0 {
		return fmt.Errorf("no market data for %v", cfg.ScanSymbols)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tTREND\tRSI\tATR%\tFUNDING%\tPULLBACK\tSCORE")
	for _, a := range results {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\t%.1f\t%.3f\t%.4f\t%t\t%.1f\n",
			a.Symbol, a.Price, a.Trend, a.RSI, a.ATRPct, a.FundingPct, a.Pullback, a.Score)
	}
	return tw.Flush()
}
