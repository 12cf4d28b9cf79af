package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjannette/microtrend-backend/internal/journal"
	"github.com/kjannette/microtrend-backend/internal/models"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Display closed trades recorded in the SQLite journal
(STORAGE_DRIVER=sqlite).

Subcommands:
  recent - the most recent closed trades
  today  - trades closed today (UTC)
  day    - trades closed on a specific UTC day

Examples:
  microtrend journal recent -n 20
  microtrend journal day 2026-03-01`,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent closed trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJournalDay(cmd, []string{models.TradingDay(time.Now())})
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRecentCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "microtrend.db", "path to SQLite journal DB")
	journalRecentCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of trades to show")
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.RecentTrades(cmd.Context(), journalLimit)
	if err != nil {
		return err
	}
	return printTrades(cmd.OutOrStdout(), trades)
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	if _, err := time.Parse("2006-01-02", args[0]); err != nil {
		return fmt.Errorf("invalid day %q, expected YYYY-MM-DD", args[0])
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.TradesByDay(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printTrades(cmd.OutOrStdout(), trades)
}

func printTrades(w io.Writer, trades []models.ClosedTrade) error {
	if len(trades) == 0 {
		fmt.Fprintln(w, "no trades")
		return nil
	}

	var total float64
	wins := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLOSED\tSYMBOL\tSIDE\tSOURCE\tENTRY\tEXIT\tQTY\tPNL\tREASON")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%+.4f\t%s\n",
			t.ClosedAt.UTC().Format(time.DateTime), t.Symbol, t.Side, t.Source,
			t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.Reason)
		total += t.PnL
		if t.PnL > 0 {
			wins++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d trades, %d wins, total PnL %+.4f USDT\n", len(trades), wins, total)
	return nil
}
