package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "microtrend",
	Short: "Binance USDⓈ-M futures bot: scalping, grid, DCA and funding watch",
	Long: `microtrend runs a small-account futures trading bot against Binance
USDⓈ-M perpetuals, in paper or live mode.

Configuration comes from defaults, then the YAML file given with --config,
then .env and the process environment.

Examples:
  microtrend run --config microtrend.yaml
  microtrend check
  microtrend scan
  microtrend journal today`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
}
