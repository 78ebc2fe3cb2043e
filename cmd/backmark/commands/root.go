package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backmark",
	Short: "BackMark - crypto trading backtester",
	Long: `BackMark simulates an exchange over historical market data so
trading strategies can be tested before they touch real money.

Usage:
  go run ./cmd/backmark [command]

Examples:
  go run ./cmd/backmark fetch --symbol BTCUSDT --interval 1h --days 30
  go run ./cmd/backmark backtest run --file btcusdt-1h.csv
  go run ./cmd/backmark api
  go run ./cmd/backmark scheduler`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
