package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/enriplaso/BackMark/internal/backtest"
	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/strategy"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// liveCmd represents the live command
var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Paper trade against the live market",
	Long: `Runs the strategy against live exchange trades with simulated
money. The same engine and simulator as a backtest, fed by the
exchange websocket instead of historical candles.

Stop with Ctrl+C to see the session result.

Example:
  go run ./cmd/backmark live --symbol BTCUSDT --short 10 --long 50`,
	RunE: runLive,
}

var (
	liveSymbol     string
	liveShort      int
	liveLong       int
	liveAllocation float64
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&liveSymbol, "symbol", "BTCUSDT", "exchange symbol")
	liveCmd.Flags().IntVar(&liveShort, "short", 10, "short SMA period")
	liveCmd.Flags().IntVar(&liveLong, "long", 50, "long SMA period")
	liveCmd.Flags().Float64Var(&liveAllocation, "allocation", 1.0, "fraction of balance per entry")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	source := feed.NewWSFeed(cfg, log, liveSymbol)
	if err := source.Start(cmd.Context()); err != nil {
		return fmt.Errorf("start live feed: %w", err)
	}

	sim := exchange.NewSimulator(exchange.Options{
		Product: strings.ToUpper(liveSymbol),
		Balance: cfg.Simulation.Balance,
		Fee:     cfg.Simulation.Fee,
	}, log)

	strat, err := strategy.NewSMACross(sim, log, liveShort, liveLong, liveAllocation)
	if err != nil {
		return err
	}

	// Closing the feed on Ctrl+C drains the engine and yields the
	// session result.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\nStopping live session")
		source.Close()
	}()

	fmt.Printf("✅ Paper trading %s, press Ctrl+C to stop\n", liveSymbol)

	engine := backtest.NewEngine(sim, strat, log)
	result, err := engine.Run(cmd.Context(), source)
	if err != nil {
		return fmt.Errorf("live session failed: %w", err)
	}

	printResult(result)
	return nil
}
