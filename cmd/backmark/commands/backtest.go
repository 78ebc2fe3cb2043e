package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/enriplaso/BackMark/internal/backtest"
	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/strategy"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/database"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run strategies against historical data",
	Long: `Replays historical candles through the exchange simulator and
reports profit, drawdown and the trade log.

Example:
  go run ./cmd/backmark backtest run --file btcusdt-1h.csv
  go run ./cmd/backmark backtest run --source db --symbol BTCUSDT --interval 1h --from 2024-01-01 --to 2024-06-30`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a backtest",
		Long: `Runs the SMA crossover strategy over a candle source.

Flags:
  --file        candle CSV file (relative paths resolve inside the data directory)
  --source      candle source: csv or db (default: csv)
  --symbol      symbol for a db source, e.g. BTCUSDT
  --interval    candle interval for a db source (default: 1h)
  --from        range start for a db source (YYYY-MM-DD)
  --to          range end for a db source (default: today)
  --balance     starting balance (default: from config)
  --fee         exchange fee percent (default: from config)
  --short       short SMA period (default: 10)
  --long        long SMA period (default: 50)
  --allocation  fraction of balance per entry (default: 1.0)

Example:
  go run ./cmd/backmark backtest run --file btcusdt-1h.csv --short 10 --long 50`,
		RunE: runBacktest,
	}

	// Flags
	backtestFile       string
	backtestSource     string
	backtestSymbol     string
	backtestInterval   string
	backtestFrom       string
	backtestTo         string
	backtestBalance    float64
	backtestHoldings   float64
	backtestFee        float64
	backtestShort      int
	backtestLong       int
	backtestAllocation float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestFile, "file", "", "candle CSV file")
	backtestRunCmd.Flags().StringVar(&backtestSource, "source", "csv", "candle source (csv|db)")
	backtestRunCmd.Flags().StringVar(&backtestSymbol, "symbol", "BTCUSDT", "symbol for db source")
	backtestRunCmd.Flags().StringVar(&backtestInterval, "interval", "1h", "candle interval for db source")
	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "range start (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "range end (YYYY-MM-DD)")
	backtestRunCmd.Flags().Float64Var(&backtestBalance, "balance", 0, "starting balance")
	backtestRunCmd.Flags().Float64Var(&backtestHoldings, "holdings", 0, "starting holdings")
	backtestRunCmd.Flags().Float64Var(&backtestFee, "fee", -1, "exchange fee percent")
	backtestRunCmd.Flags().IntVar(&backtestShort, "short", 10, "short SMA period")
	backtestRunCmd.Flags().IntVar(&backtestLong, "long", 50, "long SMA period")
	backtestRunCmd.Flags().Float64Var(&backtestAllocation, "allocation", 1.0, "fraction of balance per entry")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	balance := backtestBalance
	if balance == 0 {
		balance = cfg.Simulation.Balance
	}
	fee := backtestFee
	if fee < 0 {
		fee = cfg.Simulation.Fee
	}

	source, err := openBacktestSource(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	sim := exchange.NewSimulator(exchange.Options{
		Product:  cfg.Simulation.Product,
		Balance:  balance,
		Holdings: backtestHoldings,
		Fee:      fee,
	}, log)

	strat, err := strategy.NewSMACross(sim, log, backtestShort, backtestLong, backtestAllocation)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(sim, strat, log)
	result, err := engine.Run(cmd.Context(), source)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printResult(result)
	return nil
}

func openBacktestSource(ctx context.Context, cfg *config.Config) (feed.Source, error) {
	switch backtestSource {
	case "csv":
		if backtestFile == "" {
			return nil, fmt.Errorf("--file is required for a csv source")
		}
		path := backtestFile
		if !filepath.IsAbs(path) {
			if _, err := os.Stat(path); err != nil {
				path = filepath.Join(cfg.DataDir, backtestFile)
			}
		}
		return feed.OpenCSV(path)
	case "db":
		from, to, err := parseRange(backtestFrom, backtestTo)
		if err != nil {
			return nil, err
		}
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		repo := feed.NewCandleRepository(db.Pool)
		return feed.NewPostgresSource(ctx, repo, backtestSymbol, backtestInterval, from, to)
	default:
		return nil, fmt.Errorf("unknown source %q, want csv or db", backtestSource)
	}
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from is required for a db source")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date: %w", err)
	}

	to := time.Now().UTC()
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date: %w", err)
		}
	}
	return from, to, nil
}

func printResult(result *backtest.Result) {
	PrintHeader("Backtest Result")
	PrintKeyValue("Product", result.Product, 14)
	PrintKeyValue("Ticks", fmt.Sprintf("%d", result.Ticks), 14)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s",
		result.FirstTick.Format("2006-01-02 15:04"),
		result.LastTick.Format("2006-01-02 15:04")), 14)
	PrintSeparator()
	PrintKeyValue("Start balance", fmt.Sprintf("%.2f", result.InitialBalance), 14)
	PrintKeyValue("Final balance", fmt.Sprintf("%.2f", result.FinalBalance), 14)
	PrintKeyValue("Final holdings", fmt.Sprintf("%.8f", result.FinalHoldings), 14)
	PrintKeyValue("Final equity", fmt.Sprintf("%.2f", result.FinalEquity), 14)
	PrintKeyValue("Profit", fmt.Sprintf("%.2f (%.2f%%)", result.TotalProfit, result.ProfitPct), 14)
	PrintKeyValue("Max drawdown", fmt.Sprintf("%.2f%%", result.MaxDrawdown*100), 14)
	PrintKeyValue("Trades", fmt.Sprintf("%d buys, %d sells", result.BuyTrades, result.SellTrades), 14)
	PrintDoubleSeparator()

	if result.TotalProfit >= 0 {
		PrintSuccess(fmt.Sprintf("Strategy finished up %.2f%%", result.ProfitPct))
	} else {
		PrintError(fmt.Sprintf("Strategy finished down %.2f%%", result.ProfitPct))
	}
}
