package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/fetch"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/database"
	"github.com/enriplaso/BackMark/pkg/httputil"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download historical candles",
	Long: `Downloads candles from the Binance public API into a CSV file
in the data directory, or into the candle database with --db.

Example:
  go run ./cmd/backmark fetch --symbol BTCUSDT --interval 1h --days 30
  go run ./cmd/backmark fetch --symbol ETHUSDT --interval 1m --days 7 --db`,
	RunE: runFetch,
}

var (
	fetchSymbol   string
	fetchInterval string
	fetchDays     int
	fetchOut      string
	fetchToDB     bool
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchSymbol, "symbol", "BTCUSDT", "exchange symbol")
	fetchCmd.Flags().StringVar(&fetchInterval, "interval", "1h", "candle interval (1m, 15m, 1h, 4h, 1d)")
	fetchCmd.Flags().IntVar(&fetchDays, "days", 30, "how many days back to fetch")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "output CSV file name (default: <symbol>-<interval>.csv)")
	fetchCmd.Flags().BoolVar(&fetchToDB, "db", false, "store candles in the database instead of a CSV file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	client := fetch.NewClient(cfg, httputil.New(log), log)

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -fetchDays)

	candles, err := client.Range(cmd.Context(), fetchSymbol, fetchInterval, from, to)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		PrintError("No candles returned")
		return nil
	}

	if fetchToDB {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo := feed.NewCandleRepository(db.Pool)
		if err := repo.SaveBatch(cmd.Context(), fetchSymbol, fetchInterval, candles); err != nil {
			return fmt.Errorf("save candles: %w", err)
		}

		PrintSuccess(fmt.Sprintf("Stored %d candles for %s %s", len(candles), fetchSymbol, fetchInterval))
		return nil
	}

	out := fetchOut
	if out == "" {
		out = fmt.Sprintf("%s-%s.csv", strings.ToLower(fetchSymbol), fetchInterval)
	}
	path := filepath.Join(cfg.DataDir, filepath.Base(out))

	if err := feed.WriteCSV(path, candles); err != nil {
		return fmt.Errorf("write candles: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Wrote %d candles to %s", len(candles), path))
	return nil
}
