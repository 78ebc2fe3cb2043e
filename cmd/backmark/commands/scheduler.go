package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/fetch"
	"github.com/enriplaso/BackMark/internal/scheduler"
	"github.com/enriplaso/BackMark/internal/scheduler/jobs"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/database"
	"github.com/enriplaso/BackMark/pkg/httputil"
	"github.com/enriplaso/BackMark/pkg/logger"
	"github.com/enriplaso/BackMark/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the job scheduler",
	Long: `Runs the recurring jobs of the service: the nightly candle
sync that keeps the database up to date with the exchange, and the
nightly backtest that replays the last 30 days through the default
strategy.

Requires a configured database.

Example:
  go run ./cmd/backmark scheduler
  go run ./cmd/backmark scheduler --run-now`,
	RunE: runScheduler,
}

var (
	schedulerInterval string
	schedulerRunNow   bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().StringVar(&schedulerInterval, "interval", "1h", "candle interval to sync")
	schedulerCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "run the sync immediately on start")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	httpClient := httputil.New(log).
		WithRateLimiter(redis.NewRateLimiter(redisClient, "backmark"), redis.BinanceRateLimit)

	fetcher := fetch.NewClient(cfg, httpClient, log)
	repo := feed.NewCandleRepository(db.Pool)

	sched := scheduler.New(log)
	syncJob := jobs.NewCandleSyncJob(fetcher, repo, cfg, log, schedulerInterval)
	if err := sched.AddJob(syncJob); err != nil {
		return fmt.Errorf("add job: %w", err)
	}
	if err := sched.AddJob(jobs.NewNightlyBacktestJob(repo, cfg, log, schedulerInterval)); err != nil {
		return fmt.Errorf("add job: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	if schedulerRunNow {
		if err := sched.RunJob(syncJob.Name()); err != nil {
			return err
		}
	}

	fmt.Println("✅ Scheduler running, press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}
