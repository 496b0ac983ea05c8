package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bcgrab/internal/runner"
	"bcgrab/pkg/auth"
	"bcgrab/pkg/barchart"
	"bcgrab/pkg/config"
	"bcgrab/pkg/logger"
	"bcgrab/pkg/planner"
	"bcgrab/pkg/ratelimit"
	"bcgrab/pkg/storage"
)

var (
	// Download command flags
	saveDir      string
	startYear    int
	endYear      int
	lookbackDays int
	dryRun       bool
	dailyOnly    bool
	updateMode   bool
	maxDownloads int
	accountName  string
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [instrument...]",
	Short: "Download contract price files for the given instruments",
	Long: `Download historical price files for futures contracts.

Without arguments every configured instrument is downloaded. Each contract
in an instrument's month cycle between --start-year and --end-year becomes
one CSV file per frequency (hourly and daily), skipping files that already
exist. Contracts whose hourly history is too thin fall back to daily bars.

Credentials are resolved from, in order:
  - BCGRAB_USERNAME / BCGRAB_PASSWORD environment variables
  - Stored credentials (use 'bcgrab auth login' to store)
  - The configuration file`,
	Example: `  # Download everything in the config between the configured years
  bcgrab download

  # Download two instruments into a specific directory
  bcgrab download GOLD SILVER --save-dir ./prices

  # Plan without touching the network
  bcgrab download GOLD --dry-run

  # Cap the run at 50 paid downloads
  bcgrab download --max-downloads 50`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&saveDir, "save-dir", "o", "", "directory for downloaded CSV files")
	downloadCmd.Flags().IntVar(&startYear, "start-year", 0, "first contract year to consider")
	downloadCmd.Flags().IntVar(&endYear, "end-year", 0, "last contract year to consider")
	downloadCmd.Flags().IntVar(&lookbackDays, "lookback", 0, "days of history before the contract month")
	downloadCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "log planned downloads without fetching anything")
	downloadCmd.Flags().BoolVar(&dailyOnly, "daily-only", false, "skip hourly bars entirely")
	downloadCmd.Flags().BoolVar(&updateMode, "update", false, "extend existing files instead of skipping them")
	downloadCmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "cap on paid downloads this run")
	downloadCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := executeRun(ctx, cfg, log, args)
	if err != nil {
		return err
	}
	printSummary(summary, cfg.Download.DryRun)
	return nil
}

// setup loads configuration, applies flags, and initializes logging.
func setup(args []string) (*config.Config, logger.Logger, error) {
	flags := make(map[string]interface{})
	if saveDir != "" {
		flags["save-dir"] = saveDir
	}
	if len(args) > 0 {
		flags["instruments"] = args
	}
	if startYear != 0 {
		flags["start-year"] = startYear
	}
	if endYear != 0 {
		flags["end-year"] = endYear
	}
	if lookbackDays != 0 {
		flags["lookback"] = lookbackDays
	}
	if dryRun {
		flags["dry-run"] = true
	}
	if dailyOnly {
		flags["daily-only"] = true
	}
	if updateMode {
		flags["update"] = true
	}
	if maxDownloads != 0 {
		flags["max-downloads"] = maxDownloads
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}

// executeRun wires the full pipeline and runs it. A setup failure (config,
// auth, storage) is returned as an error; per-contract failures are
// recorded in the summary and do not fail the run.
func executeRun(ctx context.Context, cfg *config.Config, log logger.Logger, instruments []string) (runner.Summary, error) {
	contracts, err := cfg.ContractMap()
	if err != nil {
		return runner.Summary{}, err
	}

	store, err := storage.NewStore(cfg.Download.SaveDir)
	if err != nil {
		return runner.Summary{}, fmt.Errorf("failed to open save directory: %w", err)
	}

	plan := planner.New(contracts, store, planner.Options{
		StartYear:    cfg.Download.StartYear,
		EndYear:      cfg.Download.EndYear,
		DailyOnly:    cfg.Download.DailyOnly,
		Update:       cfg.Download.Update,
		LookbackDays: cfg.Download.LookbackDays,
		StaleAfter:   time.Duration(cfg.Download.StaleAfterDays) * 24 * time.Hour,
	}, log)

	client := barchart.NewClient(cfg.Barchart.BaseURL, cfg.Barchart.UserAgent, cfg.Barchart.Timeout, log)

	if !cfg.Download.DryRun {
		username, password, err := resolveCredentials(cfg)
		if err != nil {
			return runner.Summary{}, err
		}
		if err := client.Login(ctx, username, password); err != nil {
			return runner.Summary{}, fmt.Errorf("login failed: %w", err)
		}
		defer func() {
			if err := client.Logout(context.Background()); err != nil {
				log.WithError(err).Warn("logout failed")
			}
		}()
	}

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	allowance := ratelimit.NewAllowance(cfg.RateLimit.DailyAllowance)

	run := runner.New(plan, client, store, limiter, allowance, runner.Options{
		DryRun:        cfg.Download.DryRun,
		MinHourlyRows: cfg.Download.MinHourlyRows,
		PauseMin:      time.Duration(cfg.Download.PauseMinSecs) * time.Second,
		PauseMax:      time.Duration(cfg.Download.PauseMaxSecs) * time.Second,
	}, log)

	return run.Run(ctx, cfg.Download.Instruments)
}

// resolveCredentials prefers the config file, then the environment and the
// credential store.
func resolveCredentials(cfg *config.Config) (string, string, error) {
	if cfg.Barchart.Username != "" && cfg.Barchart.Password != "" {
		return cfg.Barchart.Username, cfg.Barchart.Password, nil
	}
	store, err := auth.NewStore()
	if err != nil {
		return "", "", fmt.Errorf("failed to open credential store: %w", err)
	}
	name := accountName
	if name == "" {
		name = cfg.Barchart.Username
	}
	account, err := auth.Resolve(store, name)
	if err != nil {
		return "", "", fmt.Errorf("no credentials available (try 'bcgrab auth login'): %w", err)
	}
	return account.Username, account.Password, nil
}

func printSummary(s runner.Summary, dryRun bool) {
	if dryRun {
		fmt.Printf("Planned %d downloads (dry run)\n", s.Planned)
		return
	}
	fmt.Printf("Run %s: %d planned, %d downloaded, %d merged, %d fell back to daily, %d no data, %d failed (%d requests)\n",
		s.RunID, s.Planned, s.Downloaded, s.Merged, s.FellBack, s.NoData, s.Failed, s.Requests)
}
