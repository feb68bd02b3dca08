package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"futurespot/internal/errorcalc"
	"futurespot/internal/importer"
	"futurespot/internal/model"
	"futurespot/internal/normalize"
	"futurespot/internal/scheduler"
	"futurespot/internal/scraper"
)

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the scrape pipeline once",
	Long: `Run the scrape pipeline once for the given commodities and settlement date.

Examples:
  futurespot scrape
  futurespot scrape --commodity WTI --date 2025-08-22`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		commodities, err := commodityScope(cmd)
		if err != nil {
			return err
		}
		dateStr, _ := cmd.Flags().GetString("date")
		date := scheduler.PriorBusinessDay(time.Now())
		if dateStr != "" {
			if date, err = normalize.ParseDate(dateStr); err != nil {
				return err
			}
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, commodity := range commodities {
			latest, err := a.repo.LatestSettlementDate(ctx, commodity)
			if err != nil {
				return err
			}
			if latest == nil {
				fmt.Printf("%s: no settlement data stored yet\n", commodity)
			} else {
				fmt.Printf("%s: latest stored settlement %s\n", commodity, latest.Format("2006-01-02"))
			}
		}

		sched, err := newScheduler(a)
		if err != nil {
			return err
		}

		var failed int
		for _, entry := range sched.RunOnce(ctx, commodities, date) {
			fmt.Printf("%-10s %-4s %-8s records=%d %s\n",
				entry.Source, entry.Commodity, entry.Status, entry.RecordsScraped, entry.ErrorMessage)
			if entry.Status == model.StatusFailed {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d pipeline step(s) failed", failed)
		}
		return nil
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily scrape scheduler in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.Migrate(ctx); err != nil {
			return err
		}

		sched, err := newScheduler(a)
		if err != nil {
			return err
		}
		return sched.Start(ctx)
	},
}

// --- calculate ---

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Derive error records for stored futures and spot prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		commodities, err := commodityScope(cmd)
		if err != nil {
			return err
		}
		from, to, err := dateRange(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		engine := errorcalc.NewEngine(a.logger, a.repo)
		for _, commodity := range commodities {
			res, err := engine.Calculate(ctx, commodity, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("%-4s matched=%d inserted=%d skipped=%d unmatched=%d\n",
				commodity, res.Matched, res.Inserted, res.Skipped, res.Unmatched)
		}
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored error calculations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		commodities, err := commodityScope(cmd)
		if err != nil {
			return err
		}
		month, _ := cmd.Flags().GetString("month")
		if month != "" {
			if month, err = normalize.ParseContractMonth(month); err != nil {
				return err
			}
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		engine := errorcalc.NewEngine(a.logger, a.repo)
		for _, commodity := range commodities {
			stats, err := engine.Statistics(ctx, commodity, month)
			if err != nil {
				return err
			}
			printStats(commodity, stats)
		}
		return nil
	},
}

func printStats(commodity model.Commodity, stats errorcalc.Statistics) {
	fmt.Printf("%s: %d error records\n", commodity, stats.Count)
	if stats.Count == 0 {
		return
	}
	printSeries("absolute error", stats.AbsoluteError)
	printSeries("percentage error", stats.PercentageError)
	if stats.WeightedMeanAbsError != nil {
		fmt.Printf("  expiry-weighted mean abs error: %.4f\n", *stats.WeightedMeanAbsError)
	}
}

func printSeries(name string, s errorcalc.Series) {
	if s.Count == 0 {
		return
	}
	fmt.Printf("  %s (n=%d): mean=%.4f median=%.4f min=%.4f max=%.4f stddev=%.4f\n",
		name, s.Count, s.Mean, s.Median, s.Min, s.Max, s.StdDev)
	fmt.Printf("    p25=%.4f p75=%.4f p90=%.4f p95=%.4f\n", s.P25, s.P75, s.P90, s.P95)
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent scrape log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.repo.ScrapeLogs(ctx, limit)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%s %-10s %-4s %-8s records=%d %s\n",
				entry.ScrapeDate.Format("2006-01-02"), entry.Source, entry.Commodity,
				entry.Status, entry.RecordsScraped, entry.ErrorMessage)
		}
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import historical data from CSV exports",
}

var importFuturesCmd = &cobra.Command{
	Use:   "futures <file>",
	Short: "Import historical futures settlements from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], true)
	},
}

var importSpotCmd = &cobra.Command{
	Use:   "spot <file>",
	Short: "Import historical spot prices from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], false)
	},
}

func runImport(cmd *cobra.Command, path string, futures bool) error {
	ctx := cmd.Context()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	im := importer.New(a.logger, a.repo)
	var res importer.Result
	if futures {
		res, err = im.ImportFuturesCSV(ctx, f)
	} else {
		res, err = im.ImportSpotCSV(ctx, f)
	}
	if err != nil {
		return err
	}

	fmt.Printf("total=%d inserted=%d skipped=%d dropped=%d\n",
		res.Total, res.Inserted, res.Skipped, res.Dropped)
	return nil
}

// --- shared helpers ---

func newScheduler(a *app) (*scheduler.Scheduler, error) {
	futures, err := scraper.NewFutures(model.SourceCME, a.logger, &a.cfg)
	if err != nil {
		return nil, err
	}
	spot, err := scraper.NewSpot(model.SourceEIA, a.logger, &a.cfg)
	if err != nil {
		return nil, err
	}
	engine := errorcalc.NewEngine(a.logger, a.repo)
	return scheduler.New(a.logger, a.repo, futures, spot, engine, &a.cfg), nil
}

// commodityScope resolves the --commodity flag to the list of
// commodities a command operates on. BOTH is the default.
func commodityScope(cmd *cobra.Command) ([]model.Commodity, error) {
	v, _ := cmd.Flags().GetString("commodity")
	switch model.Commodity(strings.ToUpper(strings.TrimSpace(v))) {
	case model.WTI:
		return []model.Commodity{model.WTI}, nil
	case model.HenryHub:
		return []model.Commodity{model.HenryHub}, nil
	case model.Both, "":
		return []model.Commodity{model.WTI, model.HenryHub}, nil
	default:
		return nil, fmt.Errorf("unknown commodity %q (want WTI, HH, or BOTH)", v)
	}
}

func dateRange(cmd *cobra.Command) (from, to time.Time, err error) {
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		if from, err = normalize.ParseDate(v); err != nil {
			return
		}
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		if to, err = normalize.ParseDate(v); err != nil {
			return
		}
	}
	return
}

func init() {
	scrapeCmd.Flags().String("commodity", "BOTH", "commodity to scrape: WTI, HH, or BOTH")
	scrapeCmd.Flags().String("date", "", "settlement date (YYYY-MM-DD), default prior business day")

	calculateCmd.Flags().String("commodity", "BOTH", "commodity to calculate: WTI, HH, or BOTH")
	calculateCmd.Flags().String("from", "", "start of the date range (YYYY-MM-DD)")
	calculateCmd.Flags().String("to", "", "end of the date range (YYYY-MM-DD)")

	statsCmd.Flags().String("commodity", "BOTH", "commodity to summarize: WTI, HH, or BOTH")
	statsCmd.Flags().String("month", "", "restrict to one contract month (YYYY-MM)")

	logsCmd.Flags().Int("limit", 20, "number of entries to show")

	importCmd.AddCommand(importFuturesCmd)
	importCmd.AddCommand(importSpotCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(importCmd)
}
