// Package scheduler drives the scrape → normalize → store → calculate
// pipeline, on demand or on a daily timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"futurespot/internal/config"
	"futurespot/internal/database"
	"futurespot/internal/errorcalc"
	"futurespot/internal/model"
	"futurespot/internal/normalize"
	"futurespot/internal/scraper"
)

// Scheduler owns retry policy for the scrapers and error isolation for
// the pipeline: a failure in one commodity or one record never aborts
// the peer commodity's run.
type Scheduler struct {
	logger  *slog.Logger
	repo    database.Repository
	futures scraper.FuturesScraper
	spot    scraper.SpotScraper
	engine  *errorcalc.Engine
	cfg     *config.Config
}

// New creates a new Scheduler.
func New(logger *slog.Logger, repo database.Repository, futures scraper.FuturesScraper, spot scraper.SpotScraper, engine *errorcalc.Engine, cfg *config.Config) *Scheduler {
	return &Scheduler{
		logger:  logger,
		repo:    repo,
		futures: futures,
		spot:    spot,
		engine:  engine,
		cfg:     cfg,
	}
}

// RunOnce executes the full pipeline for the given commodities and
// settlement date. Exactly one scrape log entry is emitted per
// (source, commodity) pair, plus one per commodity for the
// error-calculation step, regardless of outcome: a failed scrape never
// leaves the pipeline silent. Futures and spot data already stored stay
// durable even when downstream error calculation fails.
func (s *Scheduler) RunOnce(ctx context.Context, commodities []model.Commodity, date time.Time) []model.ScrapeLog {
	var logs []model.ScrapeLog

	for _, commodity := range commodities {
		logs = append(logs, s.scrapeFutures(ctx, commodity, date))
		logs = append(logs, s.scrapeSpot(ctx, commodity, date))
	}

	for _, commodity := range commodities {
		logs = append(logs, s.calculate(ctx, commodity, date))
	}

	return logs
}

func (s *Scheduler) scrapeFutures(ctx context.Context, commodity model.Commodity, date time.Time) model.ScrapeLog {
	entry := model.ScrapeLog{
		Source:     model.SourceCME,
		Commodity:  commodity,
		Status:     model.StatusSuccess,
		ScrapeDate: date,
	}

	rows, err := s.fetchFutures(ctx, commodity, date)
	if err != nil {
		s.logger.Error("futures scrape failed", "commodity", commodity, "error", err)
		entry.Status = model.StatusFailed
		entry.ErrorMessage = err.Error()
		s.persistLog(ctx, entry)
		return entry
	}
	entry.RecordsScraped = len(rows)

	var inserted, skipped, dropped int
	for _, row := range rows {
		fc, err := normalize.Futures(row, commodity, date, model.SourceCME)
		if err != nil {
			// Malformed rows are dropped individually; the rest of the
			// table still lands.
			s.logger.Warn("dropping futures row", "commodity", commodity, "error", err)
			dropped++
			continue
		}
		outcome, err := s.repo.UpsertFuturesContract(ctx, fc)
		if err != nil {
			s.logger.Error("futures store failed", "commodity", commodity, "error", err)
			entry.Status = model.StatusFailed
			entry.ErrorMessage = err.Error()
			s.persistLog(ctx, entry)
			return entry
		}
		if outcome == model.Inserted {
			inserted++
		} else {
			skipped++
		}
	}

	s.logger.Info("futures scrape complete",
		"commodity", commodity,
		"date", date.Format("2006-01-02"),
		"scraped", len(rows),
		"inserted", inserted,
		"skipped", skipped,
		"dropped", dropped,
	)
	s.persistLog(ctx, entry)
	return entry
}

func (s *Scheduler) scrapeSpot(ctx context.Context, commodity model.Commodity, date time.Time) model.ScrapeLog {
	entry := model.ScrapeLog{
		Source:     model.SourceEIA,
		Commodity:  commodity,
		Status:     model.StatusSuccess,
		ScrapeDate: date,
	}

	rows, err := s.fetchSpot(ctx, commodity, date)
	if err != nil {
		s.logger.Error("spot scrape failed", "commodity", commodity, "error", err)
		entry.Status = model.StatusFailed
		entry.ErrorMessage = err.Error()
		s.persistLog(ctx, entry)
		return entry
	}
	entry.RecordsScraped = len(rows)

	var inserted, skipped, dropped int
	for _, row := range rows {
		sp, err := normalize.Spot(row, commodity, model.SourceEIA)
		if err != nil {
			s.logger.Warn("dropping spot row", "commodity", commodity, "error", err)
			dropped++
			continue
		}
		outcome, err := s.repo.UpsertSpotPrice(ctx, sp)
		if err != nil {
			s.logger.Error("spot store failed", "commodity", commodity, "error", err)
			entry.Status = model.StatusFailed
			entry.ErrorMessage = err.Error()
			s.persistLog(ctx, entry)
			return entry
		}
		if outcome == model.Inserted {
			inserted++
		} else {
			skipped++
		}
	}

	s.logger.Info("spot scrape complete",
		"commodity", commodity,
		"scraped", len(rows),
		"inserted", inserted,
		"skipped", skipped,
		"dropped", dropped,
	)
	s.persistLog(ctx, entry)
	return entry
}

func (s *Scheduler) calculate(ctx context.Context, commodity model.Commodity, date time.Time) model.ScrapeLog {
	entry := model.ScrapeLog{
		Source:     model.SourceScheduler,
		Commodity:  commodity,
		Status:     model.StatusSuccess,
		ScrapeDate: date,
	}

	res, err := s.engine.Calculate(ctx, commodity, date, date)
	if err != nil {
		// Scraped data is already durable; the calculation can be
		// re-run at any time.
		s.logger.Error("error calculation failed", "commodity", commodity, "error", err)
		entry.Status = model.StatusFailed
		entry.ErrorMessage = err.Error()
	} else {
		entry.RecordsScraped = res.Matched
	}

	s.persistLog(ctx, entry)
	return entry
}

// fetchFutures wraps the scraper call with the exponential backoff
// retry policy. Only fetch failures are retried.
func (s *Scheduler) fetchFutures(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawFuturesRow, error) {
	var rows []model.RawFuturesRow
	err := backoff.Retry(func() error {
		var err error
		rows, err = s.futures.Fetch(ctx, commodity, date)
		return retryable(err)
	}, s.newBackOff(ctx))
	return rows, err
}

func (s *Scheduler) fetchSpot(ctx context.Context, commodity model.Commodity, date time.Time) ([]model.RawSpotRow, error) {
	var rows []model.RawSpotRow
	err := backoff.Retry(func() error {
		var err error
		rows, err = s.spot.Fetch(ctx, commodity, date)
		return retryable(err)
	}, s.newBackOff(ctx))
	return rows, err
}

func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.Scrape.MaxRetries))
	return backoff.WithContext(b, ctx)
}

func retryable(err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *scraper.FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return backoff.Permanent(err)
}

func (s *Scheduler) persistLog(ctx context.Context, entry model.ScrapeLog) {
	if err := s.repo.LogScrape(ctx, entry); err != nil {
		s.logger.Error("failed to persist scrape log", "source", entry.Source, "commodity", entry.Commodity, "error", err)
	}
}

// Start runs the pipeline daily at the configured local time until the
// context is cancelled. Each run targets the prior business day, which
// is the settlement date the CME page publishes by default.
func (s *Scheduler) Start(ctx context.Context) error {
	loc, err := time.LoadLocation(s.cfg.Scrape.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Scrape.Timezone, err)
	}
	hour, minute, err := parseClock(s.cfg.Scrape.DailyScrapeTime)
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started",
		"daily_scrape_time", s.cfg.Scrape.DailyScrapeTime,
		"timezone", s.cfg.Scrape.Timezone,
	)

	for {
		next := nextRun(time.Now().In(loc), hour, minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case now := <-timer.C:
			date := PriorBusinessDay(now.In(loc))
			s.logger.Info("starting scheduled scrape", "date", date.Format("2006-01-02"))
			s.RunOnce(ctx, []model.Commodity{model.WTI, model.HenryHub}, date)
		}
	}
}

func parseClock(v string) (hour, minute int, err error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid daily scrape time %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err == nil {
		minute, err = strconv.Atoi(parts[1])
	}
	if err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid daily scrape time %q", v)
	}
	return hour, minute, nil
}

func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PriorBusinessDay returns the most recent weekday before t.
func PriorBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
