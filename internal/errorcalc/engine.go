package errorcalc

import (
	"context"
	"log/slog"
	"math"
	"time"

	"futurespot/internal/database"
	"futurespot/internal/model"
)

// Engine joins stored futures contracts with their matching spot prices
// and derives pricing-error records. It holds no state between runs;
// every error row is recomputable from the two source records.
type Engine struct {
	logger *slog.Logger
	repo   database.Repository
}

// NewEngine creates a new instance of the Engine.
func NewEngine(logger *slog.Logger, repo database.Repository) *Engine {
	return &Engine{logger: logger, repo: repo}
}

// Result summarizes one calculation run.
type Result struct {
	Matched   int // futures rows with a spot price on the same date
	Inserted  int // new error rows written
	Skipped   int // pairs already calculated on a previous run
	Unmatched int // futures rows with no spot observation for their date
}

// Calculate derives error records for every futures contract of the
// commodity within the date range whose settlement date has a spot
// observation. Futures rows without a matching spot price are skipped
// silently; absence of spot data is routine on non-trading days.
// Re-running over the same range never duplicates rows: each
// (futures, spot) pair is persisted at most once.
func (e *Engine) Calculate(ctx context.Context, commodity model.Commodity, from, to time.Time) (Result, error) {
	futures, err := e.repo.FuturesContracts(ctx, database.FuturesFilter{
		Commodity: commodity, From: from, To: to,
	})
	if err != nil {
		return Result{}, err
	}
	spots, err := e.repo.SpotPrices(ctx, database.SpotFilter{
		Commodity: commodity, From: from, To: to,
	})
	if err != nil {
		return Result{}, err
	}

	spotByDate := make(map[string]model.SpotPrice, len(spots))
	for _, sp := range spots {
		spotByDate[dayKey(sp.Date)] = sp
	}

	var res Result
	for _, fc := range futures {
		sp, ok := spotByDate[dayKey(fc.SettlementDate)]
		if !ok {
			res.Unmatched++
			continue
		}
		res.Matched++

		outcome, err := e.repo.UpsertErrorCalculation(ctx, Derive(fc, sp))
		if err != nil {
			// Store failure is fatal to the run; nothing written so far
			// is assumed durable.
			return res, err
		}
		if outcome == model.Inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	e.logger.Info("error calculation complete",
		"commodity", commodity,
		"matched", res.Matched,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"unmatched", res.Unmatched,
	)
	return res, nil
}

// Derive computes the error record for one futures/spot pair. Pure,
// except for the creation timestamp. A zero spot price yields a null
// percentage error rather than a division failure; the absolute error
// is still meaningful.
func Derive(fc model.FuturesContract, sp model.SpotPrice) model.ErrorCalculation {
	var pct *float64
	if sp.Price != 0 {
		v := (fc.SettlementPrice - sp.Price) / sp.Price * 100
		pct = &v
	}

	return model.ErrorCalculation{
		FuturesContractID: fc.ID,
		SpotPriceID:       sp.ID,
		ContractMonth:     fc.ContractMonth,
		Commodity:         fc.Commodity,
		FuturesPrice:      fc.SettlementPrice,
		SpotPrice:         sp.Price,
		AbsoluteError:     math.Abs(fc.SettlementPrice - sp.Price),
		PercentageError:   pct,
		Date:              fc.SettlementDate,
		DaysToExpiry:      DaysToExpiry(fc.SettlementDate, fc.ContractMonth),
		CreatedAt:         time.Now().UTC(),
	}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
