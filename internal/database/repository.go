package database

import (
	"context"
	"fmt"
	"time"

	"futurespot/internal/model"
)

// StoreError indicates the persistence layer is unreachable or rejected
// an operation. Fatal to the current run; no partial-write guarantees.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// FuturesFilter narrows a futures contract query. Zero values mean "any".
type FuturesFilter struct {
	Commodity     model.Commodity
	ContractMonth string
	From          time.Time
	To            time.Time
}

// SpotFilter narrows a spot price query.
type SpotFilter struct {
	Commodity model.Commodity
	From      time.Time
	To        time.Time
}

// ErrorFilter narrows an error calculation query.
type ErrorFilter struct {
	Commodity     model.Commodity
	ContractMonth string
	From          time.Time
	To            time.Time
}

// Repository defines the standard interface for database operations.
// Upserts are deduplicating: a record whose natural key already exists
// yields Skipped, never an error, even under concurrent invocation.
type Repository interface {
	Migrate(ctx context.Context) error

	UpsertFuturesContract(ctx context.Context, fc model.FuturesContract) (model.UpsertOutcome, error)
	UpsertSpotPrice(ctx context.Context, sp model.SpotPrice) (model.UpsertOutcome, error)
	UpsertErrorCalculation(ctx context.Context, ec model.ErrorCalculation) (model.UpsertOutcome, error)

	FuturesContracts(ctx context.Context, f FuturesFilter) ([]model.FuturesContract, error)
	SpotPrices(ctx context.Context, f SpotFilter) ([]model.SpotPrice, error)
	ErrorCalculations(ctx context.Context, f ErrorFilter) ([]model.ErrorCalculation, error)
	LatestSettlementDate(ctx context.Context, commodity model.Commodity) (*time.Time, error)

	LogScrape(ctx context.Context, entry model.ScrapeLog) error
	ScrapeLogs(ctx context.Context, limit int) ([]model.ScrapeLog, error)
}
