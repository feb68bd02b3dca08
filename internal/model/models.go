package model

import "time"

// Commodity identifies one of the tracked energy commodities.
type Commodity string

const (
	WTI      Commodity = "WTI" // West Texas Intermediate crude oil
	HenryHub Commodity = "HH"  // Henry Hub natural gas

	// Both is a scrape-log scope, not a real commodity.
	Both Commodity = "BOTH"
)

// Valid reports whether c names a scrapeable commodity.
func (c Commodity) Valid() bool {
	return c == WTI || c == HenryHub
}

// ContractPrefix returns the CME product code for the commodity.
func (c Commodity) ContractPrefix() string {
	switch c {
	case WTI:
		return "CL"
	case HenryHub:
		return "NG"
	default:
		return ""
	}
}

// Source identifies where a record came from.
type Source string

const (
	SourceCME       Source = "CME"
	SourceEIA       Source = "EIA"
	SourceExcel     Source = "EXCEL"
	SourceScheduler Source = "SCHEDULER"
)

// UpsertOutcome is the tagged result of a deduplicating insert. A Skipped
// outcome means a record with the same natural key already exists; it is
// an expected result, not an error.
type UpsertOutcome string

const (
	Inserted UpsertOutcome = "inserted"
	Skipped  UpsertOutcome = "skipped"
)

// ScrapeStatus is the terminal state of a scrape invocation.
type ScrapeStatus string

const (
	StatusSuccess ScrapeStatus = "success"
	StatusFailed  ScrapeStatus = "failed"
)

// RawFuturesRow is one near-raw row from a CME settlements table. All
// cells are kept as the scraped text; the normalizer owns parsing.
type RawFuturesRow struct {
	Month      string
	Open       string
	High       string
	Low        string
	Last       string
	Change     string
	Settle     string
	EstVolume  string
	PriorDayOI string
}

// RawSpotRow is one near-raw date/price pair from an EIA history table.
type RawSpotRow struct {
	Date  string
	Price string
}

// FuturesContract is a normalized daily settlement record for one
// contract month. Natural key: (SettlementDate, Commodity, ContractMonth).
type FuturesContract struct {
	ID              int64     `db:"id"`
	Commodity       Commodity `db:"commodity"`
	ContractMonth   string    `db:"contract_month"` // YYYY-MM
	ContractSymbol  string    `db:"contract_symbol"`
	SettlementPrice float64   `db:"settlement_price"`
	SettlementDate  time.Time `db:"settlement_date"`
	Open            *float64  `db:"open_price"`
	High            *float64  `db:"high_price"`
	Low             *float64  `db:"low_price"`
	Last            *float64  `db:"last_price"`
	Change          *float64  `db:"change_price"`
	Volume          *int64    `db:"volume"`
	OpenInterest    *int64    `db:"open_interest"`
	Source          Source    `db:"source"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// SpotPrice is a normalized spot observation. Natural key: (Date, Commodity).
type SpotPrice struct {
	ID        int64     `db:"id"`
	Commodity Commodity `db:"commodity"`
	Price     float64   `db:"price"`
	Date      time.Time `db:"date"`
	Source    Source    `db:"source"`
	CreatedAt time.Time `db:"created_at"`
}

// ErrorCalculation is the derived pricing error between a futures
// settlement and the spot observation sharing its date and commodity.
// Recomputable at any time from the two source records; the pair
// (FuturesContractID, SpotPriceID) is unique.
type ErrorCalculation struct {
	ID                int64     `db:"id"`
	FuturesContractID int64     `db:"futures_contract_id"`
	SpotPriceID       int64     `db:"spot_price_id"`
	ContractMonth     string    `db:"contract_month"`
	Commodity         Commodity `db:"commodity"`
	FuturesPrice      float64   `db:"futures_price"`
	SpotPrice         float64   `db:"spot_price"`
	AbsoluteError     float64   `db:"absolute_error"`
	PercentageError   *float64  `db:"percentage_error"` // nil when spot price is zero
	Date              time.Time `db:"date"`
	DaysToExpiry      *int      `db:"days_to_expiry"`
	CreatedAt         time.Time `db:"created_at"`
}

// ScrapeLog is one append-only audit row per scrape invocation.
type ScrapeLog struct {
	ID             int64        `db:"id"`
	Source         Source       `db:"source"`
	Commodity      Commodity    `db:"commodity"`
	Status         ScrapeStatus `db:"status"`
	RecordsScraped int          `db:"records_scraped"`
	ErrorMessage   string       `db:"error_message"`
	ScrapeDate     time.Time    `db:"scrape_date"`
	CreatedAt      time.Time    `db:"created_at"`
}
