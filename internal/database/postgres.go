package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"futurespot/internal/model"
)

// PostgresRepository implements Repository on a pgx connection pool.
// Deduplication is delegated to the database's unique constraints: every
// upsert is INSERT ... ON CONFLICT DO NOTHING, so concurrent writers for
// the same natural key can never produce a second row.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS futures_contracts (
	id BIGSERIAL PRIMARY KEY,
	commodity VARCHAR(8) NOT NULL,
	contract_month CHAR(7) NOT NULL,
	contract_symbol VARCHAR(12) NOT NULL DEFAULT '',
	settlement_price NUMERIC(14, 4) NOT NULL,
	settlement_date DATE NOT NULL,
	open_price NUMERIC(14, 4),
	high_price NUMERIC(14, 4),
	low_price NUMERIC(14, 4),
	last_price NUMERIC(14, 4),
	change_price NUMERIC(14, 4),
	volume BIGINT,
	open_interest BIGINT,
	source VARCHAR(12) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT futures_contracts_natural_key UNIQUE (settlement_date, commodity, contract_month)
);

CREATE TABLE IF NOT EXISTS spot_prices (
	id BIGSERIAL PRIMARY KEY,
	commodity VARCHAR(8) NOT NULL,
	price NUMERIC(14, 4) NOT NULL,
	date DATE NOT NULL,
	source VARCHAR(12) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT spot_prices_natural_key UNIQUE (date, commodity)
);

CREATE TABLE IF NOT EXISTS error_calculations (
	id BIGSERIAL PRIMARY KEY,
	futures_contract_id BIGINT NOT NULL REFERENCES futures_contracts (id) ON DELETE CASCADE,
	spot_price_id BIGINT NOT NULL REFERENCES spot_prices (id) ON DELETE CASCADE,
	contract_month CHAR(7) NOT NULL,
	commodity VARCHAR(8) NOT NULL,
	futures_price NUMERIC(14, 4) NOT NULL,
	spot_price NUMERIC(14, 4) NOT NULL,
	absolute_error NUMERIC(14, 4) NOT NULL,
	percentage_error NUMERIC(16, 6),
	date DATE NOT NULL,
	days_to_expiry INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT error_calculations_pair_key UNIQUE (futures_contract_id, spot_price_id)
);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id BIGSERIAL PRIMARY KEY,
	source VARCHAR(12) NOT NULL,
	commodity VARCHAR(8) NOT NULL,
	status VARCHAR(8) NOT NULL,
	records_scraped INT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	scrape_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the four collections and their uniqueness constraints.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return &StoreError{Op: "migrate", Err: err}
	}
	return nil
}

// UpsertFuturesContract inserts a settlement record unless one already
// exists for (settlement_date, commodity, contract_month).
func (r *PostgresRepository) UpsertFuturesContract(ctx context.Context, fc model.FuturesContract) (model.UpsertOutcome, error) {
	const q = `
	INSERT INTO futures_contracts (
		commodity, contract_month, contract_symbol, settlement_price, settlement_date,
		open_price, high_price, low_price, last_price, change_price,
		volume, open_interest, source
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT ON CONSTRAINT futures_contracts_natural_key DO NOTHING
	RETURNING id`

	err := r.Pool.QueryRow(ctx, q,
		fc.Commodity, fc.ContractMonth, fc.ContractSymbol, fc.SettlementPrice, fc.SettlementDate,
		fc.Open, fc.High, fc.Low, fc.Last, fc.Change,
		fc.Volume, fc.OpenInterest, fc.Source,
	).Scan(new(int64))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Skipped, nil
	}
	if err != nil {
		return "", &StoreError{Op: "upsert futures contract", Err: err}
	}
	return model.Inserted, nil
}

// UpsertSpotPrice inserts a spot observation unless one already exists
// for (date, commodity).
func (r *PostgresRepository) UpsertSpotPrice(ctx context.Context, sp model.SpotPrice) (model.UpsertOutcome, error) {
	const q = `
	INSERT INTO spot_prices (commodity, price, date, source)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT ON CONSTRAINT spot_prices_natural_key DO NOTHING
	RETURNING id`

	err := r.Pool.QueryRow(ctx, q, sp.Commodity, sp.Price, sp.Date, sp.Source).Scan(new(int64))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Skipped, nil
	}
	if err != nil {
		return "", &StoreError{Op: "upsert spot price", Err: err}
	}
	return model.Inserted, nil
}

// UpsertErrorCalculation inserts a derived error row unless the
// (futures_contract_id, spot_price_id) pair was already calculated.
func (r *PostgresRepository) UpsertErrorCalculation(ctx context.Context, ec model.ErrorCalculation) (model.UpsertOutcome, error) {
	const q = `
	INSERT INTO error_calculations (
		futures_contract_id, spot_price_id, contract_month, commodity,
		futures_price, spot_price, absolute_error, percentage_error,
		date, days_to_expiry
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT ON CONSTRAINT error_calculations_pair_key DO NOTHING
	RETURNING id`

	err := r.Pool.QueryRow(ctx, q,
		ec.FuturesContractID, ec.SpotPriceID, ec.ContractMonth, ec.Commodity,
		ec.FuturesPrice, ec.SpotPrice, ec.AbsoluteError, ec.PercentageError,
		ec.Date, ec.DaysToExpiry,
	).Scan(new(int64))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Skipped, nil
	}
	if err != nil {
		return "", &StoreError{Op: "upsert error calculation", Err: err}
	}
	return model.Inserted, nil
}

// FuturesContracts returns settlement records matching the filter,
// ordered by settlement date then contract month.
func (r *PostgresRepository) FuturesContracts(ctx context.Context, f FuturesFilter) ([]model.FuturesContract, error) {
	q := `
	SELECT id, commodity, contract_month, contract_symbol, settlement_price, settlement_date,
		open_price, high_price, low_price, last_price, change_price,
		volume, open_interest, source, created_at, updated_at
	FROM futures_contracts`
	var b whereBuilder
	b.addString("commodity =", string(f.Commodity))
	b.addString("contract_month =", f.ContractMonth)
	b.addTime("settlement_date >=", f.From)
	b.addTime("settlement_date <=", f.To)
	q += b.where() + " ORDER BY settlement_date, contract_month"

	rows, err := r.Pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, &StoreError{Op: "query futures contracts", Err: err}
	}
	defer rows.Close()

	var out []model.FuturesContract
	for rows.Next() {
		var fc model.FuturesContract
		if err := rows.Scan(
			&fc.ID, &fc.Commodity, &fc.ContractMonth, &fc.ContractSymbol, &fc.SettlementPrice, &fc.SettlementDate,
			&fc.Open, &fc.High, &fc.Low, &fc.Last, &fc.Change,
			&fc.Volume, &fc.OpenInterest, &fc.Source, &fc.CreatedAt, &fc.UpdatedAt,
		); err != nil {
			return nil, &StoreError{Op: "scan futures contract", Err: err}
		}
		fc.ContractMonth = strings.TrimSpace(fc.ContractMonth)
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query futures contracts", Err: err}
	}
	return out, nil
}

// SpotPrices returns spot observations matching the filter, ordered by date.
func (r *PostgresRepository) SpotPrices(ctx context.Context, f SpotFilter) ([]model.SpotPrice, error) {
	q := `SELECT id, commodity, price, date, source, created_at FROM spot_prices`
	var b whereBuilder
	b.addString("commodity =", string(f.Commodity))
	b.addTime("date >=", f.From)
	b.addTime("date <=", f.To)
	q += b.where() + " ORDER BY date"

	rows, err := r.Pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, &StoreError{Op: "query spot prices", Err: err}
	}
	defer rows.Close()

	var out []model.SpotPrice
	for rows.Next() {
		var sp model.SpotPrice
		if err := rows.Scan(&sp.ID, &sp.Commodity, &sp.Price, &sp.Date, &sp.Source, &sp.CreatedAt); err != nil {
			return nil, &StoreError{Op: "scan spot price", Err: err}
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query spot prices", Err: err}
	}
	return out, nil
}

// ErrorCalculations returns derived error rows matching the filter,
// ordered by date.
func (r *PostgresRepository) ErrorCalculations(ctx context.Context, f ErrorFilter) ([]model.ErrorCalculation, error) {
	q := `
	SELECT id, futures_contract_id, spot_price_id, contract_month, commodity,
		futures_price, spot_price, absolute_error, percentage_error,
		date, days_to_expiry, created_at
	FROM error_calculations`
	var b whereBuilder
	b.addString("commodity =", string(f.Commodity))
	b.addString("contract_month =", f.ContractMonth)
	b.addTime("date >=", f.From)
	b.addTime("date <=", f.To)
	q += b.where() + " ORDER BY date, contract_month"

	rows, err := r.Pool.Query(ctx, q, b.args...)
	if err != nil {
		return nil, &StoreError{Op: "query error calculations", Err: err}
	}
	defer rows.Close()

	var out []model.ErrorCalculation
	for rows.Next() {
		var ec model.ErrorCalculation
		if err := rows.Scan(
			&ec.ID, &ec.FuturesContractID, &ec.SpotPriceID, &ec.ContractMonth, &ec.Commodity,
			&ec.FuturesPrice, &ec.SpotPrice, &ec.AbsoluteError, &ec.PercentageError,
			&ec.Date, &ec.DaysToExpiry, &ec.CreatedAt,
		); err != nil {
			return nil, &StoreError{Op: "scan error calculation", Err: err}
		}
		ec.ContractMonth = strings.TrimSpace(ec.ContractMonth)
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query error calculations", Err: err}
	}
	return out, nil
}

// LatestSettlementDate returns the most recent settlement date stored for
// the commodity, or nil when no data exists.
func (r *PostgresRepository) LatestSettlementDate(ctx context.Context, commodity model.Commodity) (*time.Time, error) {
	var latest *time.Time
	err := r.Pool.QueryRow(ctx,
		`SELECT MAX(settlement_date) FROM futures_contracts WHERE commodity = $1`, commodity,
	).Scan(&latest)
	if err != nil {
		return nil, &StoreError{Op: "query latest settlement date", Err: err}
	}
	return latest, nil
}

// LogScrape appends one audit row. The scrape log is append-only.
func (r *PostgresRepository) LogScrape(ctx context.Context, entry model.ScrapeLog) error {
	_, err := r.Pool.Exec(ctx, `
	INSERT INTO scrape_logs (source, commodity, status, records_scraped, error_message, scrape_date)
	VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Source, entry.Commodity, entry.Status, entry.RecordsScraped, entry.ErrorMessage, entry.ScrapeDate,
	)
	if err != nil {
		return &StoreError{Op: "log scrape", Err: err}
	}
	return nil
}

// ScrapeLogs returns the most recent audit rows, newest first.
func (r *PostgresRepository) ScrapeLogs(ctx context.Context, limit int) ([]model.ScrapeLog, error) {
	rows, err := r.Pool.Query(ctx, `
	SELECT id, source, commodity, status, records_scraped, error_message, scrape_date, created_at
	FROM scrape_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, &StoreError{Op: "query scrape logs", Err: err}
	}
	defer rows.Close()

	var out []model.ScrapeLog
	for rows.Next() {
		var sl model.ScrapeLog
		if err := rows.Scan(
			&sl.ID, &sl.Source, &sl.Commodity, &sl.Status, &sl.RecordsScraped,
			&sl.ErrorMessage, &sl.ScrapeDate, &sl.CreatedAt,
		); err != nil {
			return nil, &StoreError{Op: "scan scrape log", Err: err}
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query scrape logs", Err: err}
	}
	return out, nil
}

// whereBuilder accumulates optional filter conditions with numbered
// placeholders.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) addString(cond, v string) {
	if v == "" {
		return
	}
	b.args = append(b.args, v)
	b.clauses = append(b.clauses, fmt.Sprintf("%s $%d", cond, len(b.args)))
}

func (b *whereBuilder) addTime(cond string, v time.Time) {
	if v.IsZero() {
		return
	}
	b.args = append(b.args, v)
	b.clauses = append(b.clauses, fmt.Sprintf("%s $%d", cond, len(b.args)))
}

func (b *whereBuilder) where() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}
