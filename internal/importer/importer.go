// Package importer loads historical futures and spot records from CSV
// exports, deduplicating against already-scraped data through the same
// natural keys the scrapers use.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"futurespot/internal/database"
	"futurespot/internal/model"
	"futurespot/internal/normalize"
)

// Importer wires CSV parsing to the deduplicating store.
type Importer struct {
	logger *slog.Logger
	repo   database.Repository
}

// New creates a new Importer.
func New(logger *slog.Logger, repo database.Repository) *Importer {
	return &Importer{logger: logger, repo: repo}
}

// Result summarizes one import run.
type Result struct {
	Total    int // data rows read from the file
	Inserted int
	Skipped  int // rows whose natural key already exists
	Dropped  int // rows that failed validation
}

// ImportFutures upserts a batch of already-normalized contracts. Records
// without a source are attributed to the Excel import. A store failure
// aborts the batch; rows written before the failure stay durable.
func (im *Importer) ImportFutures(ctx context.Context, contracts []model.FuturesContract) (Result, error) {
	res := Result{Total: len(contracts)}
	for _, fc := range contracts {
		if fc.Source == "" {
			fc.Source = model.SourceExcel
		}
		outcome, err := im.repo.UpsertFuturesContract(ctx, fc)
		if err != nil {
			return res, err
		}
		if outcome == model.Inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	im.logger.Info("futures import complete", "total", res.Total, "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// ImportSpot upserts a batch of already-normalized spot prices.
func (im *Importer) ImportSpot(ctx context.Context, prices []model.SpotPrice) (Result, error) {
	res := Result{Total: len(prices)}
	for _, sp := range prices {
		if sp.Source == "" {
			sp.Source = model.SourceExcel
		}
		outcome, err := im.repo.UpsertSpotPrice(ctx, sp)
		if err != nil {
			return res, err
		}
		if outcome == model.Inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	im.logger.Info("spot import complete", "total", res.Total, "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// ImportFuturesCSV reads a futures CSV export and upserts its rows.
// Malformed rows are dropped individually and counted; they never abort
// the file.
func (im *Importer) ImportFuturesCSV(ctx context.Context, r io.Reader) (Result, error) {
	contracts, dropped, err := ReadFuturesCSV(r)
	if err != nil {
		return Result{}, err
	}
	for _, d := range dropped {
		im.logger.Warn("dropping futures row", "line", d.Line, "error", d.Err)
	}

	res, err := im.ImportFutures(ctx, contracts)
	res.Total += len(dropped)
	res.Dropped = len(dropped)
	return res, err
}

// ImportSpotCSV reads a spot price CSV export and upserts its rows.
func (im *Importer) ImportSpotCSV(ctx context.Context, r io.Reader) (Result, error) {
	prices, dropped, err := ReadSpotCSV(r)
	if err != nil {
		return Result{}, err
	}
	for _, d := range dropped {
		im.logger.Warn("dropping spot row", "line", d.Line, "error", d.Err)
	}

	res, err := im.ImportSpot(ctx, prices)
	res.Total += len(dropped)
	res.Dropped = len(dropped)
	return res, err
}

// DroppedRow records one CSV data row that failed validation.
type DroppedRow struct {
	Line int
	Err  error
}

// Column aliases seen across historical exports. Header names are
// matched after lowercasing and stripping spaces and underscores.
var futuresColumns = map[string]string{
	"contract":        "symbol",
	"contractsymbol":  "symbol",
	"symbol":          "symbol",
	"commodity":       "commodity",
	"contractmonth":   "month",
	"month":           "month",
	"date":            "date",
	"settlementdate":  "date",
	"tradedate":       "date",
	"settle":          "settle",
	"settlement":      "settle",
	"settlementprice": "settle",
	"open":            "open",
	"high":            "high",
	"low":             "low",
	"last":            "last",
	"change":          "change",
	"volume":          "volume",
	"estvolume":       "volume",
	"openinterest":    "oi",
	"oi":              "oi",
}

var spotColumns = map[string]string{
	"commodity": "commodity",
	"date":      "date",
	"price":     "price",
	"spot":      "price",
	"spotprice": "price",
}

// ReadFuturesCSV parses a futures CSV export into canonical contracts.
// The contract may be identified either by symbol ("CLZ2024") or by
// separate commodity and contract month columns; the settlement date and
// settle price are required.
func ReadFuturesCSV(r io.Reader) ([]model.FuturesContract, []DroppedRow, error) {
	rows, cols, err := readCSV(r, futuresColumns)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := cols["settle"]; !ok {
		return nil, nil, fmt.Errorf("no settlement price column found")
	}
	if _, ok := cols["date"]; !ok {
		return nil, nil, fmt.Errorf("no settlement date column found")
	}

	var contracts []model.FuturesContract
	var dropped []DroppedRow
	for _, row := range rows {
		fc, err := futuresFromRow(row.cells, cols)
		if err != nil {
			dropped = append(dropped, DroppedRow{Line: row.line, Err: err})
			continue
		}
		contracts = append(contracts, fc)
	}
	return contracts, dropped, nil
}

// ReadSpotCSV parses a spot price CSV export into canonical records.
func ReadSpotCSV(r io.Reader) ([]model.SpotPrice, []DroppedRow, error) {
	rows, cols, err := readCSV(r, spotColumns)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range []string{"commodity", "date", "price"} {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("no %s column found", name)
		}
	}

	var prices []model.SpotPrice
	var dropped []DroppedRow
	for _, row := range rows {
		sp, err := normalize.Spot(model.RawSpotRow{
			Date:  cell(row.cells, cols, "date"),
			Price: cell(row.cells, cols, "price"),
		}, parseCommodity(cell(row.cells, cols, "commodity")), model.SourceExcel)
		if err != nil {
			dropped = append(dropped, DroppedRow{Line: row.line, Err: err})
			continue
		}
		prices = append(prices, sp)
	}
	return prices, dropped, nil
}

type csvRow struct {
	line  int
	cells []string
}

func readCSV(r io.Reader, columns map[string]string) ([]csvRow, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int)
	for i, name := range header {
		key := strings.NewReplacer(" ", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(name)))
		if canonical, ok := columns[key]; ok {
			if _, exists := cols[canonical]; !exists {
				cols[canonical] = i
			}
		}
	}

	var rows []csvRow
	for line := 2; ; line++ {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		rows = append(rows, csvRow{line: line, cells: cells})
	}
	return rows, cols, nil
}

func futuresFromRow(cells []string, cols map[string]int) (model.FuturesContract, error) {
	commodity, month, err := contractIdentity(cells, cols)
	if err != nil {
		return model.FuturesContract{}, err
	}

	date, err := normalize.ParseDate(cell(cells, cols, "date"))
	if err != nil {
		return model.FuturesContract{}, err
	}

	fc, err := normalize.Futures(model.RawFuturesRow{
		Month:      month,
		Open:       cell(cells, cols, "open"),
		High:       cell(cells, cols, "high"),
		Low:        cell(cells, cols, "low"),
		Last:       cell(cells, cols, "last"),
		Change:     cell(cells, cols, "change"),
		Settle:     cell(cells, cols, "settle"),
		EstVolume:  cell(cells, cols, "volume"),
		PriorDayOI: cell(cells, cols, "oi"),
	}, commodity, date, model.SourceExcel)
	if err != nil {
		return model.FuturesContract{}, err
	}
	return fc, nil
}

// contractIdentity resolves the commodity and contract month for a row,
// preferring a contract symbol column when present.
func contractIdentity(cells []string, cols map[string]int) (model.Commodity, string, error) {
	if symbol := cell(cells, cols, "symbol"); symbol != "" {
		return normalize.ParseContractSymbol(symbol)
	}

	commodity := parseCommodity(cell(cells, cols, "commodity"))
	month := cell(cells, cols, "month")
	if !commodity.Valid() || month == "" {
		return "", "", fmt.Errorf("row identifies no contract")
	}
	return commodity, month, nil
}

func parseCommodity(s string) model.Commodity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WTI", "CL", "CRUDE", "CRUDE OIL":
		return model.WTI
	case "HH", "NG", "HENRY HUB", "NATURAL GAS":
		return model.HenryHub
	default:
		return ""
	}
}

func cell(cells []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
