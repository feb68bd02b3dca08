// Package normalize turns near-raw scraped rows into canonical typed
// records. Anything downstream of this package only ever sees fixed-field
// records; shape mismatches fail here, fast.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"futurespot/internal/model"
)

// ValidationError indicates a raw row that cannot become a canonical
// record. It is not retriable; the row is dropped and logged by the caller.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid row: field %q value %q", e.Field, e.Value)
}

// Futures converts a raw CME settlement row into a canonical contract
// record. The month label and settle price are required; all other cells
// default to null when absent or non-numeric.
func Futures(row model.RawFuturesRow, commodity model.Commodity, date time.Time, source model.Source) (model.FuturesContract, error) {
	if !commodity.Valid() {
		return model.FuturesContract{}, &ValidationError{Field: "commodity", Value: string(commodity)}
	}

	month, err := ParseContractMonth(row.Month)
	if err != nil {
		return model.FuturesContract{}, &ValidationError{Field: "month", Value: row.Month}
	}

	settle := CleanPrice(row.Settle)
	if settle == nil {
		return model.FuturesContract{}, &ValidationError{Field: "settle", Value: row.Settle}
	}

	now := time.Now().UTC()
	return model.FuturesContract{
		Commodity:       commodity,
		ContractMonth:   month,
		ContractSymbol:  ContractSymbol(commodity, month),
		SettlementPrice: *settle,
		SettlementDate:  midnightUTC(date),
		Open:            CleanPrice(row.Open),
		High:            CleanPrice(row.High),
		Low:             CleanPrice(row.Low),
		Last:            CleanPrice(row.Last),
		Change:          CleanChange(row.Change),
		Volume:          cleanCount(row.EstVolume),
		OpenInterest:    cleanCount(row.PriorDayOI),
		Source:          source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Spot converts a raw EIA date/price pair into a canonical spot record.
func Spot(row model.RawSpotRow, commodity model.Commodity, source model.Source) (model.SpotPrice, error) {
	if !commodity.Valid() {
		return model.SpotPrice{}, &ValidationError{Field: "commodity", Value: string(commodity)}
	}

	date, err := ParseDate(row.Date)
	if err != nil {
		return model.SpotPrice{}, &ValidationError{Field: "date", Value: row.Date}
	}

	price := CleanPrice(row.Price)
	if price == nil {
		return model.SpotPrice{}, &ValidationError{Field: "price", Value: row.Price}
	}

	return model.SpotPrice{
		Commodity: commodity,
		Price:     *price,
		Date:      date,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}, nil
}

var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

var isoMonthRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseContractMonth normalizes a free-text contract month label to
// YYYY-MM. Accepted forms: "JAN 26", "Jan 2025", "JANUARY 2025", "2025-01".
// Two-digit years below 50 land in the 2000s.
func ParseContractMonth(label string) (string, error) {
	label = strings.TrimSpace(label)
	if m := isoMonthRe.FindStringSubmatch(label); m != nil {
		month, err := strconv.Atoi(m[2])
		if err != nil || month < 1 || month > 12 {
			return "", fmt.Errorf("invalid contract month: %q", label)
		}
		return label, nil
	}

	parts := strings.Fields(strings.ToUpper(label))
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid contract month: %q", label)
	}

	abbrev := parts[0]
	if len(abbrev) > 3 {
		abbrev = abbrev[:3]
	}
	month, ok := monthAbbrevs[abbrev]
	if !ok {
		return "", fmt.Errorf("invalid contract month: %q", label)
	}

	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid contract month: %q", label)
	}
	switch {
	case len(parts[1]) == 2 && year < 50:
		year += 2000
	case len(parts[1]) == 2:
		year += 1900
	case len(parts[1]) != 4:
		return "", fmt.Errorf("invalid contract month: %q", label)
	}

	return fmt.Sprintf("%04d-%02d", year, int(month)), nil
}

var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01",
	"Jan 2006",
	"January 2006",
}

// ParseDate normalizes a date string in any of the source formats to a
// UTC midnight time. Month-only values land on the first of the month.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return midnightUTC(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

var (
	trailingLettersRe = regexp.MustCompile(`[A-Za-z]+$`)
	nullCellValues    = map[string]bool{"": true, "-": true, "NA": true, "N/A": true, "NULL": true}
)

// CleanPrice parses a numeric cell to a float, stripping thousands
// separators, dollar signs, em-dashes, and trailing bid/ask markers
// ("A"/"B"). Empty or placeholder cells are null, never zero.
func CleanPrice(s string) *float64 {
	cleaned := strings.NewReplacer(",", "", "$", "", "—", "").Replace(s)
	cleaned = strings.TrimSpace(trailingLettersRe.ReplaceAllString(strings.TrimSpace(cleaned), ""))
	if nullCellValues[strings.ToUpper(cleaned)] {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// CleanChange parses a daily change cell, which may express negatives
// with parentheses instead of a minus sign.
func CleanChange(s string) *float64 {
	return CleanPrice(strings.NewReplacer("(", "-", ")", "").Replace(s))
}

// cleanCount parses a count cell (volume, open interest) to a
// non-negative integer, or null.
func cleanCount(s string) *int64 {
	v := CleanPrice(s)
	if v == nil || *v < 0 {
		return nil
	}
	n := int64(*v)
	return &n
}

// CME contract month codes, January through December.
var monthCodes = [12]string{"F", "G", "H", "J", "K", "M", "N", "Q", "U", "V", "X", "Z"}

var symbolRe = regexp.MustCompile(`^(CL|NG)([FGHJKMNQUVXZ])(\d{4})$`)

// ContractSymbol derives the CME contract symbol from commodity and
// contract month, e.g. (WTI, "2026-01") -> "CLF2026".
func ContractSymbol(commodity model.Commodity, contractMonth string) string {
	m := isoMonthRe.FindStringSubmatch(contractMonth)
	if m == nil {
		return ""
	}
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return ""
	}
	return commodity.ContractPrefix() + monthCodes[month-1] + m[1]
}

// ParseContractSymbol is the inverse of ContractSymbol, used by the bulk
// importer: "CLZ2024" -> (WTI, "2024-12").
func ParseContractSymbol(symbol string) (model.Commodity, string, error) {
	m := symbolRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return "", "", fmt.Errorf("unrecognized contract symbol: %q", symbol)
	}

	commodity := model.WTI
	if m[1] == "NG" {
		commodity = model.HenryHub
	}
	for i, code := range monthCodes {
		if code == m[2] {
			return commodity, fmt.Sprintf("%s-%02d", m[3], i+1), nil
		}
	}
	return "", "", fmt.Errorf("unrecognized contract symbol: %q", symbol)
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
