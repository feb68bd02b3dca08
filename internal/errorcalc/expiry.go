package errorcalc

import (
	"fmt"
	"time"
)

// ExpiryDate returns the canonical expiry date for a contract month.
// The rule is the 25th calendar day of the contract month: energy
// contracts stop trading around the 25th of the month preceding
// delivery, and the 25th is the documented approximation used for
// error weighting. Pure function of the contract month.
func ExpiryDate(contractMonth string) (time.Time, error) {
	t, err := time.Parse("2006-01", contractMonth)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid contract month %q: %w", contractMonth, err)
	}
	return time.Date(t.Year(), t.Month(), 25, 0, 0, 0, 0, time.UTC), nil
}

// DaysToExpiry returns the calendar-day distance from date to the
// contract's canonical expiry. Nil when the month label is unparseable
// or the contract has already expired.
func DaysToExpiry(date time.Time, contractMonth string) *int {
	expiry, err := ExpiryDate(contractMonth)
	if err != nil {
		return nil
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	days := int(expiry.Sub(day).Hours() / 24)
	if days < 0 {
		return nil
	}
	return &days
}
