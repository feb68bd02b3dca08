package errorcalc

import (
	"context"
	"math"
	"sort"

	"futurespot/internal/database"
	"futurespot/internal/model"
)

// Series holds summary statistics for one error series.
type Series struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
	P25    float64
	P75    float64
	P90    float64
	P95    float64
}

// Statistics is the statistical summary over stored error calculations.
// WeightedMeanAbsError weights each absolute error by 1/(1+daysToExpiry)
// so near-dated contracts dominate; rows with unknown expiry are
// excluded from the weighted figure only.
type Statistics struct {
	Count                int
	AbsoluteError        Series
	PercentageError      Series
	WeightedMeanAbsError *float64
}

// Statistics summarizes stored error rows, optionally filtered by
// commodity and contract month.
func (e *Engine) Statistics(ctx context.Context, commodity model.Commodity, contractMonth string) (Statistics, error) {
	rows, err := e.repo.ErrorCalculations(ctx, database.ErrorFilter{
		Commodity: commodity, ContractMonth: contractMonth,
	})
	if err != nil {
		return Statistics{}, err
	}

	var abs, pct []float64
	var weightedSum, weightTotal float64
	for _, ec := range rows {
		abs = append(abs, ec.AbsoluteError)
		if ec.PercentageError != nil {
			pct = append(pct, *ec.PercentageError)
		}
		if ec.DaysToExpiry != nil {
			w := 1 / float64(1+*ec.DaysToExpiry)
			weightedSum += w * ec.AbsoluteError
			weightTotal += w
		}
	}

	stats := Statistics{
		Count:           len(rows),
		AbsoluteError:   summarize(abs),
		PercentageError: summarize(pct),
	}
	if weightTotal > 0 {
		v := weightedSum / weightTotal
		stats.WeightedMeanAbsError = &v
	}
	return stats, nil
}

func summarize(values []float64) Series {
	n := len(values)
	if n == 0 {
		return Series{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var stdDev float64
	if n > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		stdDev = math.Sqrt(sq / float64(n))
	}

	s := Series{
		Count:  n,
		Mean:   mean,
		Median: sorted[n/2],
		Min:    sorted[0],
		Max:    sorted[n-1],
		StdDev: stdDev,
		P25:    sorted[0],
		P75:    sorted[n-1],
		P90:    sorted[n-1],
		P95:    sorted[n-1],
	}
	if n >= 4 {
		s.P25 = sorted[n/4]
		s.P75 = sorted[3*n/4]
	}
	if n >= 10 {
		s.P90 = sorted[9*n/10]
	}
	if n >= 20 {
		s.P95 = sorted[19*n/20]
	}
	return s
}
