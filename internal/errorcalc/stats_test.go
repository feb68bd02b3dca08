package errorcalc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"futurespot/internal/model"
)

func TestEngine_Statistics(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	pctPtr := func(v float64) *float64 { return &v }

	rows := []model.ErrorCalculation{
		{AbsoluteError: 0.50, PercentageError: pctPtr(0.8), DaysToExpiry: intPtr(0)},
		{AbsoluteError: 1.00, PercentageError: pctPtr(1.6), DaysToExpiry: intPtr(9)},
		{AbsoluteError: 1.50, PercentageError: pctPtr(2.4), DaysToExpiry: intPtr(29)},
		{AbsoluteError: 2.00, PercentageError: nil, DaysToExpiry: nil},
		{AbsoluteError: 2.50, PercentageError: pctPtr(4.0), DaysToExpiry: intPtr(59)},
	}

	mockRepo := new(MockRepository)
	mockRepo.On("ErrorCalculations", mock.Anything, mock.Anything).Return(rows, nil)

	engine := NewEngine(testLogger, mockRepo)
	stats, err := engine.Statistics(context.Background(), model.WTI, "")
	assert.NoError(t, err)

	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 5, stats.AbsoluteError.Count)
	assert.InDelta(t, 1.50, stats.AbsoluteError.Mean, 1e-9)
	assert.InDelta(t, 1.50, stats.AbsoluteError.Median, 1e-9)
	assert.InDelta(t, 0.50, stats.AbsoluteError.Min, 1e-9)
	assert.InDelta(t, 2.50, stats.AbsoluteError.Max, 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), stats.AbsoluteError.StdDev, 1e-9)
	assert.InDelta(t, 1.00, stats.AbsoluteError.P25, 1e-9)
	assert.InDelta(t, 2.00, stats.AbsoluteError.P75, 1e-9)
	// Small series fall back to the max for the high percentiles.
	assert.InDelta(t, 2.50, stats.AbsoluteError.P90, 1e-9)
	assert.InDelta(t, 2.50, stats.AbsoluteError.P95, 1e-9)

	// Null percentage errors are excluded from that series only.
	assert.Equal(t, 4, stats.PercentageError.Count)

	// Weight 1/(1+days) over the four rows with a known expiry.
	w := []float64{1.0, 1.0 / 10, 1.0 / 30, 1.0 / 60}
	want := (w[0]*0.50 + w[1]*1.00 + w[2]*1.50 + w[3]*2.50) / (w[0] + w[1] + w[2] + w[3])
	if assert.NotNil(t, stats.WeightedMeanAbsError) {
		assert.InDelta(t, want, *stats.WeightedMeanAbsError, 1e-9)
	}
}

func TestEngine_Statistics_Empty(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("ErrorCalculations", mock.Anything, mock.Anything).Return([]model.ErrorCalculation{}, nil)

	engine := NewEngine(testLogger, mockRepo)
	stats, err := engine.Statistics(context.Background(), model.WTI, "")
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
	assert.Nil(t, stats.WeightedMeanAbsError)
}

func TestSummarize_SingleValue(t *testing.T) {
	s := summarize([]float64{1.25})
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 1.25, s.Mean)
	assert.Equal(t, 1.25, s.Median)
	assert.Equal(t, 1.25, s.Min)
	assert.Equal(t, 1.25, s.Max)
	assert.Equal(t, 0.0, s.StdDev)
	assert.Equal(t, 1.25, s.P95)
}
