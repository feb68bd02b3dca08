package errorcalc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"futurespot/internal/database"
	"futurespot/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) UpsertFuturesContract(ctx context.Context, fc model.FuturesContract) (model.UpsertOutcome, error) {
	args := m.Called(ctx, fc)
	return args.Get(0).(model.UpsertOutcome), args.Error(1)
}

func (m *MockRepository) UpsertSpotPrice(ctx context.Context, sp model.SpotPrice) (model.UpsertOutcome, error) {
	args := m.Called(ctx, sp)
	return args.Get(0).(model.UpsertOutcome), args.Error(1)
}

func (m *MockRepository) UpsertErrorCalculation(ctx context.Context, ec model.ErrorCalculation) (model.UpsertOutcome, error) {
	args := m.Called(ctx, ec)
	return args.Get(0).(model.UpsertOutcome), args.Error(1)
}

func (m *MockRepository) FuturesContracts(ctx context.Context, f database.FuturesFilter) ([]model.FuturesContract, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.FuturesContract), args.Error(1)
}

func (m *MockRepository) SpotPrices(ctx context.Context, f database.SpotFilter) ([]model.SpotPrice, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.SpotPrice), args.Error(1)
}

func (m *MockRepository) ErrorCalculations(ctx context.Context, f database.ErrorFilter) ([]model.ErrorCalculation, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.ErrorCalculation), args.Error(1)
}

func (m *MockRepository) LatestSettlementDate(ctx context.Context, commodity model.Commodity) (*time.Time, error) {
	args := m.Called(ctx, commodity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockRepository) LogScrape(ctx context.Context, entry model.ScrapeLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ScrapeLogs(ctx context.Context, limit int) ([]model.ScrapeLog, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.ScrapeLog), args.Error(1)
}

var testLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEngine_Calculate(t *testing.T) {
	from, to := day(2025, 8, 20), day(2025, 8, 22)

	futures := []model.FuturesContract{
		{ID: 1, Commodity: model.WTI, ContractMonth: "2025-09", SettlementPrice: 64.50, SettlementDate: day(2025, 8, 21)},
		{ID: 2, Commodity: model.WTI, ContractMonth: "2025-10", SettlementPrice: 64.10, SettlementDate: day(2025, 8, 21)},
		{ID: 3, Commodity: model.WTI, ContractMonth: "2025-09", SettlementPrice: 64.80, SettlementDate: day(2025, 8, 22)},
	}
	spots := []model.SpotPrice{
		{ID: 10, Commodity: model.WTI, Price: 63.90, Date: day(2025, 8, 21)},
	}

	t.Run("matches on exact date only", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("FuturesContracts", mock.Anything, mock.Anything).Return(futures, nil)
		mockRepo.On("SpotPrices", mock.Anything, mock.Anything).Return(spots, nil)
		mockRepo.On("UpsertErrorCalculation", mock.Anything, mock.Anything).Return(model.Inserted, nil).Twice()

		engine := NewEngine(testLogger, mockRepo)
		res, err := engine.Calculate(context.Background(), model.WTI, from, to)

		assert.NoError(t, err)
		assert.Equal(t, 2, res.Matched)
		assert.Equal(t, 2, res.Inserted)
		assert.Equal(t, 1, res.Unmatched)
		mockRepo.AssertExpectations(t)
	})

	t.Run("rerun skips existing pairs", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("FuturesContracts", mock.Anything, mock.Anything).Return(futures, nil)
		mockRepo.On("SpotPrices", mock.Anything, mock.Anything).Return(spots, nil)
		mockRepo.On("UpsertErrorCalculation", mock.Anything, mock.Anything).Return(model.Skipped, nil).Twice()

		engine := NewEngine(testLogger, mockRepo)
		res, err := engine.Calculate(context.Background(), model.WTI, from, to)

		assert.NoError(t, err)
		assert.Equal(t, 2, res.Skipped)
		assert.Equal(t, 0, res.Inserted)
	})

	t.Run("no spot data yields no rows", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("FuturesContracts", mock.Anything, mock.Anything).Return(futures, nil)
		mockRepo.On("SpotPrices", mock.Anything, mock.Anything).Return([]model.SpotPrice{}, nil)

		engine := NewEngine(testLogger, mockRepo)
		res, err := engine.Calculate(context.Background(), model.WTI, from, to)

		assert.NoError(t, err)
		assert.Equal(t, 3, res.Unmatched)
		mockRepo.AssertNotCalled(t, "UpsertErrorCalculation")
	})

	t.Run("store failure aborts the run", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("FuturesContracts", mock.Anything, mock.Anything).Return(futures, nil)
		mockRepo.On("SpotPrices", mock.Anything, mock.Anything).Return(spots, nil)
		mockRepo.On("UpsertErrorCalculation", mock.Anything, mock.Anything).
			Return(model.Inserted, &database.StoreError{Op: "upsert error calculation", Err: errors.New("connection refused")})

		engine := NewEngine(testLogger, mockRepo)
		_, err := engine.Calculate(context.Background(), model.WTI, from, to)

		var storeErr *database.StoreError
		assert.ErrorAs(t, err, &storeErr)
	})
}

func TestDerive(t *testing.T) {
	fc := model.FuturesContract{
		ID: 1, Commodity: model.WTI, ContractMonth: "2025-09",
		SettlementPrice: 64.50, SettlementDate: day(2025, 8, 21),
	}
	sp := model.SpotPrice{ID: 10, Commodity: model.WTI, Price: 63.90, Date: day(2025, 8, 21)}

	ec := Derive(fc, sp)
	assert.Equal(t, int64(1), ec.FuturesContractID)
	assert.Equal(t, int64(10), ec.SpotPriceID)
	assert.InDelta(t, 0.60, ec.AbsoluteError, 1e-9)
	if assert.NotNil(t, ec.PercentageError) {
		assert.InDelta(t, (64.50-63.90)/63.90*100, *ec.PercentageError, 1e-9)
	}
	if assert.NotNil(t, ec.DaysToExpiry) {
		// 2025-08-21 to the canonical expiry on 2025-09-25.
		assert.Equal(t, 35, *ec.DaysToExpiry)
	}
}

func TestDerive_AbsoluteErrorNonNegative(t *testing.T) {
	fc := model.FuturesContract{SettlementPrice: 60.0, ContractMonth: "2025-09", SettlementDate: day(2025, 8, 21)}
	sp := model.SpotPrice{Price: 65.0, Date: day(2025, 8, 21)}

	ec := Derive(fc, sp)
	assert.InDelta(t, 5.0, ec.AbsoluteError, 1e-9)
	if assert.NotNil(t, ec.PercentageError) {
		assert.Less(t, *ec.PercentageError, 0.0)
	}
}

func TestDerive_ZeroSpotPrice(t *testing.T) {
	fc := model.FuturesContract{SettlementPrice: 64.50, ContractMonth: "2025-09", SettlementDate: day(2025, 8, 21)}
	sp := model.SpotPrice{Price: 0}

	ec := Derive(fc, sp)
	assert.Nil(t, ec.PercentageError)
	assert.InDelta(t, 64.50, ec.AbsoluteError, 1e-9)
}
