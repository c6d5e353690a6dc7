package arbitrage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crossarb/internal/config"
	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LogTrade(ctx context.Context, trade model.TradeRecord) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *MockRepository) LogObservation(ctx context.Context, obs model.Observation) error {
	args := m.Called(ctx, obs)
	return args.Error(0)
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Arbitrage: config.ArbitrageConfig{
			Enabled:           true,
			MinSpreadPercent:  1,
			MinNotional:       0.01,
			MaxNotional:       0.07,
			FeeMargin:         0.005,
			PriceOffset:       0.001,
			BookDepth:         5,
			Cycles:            1,
			Workers:           1,
			OrderAttempts:     3,
			BalanceAttempts:   3,
			ReconcileAttempts: 5,
			ReconcileDelay:    time.Second,
		},
		Portfolio: config.PortfolioConfig{ReferenceCurrency: "BTC"},
	}
}

// profitableVenues: binance bids 0.0500 for 2.0, kraken asks 0.0480 for 2.0.
func profitableVenues() (*fakeVenue, *fakeVenue) {
	binance := newFakeVenue("binance").withBook(ethBTC, 0.0500, 2.0, 0.0510, 2.0).
		withBalance("ETH", 10).withBalance("BTC", 1)
	kraken := newFakeVenue("kraken").withBook(ethBTC, 0.0470, 2.0, 0.0480, 2.0).
		withBalance("ETH", 0).withBalance("BTC", 10)
	return binance, kraken
}

func newTestEngine(cfg *config.Config, repo *MockRepository, venues ...*fakeVenue) *ArbitrageEngine {
	clients := make([]exchange.ExchangeClient, len(venues))
	for i, v := range venues {
		clients[i] = v
	}
	e := newArbitrageEngine(discardLogger(), repo, cfg, clients, nil, retry.NoWait)
	e.newID = func() string { return "trade-1" }
	return e
}

func pairVenues(pair model.Pair, venues ...*fakeVenue) PairVenues {
	pv := PairVenues{Pair: pair}
	for _, v := range venues {
		pv.Venues = append(pv.Venues, v.name)
	}
	return pv
}

func TestArbitrageEngine_ProfitableTradeIsReconciled(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("LogObservation", mock.Anything, mock.Anything).Return(nil).Twice()
	mockRepo.On("LogTrade", mock.Anything, mock.MatchedBy(func(r model.TradeRecord) bool {
		return r.ID == "trade-1" && r.Outcome == "profitable" && r.SellExchange == "binance" && r.BuyExchange == "kraken"
	})).Return(nil).Once()

	binance, kraken := profitableVenues()
	e := newTestEngine(testConfig(), mockRepo, binance, kraken)

	res := e.EvaluatePair(context.Background(), pairVenues(ethBTC, binance, kraken))
	assert.Equal(t, model.OutcomeProfitable, res.Outcome, res.Reason)
	require.NotNil(t, res.Spread)
	assert.InDelta(t, 4.0, res.Spread.SpreadPercent, 1e-9)
	require.NotNil(t, res.Intent)
	assert.Equal(t, 1.4, res.Intent.Amount)
	assert.Equal(t, 0.04995, res.Intent.SellPrice)
	assert.Equal(t, 0.04805, res.Intent.BuyPrice)
	assert.InDelta(t, 0, res.BaseDiff, 1e-12)
	assert.InDelta(t, 1.4*(0.04995-0.04805), res.QuoteDiff, 1e-12)
	assert.Equal(t, 1, res.Checks)

	require.Len(t, binance.orders, 1)
	assert.Equal(t, model.SideSell, binance.orders[0].Side)
	require.Len(t, kraken.orders, 1)
	assert.Equal(t, model.SideBuy, kraken.orders[0].Side)
	mockRepo.AssertExpectations(t)
}

func TestArbitrageEngine_NothingToDo(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(cfg *config.Config, binance, kraken *fakeVenue)
		reason string
	}{
		{
			name:   "spread below threshold",
			setup:  func(cfg *config.Config, _, _ *fakeVenue) { cfg.Arbitrage.MinSpreadPercent = 5 },
			reason: "below",
		},
		{
			name:   "observe only",
			setup:  func(cfg *config.Config, _, _ *fakeVenue) { cfg.Arbitrage.Enabled = false },
			reason: "observing only",
		},
		{
			name: "insufficient depth",
			setup: func(_ *config.Config, binance, _ *fakeVenue) {
				binance.withBook(ethBTC, 0.0500, 0.05, 0.0510, 2.0)
			},
			reason: ErrInsufficientDepth.Error(),
		},
		{
			name: "insufficient funds",
			setup: func(_ *config.Config, _, kraken *fakeVenue) {
				kraken.withBalance("BTC", 0.005)
			},
			reason: ErrInsufficientFunds.Error(),
		},
		{
			name: "no allowed buy venue quotes",
			setup: func(cfg *config.Config, _, _ *fakeVenue) {
				cfg.Arbitrage.BuyVenues = []string{"wallex"}
			},
			reason: ErrNoQuote.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			mockRepo.On("LogObservation", mock.Anything, mock.Anything).Return(nil)

			cfg := testConfig()
			binance, kraken := profitableVenues()
			tt.setup(cfg, binance, kraken)
			e := newTestEngine(cfg, mockRepo, binance, kraken)

			res := e.EvaluatePair(context.Background(), pairVenues(ethBTC, binance, kraken))
			assert.Equal(t, model.OutcomeSkipped, res.Outcome)
			assert.Contains(t, res.Reason, tt.reason)
			assert.Zero(t, binance.orderCount())
			assert.Zero(t, kraken.orderCount())
			mockRepo.AssertNotCalled(t, "LogTrade", mock.Anything, mock.Anything)
		})
	}
}

func TestArbitrageEngine_UnsupportedQuoteIsSkipped(t *testing.T) {
	mockRepo := new(MockRepository)
	binance, kraken := profitableVenues()
	e := newTestEngine(testConfig(), mockRepo, binance, kraken)

	res := e.EvaluatePair(context.Background(), pairVenues(model.Pair{Base: "BTC", Quote: "USDT"}, binance, kraken))
	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	assert.Contains(t, res.Reason, ErrUnsupportedQuote.Error())
	assert.Zero(t, binance.bookCalls)
	assert.Zero(t, kraken.bookCalls)
	mockRepo.AssertNotCalled(t, "LogObservation", mock.Anything, mock.Anything)
}

func TestArbitrageEngine_ETHQuotedNotional(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("LogObservation", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("LogTrade", mock.Anything, mock.Anything).Return(nil)

	binance := newFakeVenue("binance").withBook(ltcETH, 0.5, 10, 0.51, 10).withBalance("LTC", 100)
	binance.tickers[ethBTC] = model.Ticker{Bid: 0.05, Ask: 0.05}
	kraken := newFakeVenue("kraken").withBook(ltcETH, 0.47, 10, 0.48, 10).withBalance("ETH", 100)
	e := newTestEngine(testConfig(), mockRepo, binance, kraken)

	res := e.EvaluatePair(context.Background(), pairVenues(ltcETH, binance, kraken))
	require.NotNil(t, res.Intent, res.Reason)
	// 0.07 BTC is 1.4 ETH, which buys 2.8 LTC at 0.5
	assert.Equal(t, 2.8, res.Intent.Amount)
	assert.Equal(t, model.OutcomeProfitable, res.Outcome)
}

func TestArbitrageEngine_UnconfirmedWhenBuyLegFails(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("LogObservation", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("LogTrade", mock.Anything, mock.MatchedBy(func(r model.TradeRecord) bool {
		return r.Outcome == "unconfirmed" && r.BuyOrderID == "" && r.SellOrderID != ""
	})).Return(nil).Once()

	binance, kraken := profitableVenues()
	kraken.orderErr = &exchange.OrderRejectedError{Venue: "kraken", Reason: "EOrder:Insufficient funds"}
	e := newTestEngine(testConfig(), mockRepo, binance, kraken)

	res := e.EvaluatePair(context.Background(), pairVenues(ethBTC, binance, kraken))
	assert.Equal(t, model.OutcomeUnconfirmed, res.Outcome)
	assert.Equal(t, 3, kraken.orderCount())
	assert.Equal(t, 1, binance.orderCount())
	// only the sell filled: base dropped by the whole amount
	assert.InDelta(t, -1.4, res.BaseDiff, 1e-12)
	assert.Equal(t, 5, res.Checks)
	mockRepo.AssertExpectations(t)
}

func TestArbitrageEngine_VenueDownSkipsPair(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("LogObservation", mock.Anything, mock.Anything).Return(nil)

	binance, kraken := profitableVenues()
	kraken.bookErr = exchange.ErrVenueUnavailable
	e := newTestEngine(testConfig(), mockRepo, binance, kraken)

	res := e.EvaluatePair(context.Background(), pairVenues(ethBTC, binance, kraken))
	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	assert.Contains(t, res.Reason, ErrNoQuote.Error())
	assert.Equal(t, 3, kraken.bookCalls)
}
