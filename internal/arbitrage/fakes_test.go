package arbitrage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

var (
	ethBTC = model.Pair{Base: "ETH", Quote: "BTC"}
	ltcETH = model.Pair{Base: "LTC", Quote: "ETH"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noWait(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, Sleep: retry.NoWait}
}

// fakeVenue is an in-memory venue. Filled orders move balances immediately unless
// settleAfter delays them by a number of balance reads.
type fakeVenue struct {
	name string

	mu           sync.Mutex
	books        map[model.Pair]model.OrderBook
	bookErr      error
	bookCalls    int
	balances     map[string]float64
	balanceErr   error
	balanceFails int
	balanceCalls int
	markets      []model.Pair
	marketsErr   error
	tickers      map[model.Pair]model.Ticker
	orderErr     error
	orderFails   int
	orderCalls   int
	orders       []model.OrderAck
	fill         bool
	settleAfter  int
	pending      []func()
}

func newFakeVenue(name string) *fakeVenue {
	return &fakeVenue{
		name:     name,
		books:    make(map[model.Pair]model.OrderBook),
		balances: make(map[string]float64),
		tickers:  make(map[model.Pair]model.Ticker),
		fill:     true,
	}
}

func (f *fakeVenue) withBook(pair model.Pair, bid, bidSize, ask, askSize float64) *fakeVenue {
	f.books[pair] = model.OrderBook{
		Venue: f.name, Pair: pair, Timestamp: time.Unix(1700000000, 0),
		Bids: []model.PriceLevel{{Price: bid, Size: bidSize}},
		Asks: []model.PriceLevel{{Price: ask, Size: askSize}},
	}
	return f
}

func (f *fakeVenue) withBalance(cur string, v float64) *fakeVenue {
	f.balances[cur] = v
	return f
}

func (f *fakeVenue) GetName() string { return f.name }

func (f *fakeVenue) Markets(context.Context) ([]model.Pair, error) {
	return f.markets, f.marketsErr
}

func (f *fakeVenue) FetchOrderBook(_ context.Context, pair model.Pair) (model.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++
	if f.bookErr != nil {
		return model.OrderBook{}, f.bookErr
	}
	return f.books[pair], nil
}

func (f *fakeVenue) FetchBalance(ctx context.Context) (model.BalanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return model.BalanceSnapshot{}, f.balanceErr
	}
	if f.balanceFails > 0 {
		f.balanceFails--
		return model.BalanceSnapshot{}, fmt.Errorf("%s: %w", f.name, exchange.ErrVenueUnavailable)
	}
	if len(f.pending) > 0 {
		if f.settleAfter > 0 {
			f.settleAfter--
		} else {
			for _, apply := range f.pending {
				apply()
			}
			f.pending = nil
		}
	}
	return model.BalanceSnapshot{Venue: f.name, Taken: time.Now(), Totals: maps.Clone(f.balances)}, nil
}

func (f *fakeVenue) CreateLimitSellOrder(_ context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return f.place(pair, model.SideSell, amount, price)
}

func (f *fakeVenue) CreateLimitBuyOrder(_ context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return f.place(pair, model.SideBuy, amount, price)
}

func (f *fakeVenue) place(pair model.Pair, side model.Side, amount, price float64) (model.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.orderFails > 0 {
		f.orderFails--
		return model.OrderAck{}, fmt.Errorf("%s: %w", f.name, exchange.ErrVenueUnavailable)
	}
	if f.orderErr != nil {
		return model.OrderAck{}, f.orderErr
	}
	ack := model.OrderAck{
		Venue: f.name, OrderID: fmt.Sprintf("%s-%d", f.name, f.orderCalls), Status: "FILLED",
		Side: side, Pair: pair, Amount: amount, Price: price, Executed: amount,
	}
	f.orders = append(f.orders, ack)
	if f.fill {
		apply := func() {
			if side == model.SideSell {
				f.balances[pair.Base] -= amount
				f.balances[pair.Quote] += amount * price
			} else {
				f.balances[pair.Quote] -= amount * price
				f.balances[pair.Base] += amount
			}
		}
		f.pending = append(f.pending, apply)
	}
	return ack, nil
}

func (f *fakeVenue) FetchTicker(_ context.Context, pair model.Pair) (model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[pair]
	if !ok {
		return model.Ticker{}, fmt.Errorf("%s %s: %w", f.name, pair, exchange.ErrVenueUnavailable)
	}
	return t, nil
}

func (f *fakeVenue) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderCalls
}
