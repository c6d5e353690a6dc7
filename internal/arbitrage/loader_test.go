package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
)

func TestLoader_Load(t *testing.T) {
	v := newFakeVenue("binance")
	v.books[ethBTC] = model.OrderBook{
		Pair: ethBTC,
		Bids: []model.PriceLevel{{Price: 0.0500, Size: 0.01}, {Price: 0.0499, Size: 0.5}, {Price: 0.0498, Size: 3}},
		Asks: []model.PriceLevel{{Price: 0.0501, Size: 2}, {Price: 0.0502, Size: 1}},
	}

	t.Run("skips levels below the size filter", func(t *testing.T) {
		l := NewLoader(discardLogger(), 2, 0.1, noWait(1))
		obs, err := l.Load(context.Background(), v, ethBTC)
		require.NoError(t, err)
		assert.Equal(t, "binance", obs.Venue)
		assert.Equal(t, 0.0499, obs.BestBid)
		assert.Equal(t, 0.5, obs.BestBidSize)
		assert.Equal(t, 0.0501, obs.BestAsk)
		assert.Equal(t, 2.0, obs.BestAskSize)
		assert.Len(t, obs.Bids, 2)
		assert.Equal(t, "0.01@0.05;0.5@0.0499", model.FormatLevels(obs.Bids))
	})

	t.Run("no filter takes level zero", func(t *testing.T) {
		l := NewLoader(discardLogger(), 5, 0, noWait(1))
		obs, err := l.Load(context.Background(), v, ethBTC)
		require.NoError(t, err)
		assert.Equal(t, 0.05, obs.BestBid)
		assert.Equal(t, 0.01, obs.BestBidSize)
	})

	t.Run("no level meets the filter", func(t *testing.T) {
		l := NewLoader(discardLogger(), 5, 10, noWait(1))
		obs, err := l.Load(context.Background(), v, ethBTC)
		require.NoError(t, err)
		assert.Equal(t, 0.05, obs.BestBid)
		assert.Zero(t, obs.BestBidSize)
		assert.Zero(t, obs.BestAskSize)
	})
}

func TestLoader_EmptyBook(t *testing.T) {
	v := newFakeVenue("kraken")
	v.books[ethBTC] = model.OrderBook{Pair: ethBTC, Asks: []model.PriceLevel{{Price: 1, Size: 1}}}
	l := NewLoader(discardLogger(), 5, 0, noWait(1))
	_, err := l.Load(context.Background(), v, ethBTC)
	assert.ErrorIs(t, err, ErrEmptyOrderBook)
}

func TestLoader_RetriesUnavailable(t *testing.T) {
	v := newFakeVenue("kraken")
	v.bookErr = exchange.ErrVenueUnavailable
	l := NewLoader(discardLogger(), 5, 0, noWait(3))
	_, err := l.Load(context.Background(), v, ethBTC)
	assert.ErrorIs(t, err, exchange.ErrVenueUnavailable)
	assert.Equal(t, 3, v.bookCalls)
}

func TestLoader_LoadAll(t *testing.T) {
	a := newFakeVenue("binance").withBook(ethBTC, 0.05, 1, 0.051, 1)
	b := newFakeVenue("kraken")
	b.bookErr = errors.New("boom")
	c := newFakeVenue("wallex").withBook(ethBTC, 0.049, 1, 0.0495, 1)

	l := NewLoader(discardLogger(), 5, 0, noWait(1))
	obs, failed := l.LoadAll(context.Background(), []exchange.ExchangeClient{a, b, c}, ethBTC)
	require.Len(t, obs, 2)
	assert.Equal(t, "binance", obs[0].Venue)
	assert.Equal(t, "wallex", obs[1].Venue)
	assert.Contains(t, failed, "kraken")
}
