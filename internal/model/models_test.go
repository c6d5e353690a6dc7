package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair(" eth/btc ")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "ETH", Quote: "BTC"}, p)
	assert.Equal(t, "ETH/BTC", p.String())
	assert.True(t, p.Has("BTC"))
	assert.False(t, p.Has("EUR"))

	for _, bad := range []string{"", "ETHBTC", "/BTC", "ETH/", "A/B/C"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatLevels(t *testing.T) {
	levels := []PriceLevel{{Price: 0.05, Size: 2}, {Price: 0.0499, Size: 0.5}}
	assert.Equal(t, "2@0.05;0.5@0.0499", FormatLevels(levels))
	assert.Equal(t, "", FormatLevels(nil))
}

func TestTickerMid(t *testing.T) {
	assert.InDelta(t, 10.5, Ticker{Bid: 10, Ask: 11}.Mid(), 1e-12)
	assert.Equal(t, 10.0, Ticker{Bid: 10}.Mid())
	assert.Equal(t, 11.0, Ticker{Ask: 11}.Mid())
}

func TestNewTradeRecord(t *testing.T) {
	_, ok := NewTradeRecord(TradeResult{Outcome: OutcomeSkipped}, time.Now())
	assert.False(t, ok)

	now := time.Now()
	res := TradeResult{
		Pair:    Pair{Base: "ETH", Quote: "BTC"},
		Outcome: OutcomeProfitable,
		Intent: &TradeIntent{
			ID: "t-1", Pair: Pair{Base: "ETH", Quote: "BTC"}, Amount: 0.5,
			SellVenue: "kraken", SellPrice: 0.05, BuyVenue: "binance", BuyPrice: 0.048, SpreadPercent: 4,
		},
		SellLeg:   &LegResult{Side: SideSell, Ack: &OrderAck{OrderID: "s-1"}},
		BuyLeg:    &LegResult{Side: SideBuy, Err: errors.New("rejected")},
		QuoteDiff: 0.0002,
	}
	rec, ok := NewTradeRecord(res, now)
	require.True(t, ok)
	assert.Equal(t, "t-1", rec.ID)
	assert.Equal(t, "ETH/BTC", rec.TradingPair)
	assert.Equal(t, "s-1", rec.SellOrderID)
	assert.Empty(t, rec.BuyOrderID)
	assert.Equal(t, "profitable", rec.Outcome)
	assert.False(t, res.BuyLeg.OK())
	assert.True(t, res.SellLeg.OK())
}
