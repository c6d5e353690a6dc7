package arbitrage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
)

func testIntent() model.TradeIntent {
	return model.TradeIntent{ID: "t-1", Pair: ethBTC, Amount: 1.4, SellVenue: "binance", SellPrice: 0.04995, BuyVenue: "kraken", BuyPrice: 0.04805}
}

func TestExecutor_BothLegs(t *testing.T) {
	seller := newFakeVenue("binance")
	buyer := newFakeVenue("kraken")
	e := NewExecutor(discardLogger(), noWait(3))

	sellLeg, buyLeg := e.Execute(context.Background(), seller, buyer, testIntent())
	require.True(t, sellLeg.OK())
	require.True(t, buyLeg.OK())
	assert.Equal(t, model.SideSell, sellLeg.Ack.Side)
	assert.Equal(t, 0.04995, sellLeg.Ack.Price)
	assert.Equal(t, model.SideBuy, buyLeg.Ack.Side)
	assert.Equal(t, 0.04805, buyLeg.Ack.Price)
	assert.Equal(t, 1, sellLeg.Attempts)
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	seller := newFakeVenue("binance")
	seller.orderFails = 2
	buyer := newFakeVenue("kraken")
	e := NewExecutor(discardLogger(), noWait(3))

	sellLeg, buyLeg := e.Execute(context.Background(), seller, buyer, testIntent())
	assert.True(t, sellLeg.OK())
	assert.Equal(t, 3, sellLeg.Attempts)
	assert.True(t, buyLeg.OK())
}

func TestExecutor_AbandonedLegDoesNotStopTheOther(t *testing.T) {
	seller := newFakeVenue("binance")
	seller.orderErr = &exchange.OrderRejectedError{Venue: "binance", Reason: "insufficient balance"}
	buyer := newFakeVenue("kraken")
	e := NewExecutor(discardLogger(), noWait(3))

	sellLeg, buyLeg := e.Execute(context.Background(), seller, buyer, testIntent())
	assert.False(t, sellLeg.OK())
	assert.Equal(t, 3, sellLeg.Attempts)
	assert.Equal(t, 3, seller.orderCount())
	var rejected *exchange.OrderRejectedError
	assert.ErrorAs(t, sellLeg.Err, &rejected)

	assert.True(t, buyLeg.OK())
	assert.Equal(t, 1, buyer.orderCount())
}
