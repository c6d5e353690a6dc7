package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crossarb/internal/model"
)

func TestSplitConcatSymbol(t *testing.T) {
	p, ok := splitConcatSymbol("btcusdt", wallexQuotes)
	assert.True(t, ok)
	assert.Equal(t, model.Pair{Base: "BTC", Quote: "USDT"}, p)

	p, ok = splitConcatSymbol("ETHBTC", wallexQuotes)
	assert.True(t, ok)
	assert.Equal(t, model.Pair{Base: "ETH", Quote: "BTC"}, p)

	_, ok = splitConcatSymbol("USDT", wallexQuotes)
	assert.False(t, ok)
	_, ok = splitConcatSymbol("BTCEUR", wallexQuotes)
	assert.False(t, ok)
}

func TestKrakenCurrency(t *testing.T) {
	tests := map[string]string{
		"XXBT": "BTC",
		"XBT":  "BTC",
		"ZEUR": "EUR",
		"XETH": "ETH",
		"ETH":  "ETH",
		"XXDG": "DOGE",
		"USDT": "USDT",
		"DOT":  "DOT",
		"ZUSD": "USD",
		"XLTC": "LTC",
		// unprefixed assets that happen to start with X or Z
		"ZETA": "ZETA",
		"ZEUS": "ZEUS",
		"XION": "XION",
		"ZRX":  "ZRX",
	}
	for in, want := range tests {
		assert.Equal(t, want, krakenCurrency(in), in)
	}
}

func TestKrakenWSPair(t *testing.T) {
	assert.Equal(t, "XBT/EUR", krakenWSPair(model.Pair{Base: "BTC", Quote: "EUR"}))
	assert.Equal(t, "ETH/XBT", krakenWSPair(model.Pair{Base: "ETH", Quote: "BTC"}))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0.1", formatNumber(0.1))
	assert.Equal(t, "0.00001", formatNumber(1e-5))
	assert.Equal(t, "1234.5678", formatNumber(1234.5678))
}
