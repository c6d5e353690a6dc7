package exchange

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/config"
)

func TestNewClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, name := range []string{"binance", "kraken", "wallex"} {
		c, err := NewClient(name, logger, config.ExchangeConfig{})
		require.NoError(t, err)
		assert.Equal(t, name, c.GetName())
	}

	c, err := NewClient("kraken", logger, config.ExchangeConfig{Paper: true, PaperBalances: map[string]float64{"btc": 1}})
	require.NoError(t, err)
	assert.IsType(t, &PaperClient{}, c)
	assert.Equal(t, "kraken", c.GetName())

	_, err = NewClient("mtgox", logger, config.ExchangeConfig{})
	assert.ErrorContains(t, err, "unknown exchange")
}
