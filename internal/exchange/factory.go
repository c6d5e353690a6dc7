package exchange

import (
	"fmt"
	"log/slog"

	"crossarb/internal/config"
)

// NewClient creates a new exchange client based on the given name and configuration.
// Paper mode wraps the venue so market data is real and the account is simulated.
func NewClient(name string, logger *slog.Logger, cfg config.ExchangeConfig) (ExchangeClient, error) {
	var c ExchangeClient
	switch name {
	case "kraken":
		c = NewKrakenClient(logger, cfg)
	case "binance":
		c = NewBinanceClient(logger, cfg)
	case "wallex":
		c = NewWallexClient(logger, cfg)
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
	if cfg.Paper {
		logger.Info("paper trading enabled", "venue", name, "balances", cfg.PaperBalances)
		return NewPaperClient(c, cfg.PaperBalances, cfg.PaperFeePercent), nil
	}
	return c, nil
}
