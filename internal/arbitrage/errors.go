package arbitrage

import "errors"

// "Nothing to do" outcomes. They are reported and the pair moves on; none of them aborts a run.
var (
	ErrEmptyOrderBook    = errors.New("empty order book")
	ErrInsufficientDepth = errors.New("insufficient depth")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoQuote           = errors.New("no quote")
	ErrUnsupportedQuote  = errors.New("unsupported quote currency")
	// ErrUnconfirmedPortfolio means reconciliation ran out of checks before the balances showed a gain.
	ErrUnconfirmedPortfolio = errors.New("portfolio change not confirmed")
)
