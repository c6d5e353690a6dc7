package exchange

import (
	"context"
	"errors"
	"fmt"

	"crossarb/internal/model"
)

var (
	// ErrVenueUnavailable covers network, auth and rate-limit failures. Callers may retry.
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrUnsupported is returned for operations a venue adapter does not implement.
	ErrUnsupported = errors.New("operation not supported by venue")
)

// OrderRejectedError is returned when a venue refuses an order
// (insufficient funds, precision violation, suspended symbol).
type OrderRejectedError struct {
	Venue  string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("%s: order rejected: %s", e.Venue, e.Reason)
}

func unavailable(venue string, err error) error {
	return fmt.Errorf("%s: %w: %w", venue, ErrVenueUnavailable, err)
}

// ExchangeClient defines the standard interface for all exchange clients.
// Adapters normalize venue payloads into the model types; venue quirks stay behind this boundary.
type ExchangeClient interface {
	GetName() string
	// Markets lists the pairs tradable on the venue.
	Markets(ctx context.Context) ([]model.Pair, error)
	FetchOrderBook(ctx context.Context, pair model.Pair) (model.OrderBook, error)
	FetchBalance(ctx context.Context) (model.BalanceSnapshot, error)
	CreateLimitSellOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error)
	CreateLimitBuyOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error)
	FetchTicker(ctx context.Context, pair model.Pair) (model.Ticker, error)
}
