package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Pair is a traded instrument: Base priced in Quote, written "BASE/QUOTE".
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses a "BASE/QUOTE" symbol.
func ParsePair(symbol string) (Pair, error) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "/") {
		return Pair{}, fmt.Errorf("invalid pair %q: want BASE/QUOTE", symbol)
	}
	return Pair{Base: base, Quote: quote}, nil
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Has reports whether currency is either side of the pair.
func (p Pair) Has(currency string) bool {
	return p.Base == currency || p.Quote == currency
}

// PriceLevel is one order-book level.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a normalized order-book snapshot as returned by a venue connector.
// Bids are sorted best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Venue     string
	Pair      Pair
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// Observation is the best-bid/best-ask view of one venue for one pair in one cycle.
type Observation struct {
	Venue             string
	Pair              Pair
	Timestamp         time.Time
	ExchangeTimestamp time.Time
	BestBid           float64
	BestBidSize       float64
	BestAsk           float64
	BestAskSize       float64
	Bids              []PriceLevel
	Asks              []PriceLevel
}

// FormatLevels renders levels as "size@price;size@price".
func FormatLevels(levels []PriceLevel) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		parts = append(parts, strconv.FormatFloat(l.Size, 'f', -1, 64)+"@"+strconv.FormatFloat(l.Price, 'f', -1, 64))
	}
	return strings.Join(parts, ";")
}

// Spread is the best cross-venue opportunity for one pair.
type Spread struct {
	Pair          Pair
	SellVenue     string
	SellPrice     float64
	SellSize      float64
	BuyVenue      string
	BuyPrice      float64
	BuySize       float64
	SpreadPercent float64
}

// BalanceSnapshot holds the total amount per currency on one venue at one moment.
type BalanceSnapshot struct {
	Venue  string
	Taken  time.Time
	Totals map[string]float64
}

// Total returns the held amount of currency, zero when absent.
func (b BalanceSnapshot) Total(currency string) float64 {
	return b.Totals[currency]
}

// Ticker is the top of book used for reference pricing.
type Ticker struct {
	Venue     string
	Pair      Pair
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Mid returns the midpoint, or whichever side is set when the other is missing.
func (t Ticker) Mid() float64 {
	switch {
	case t.Bid > 0 && t.Ask > 0:
		return (t.Bid + t.Ask) / 2
	case t.Bid > 0:
		return t.Bid
	default:
		return t.Ask
	}
}

type Side string

const (
	SideSell Side = "sell"
	SideBuy  Side = "buy"
)

// TradeIntent is the sized, priced arbitrage attempt handed to the executor.
type TradeIntent struct {
	ID            string
	Pair          Pair
	Amount        float64
	MinAmount     float64
	SellVenue     string
	SellPrice     float64
	BuyVenue      string
	BuyPrice      float64
	SpreadPercent float64
}

// OrderAck is a venue acknowledgement of a submitted limit order.
type OrderAck struct {
	Venue    string
	OrderID  string
	Status   string
	Side     Side
	Pair     Pair
	Amount   float64
	Price    float64
	Executed float64
}

// LegResult is the outcome of one leg after retries.
type LegResult struct {
	Side     Side
	Venue    string
	Attempts int
	Ack      *OrderAck
	Err      error
}

func (l LegResult) OK() bool {
	return l.Err == nil && l.Ack != nil
}

// Outcome classifies what happened to one pair in one cycle.
type Outcome string

const (
	OutcomeProfitable  Outcome = "profitable"
	OutcomeUnconfirmed Outcome = "unconfirmed"
	OutcomeSkipped     Outcome = "skipped"
)

// TradeResult is the per-pair, per-cycle result reported back to the scheduler.
type TradeResult struct {
	Pair      Pair
	Outcome   Outcome
	Reason    string
	Spread    *Spread
	Intent    *TradeIntent
	SellLeg   *LegResult
	BuyLeg    *LegResult
	BaseDiff  float64
	QuoteDiff float64
	Checks    int
}

// TradeRecord represents an executed arbitrage attempt to be logged.
type TradeRecord struct {
	ID            string    `db:"id"`
	Timestamp     time.Time `db:"timestamp"`
	TradingPair   string    `db:"trading_pair"`
	SellExchange  string    `db:"sell_exchange"`
	BuyExchange   string    `db:"buy_exchange"`
	SellPrice     float64   `db:"sell_price"`
	BuyPrice      float64   `db:"buy_price"`
	Amount        float64   `db:"amount"`
	SpreadPercent float64   `db:"spread_percent"`
	SellOrderID   string    `db:"sell_order_id"`
	BuyOrderID    string    `db:"buy_order_id"`
	BaseDiff      float64   `db:"base_diff"`
	QuoteDiff     float64   `db:"quote_diff"`
	Outcome       string    `db:"outcome"`
}

// NewTradeRecord flattens an executed result. It returns false for results without an intent.
func NewTradeRecord(r TradeResult, at time.Time) (TradeRecord, bool) {
	if r.Intent == nil {
		return TradeRecord{}, false
	}
	rec := TradeRecord{
		ID:            r.Intent.ID,
		Timestamp:     at,
		TradingPair:   r.Pair.String(),
		SellExchange:  r.Intent.SellVenue,
		BuyExchange:   r.Intent.BuyVenue,
		SellPrice:     r.Intent.SellPrice,
		BuyPrice:      r.Intent.BuyPrice,
		Amount:        r.Intent.Amount,
		SpreadPercent: r.Intent.SpreadPercent,
		BaseDiff:      r.BaseDiff,
		QuoteDiff:     r.QuoteDiff,
		Outcome:       string(r.Outcome),
	}
	if r.SellLeg != nil && r.SellLeg.Ack != nil {
		rec.SellOrderID = r.SellLeg.Ack.OrderID
	}
	if r.BuyLeg != nil && r.BuyLeg.Ack != nil {
		rec.BuyOrderID = r.BuyLeg.Ack.OrderID
	}
	return rec, true
}
