package exchange

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"crossarb/internal/model"
)

// PaperClient proxies market data to a real venue and simulates the account:
// balances live in memory and limit orders fill immediately at their limit price less the fee.
type PaperClient struct {
	ExchangeClient // market data
	mu             sync.Mutex
	balances       map[string]float64
	feeRate        float64
	orderCounter   int64
}

// NewPaperClient wraps inner. feePercent is charged on the received side of every fill.
func NewPaperClient(inner ExchangeClient, balances map[string]float64, feePercent float64) *PaperClient {
	b := make(map[string]float64, len(balances))
	for cur, v := range balances {
		b[strings.ToUpper(cur)] = v
	}
	return &PaperClient{
		ExchangeClient: inner,
		balances:       b,
		feeRate:        feePercent / 100,
		orderCounter:   1000,
	}
}

func (p *PaperClient) FetchBalance(ctx context.Context) (model.BalanceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.BalanceSnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.BalanceSnapshot{Venue: p.GetName(), Taken: time.Now(), Totals: maps.Clone(p.balances)}, nil
}

func (p *PaperClient) CreateLimitSellOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderAck{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount <= 0 || price <= 0 {
		return model.OrderAck{}, &OrderRejectedError{Venue: p.GetName(), Reason: "invalid amount or price"}
	}
	if p.balances[pair.Base] < amount {
		return model.OrderAck{}, &OrderRejectedError{Venue: p.GetName(), Reason: fmt.Sprintf("insufficient %s", pair.Base)}
	}
	p.balances[pair.Base] -= amount
	p.balances[pair.Quote] += amount * price * (1 - p.feeRate)
	return p.fill(pair, model.SideSell, amount, price), nil
}

func (p *PaperClient) CreateLimitBuyOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderAck{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount <= 0 || price <= 0 {
		return model.OrderAck{}, &OrderRejectedError{Venue: p.GetName(), Reason: "invalid amount or price"}
	}
	cost := amount * price
	if p.balances[pair.Quote] < cost {
		return model.OrderAck{}, &OrderRejectedError{Venue: p.GetName(), Reason: fmt.Sprintf("insufficient %s", pair.Quote)}
	}
	p.balances[pair.Quote] -= cost
	p.balances[pair.Base] += amount * (1 - p.feeRate)
	return p.fill(pair, model.SideBuy, amount, price), nil
}

// fill must be called with mu held.
func (p *PaperClient) fill(pair model.Pair, side model.Side, amount, price float64) model.OrderAck {
	p.orderCounter++
	return model.OrderAck{
		Venue:    p.GetName(),
		OrderID:  fmt.Sprintf("paper_%d_%d", time.Now().Unix(), p.orderCounter),
		Status:   "FILLED",
		Side:     side,
		Pair:     pair,
		Amount:   amount,
		Price:    price,
		Executed: amount,
	}
}
