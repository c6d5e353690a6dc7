package arbitrage

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

// Executor places both legs of a trade intent. There is no cross-venue transaction:
// each leg is attempted on its own and a failed leg does not undo the other.
type Executor struct {
	logger *slog.Logger
	policy retry.Policy
}

func NewExecutor(logger *slog.Logger, policy retry.Policy) *Executor {
	return &Executor{logger: logger.With("component", "executor"), policy: policy}
}

// Execute submits the limit sell and the limit buy concurrently, each with bounded retry.
func (e *Executor) Execute(ctx context.Context, seller, buyer exchange.ExchangeClient, intent model.TradeIntent) (sellLeg, buyLeg model.LegResult) {
	var g errgroup.Group
	g.Go(func() error {
		sellLeg = e.leg(ctx, seller, model.SideSell, intent)
		return nil
	})
	g.Go(func() error {
		buyLeg = e.leg(ctx, buyer, model.SideBuy, intent)
		return nil
	})
	_ = g.Wait()
	return sellLeg, buyLeg
}

func (e *Executor) leg(ctx context.Context, client exchange.ExchangeClient, side model.Side, intent model.TradeIntent) model.LegResult {
	price := intent.BuyPrice
	place := client.CreateLimitBuyOrder
	if side == model.SideSell {
		price = intent.SellPrice
		place = client.CreateLimitSellOrder
	}
	log := e.logger.With("trade_id", intent.ID, "venue", client.GetName(), "side", side, "pair", intent.Pair.String())

	res := model.LegResult{Side: side, Venue: client.GetName()}
	var ack model.OrderAck
	attempts, err := e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		ack, err = place(ctx, intent.Pair, intent.Amount, price)
		if err != nil {
			log.Warn("order attempt failed", "attempt", attempt, "error", err, "rejected", isRejection(err))
		}
		return err
	})
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		log.Error("leg abandoned", "attempts", attempts, "amount", intent.Amount, "price", price, "error", err)
		return res
	}
	res.Ack = &ack
	if attempts > 1 {
		log.Info("order placed after retry", "attempts", attempts, "order_id", ack.OrderID)
	} else {
		log.Info("order placed", "order_id", ack.OrderID, "status", ack.Status, "amount", intent.Amount, "price", price)
	}
	return res
}

func isRejection(err error) bool {
	var rejected *exchange.OrderRejectedError
	return errors.As(err, &rejected)
}
