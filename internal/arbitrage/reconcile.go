package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

var errNotYet = errors.New("balances not yet reconciled")

// Accepts reports whether a post-trade balance change counts as profitable: the base
// currency may drop by at most 1% of the traded amount and the quote currency must grow.
// The predicate is monotonic in both diffs.
func Accepts(baseDiff, quoteDiff, amount float64) bool {
	return baseDiff >= -amount/100 && quoteDiff > 0
}

// Reconciliation is the result of comparing pre- and post-trade balances.
type Reconciliation struct {
	Accepted  bool
	BaseDiff  float64
	QuoteDiff float64
	Checks    int
	// Err is set when no post-trade balance could be read at all.
	Err error
}

// Reconciler re-reads balances after execution until the combined change is accepted
// or the check budget runs out.
type Reconciler struct {
	logger   *slog.Logger
	checks   retry.Policy
	balances retry.Policy
}

// NewReconciler takes the policy spacing the checks and the policy for each balance read.
func NewReconciler(logger *slog.Logger, checks, balances retry.Policy) *Reconciler {
	return &Reconciler{logger: logger.With("component", "reconciler"), checks: checks, balances: balances}
}

// Reconcile compares post-trade balances of both venues with sellBefore and buyBefore.
// When no leg was acknowledged a single check is made.
func (r *Reconciler) Reconcile(ctx context.Context, seller, buyer exchange.ExchangeClient, intent model.TradeIntent,
	sellBefore, buyBefore model.BalanceSnapshot, anyLegPlaced bool) Reconciliation {
	policy := r.checks
	if !anyLegPlaced {
		policy.Attempts = 1
	}
	log := r.logger.With("trade_id", intent.ID, "pair", intent.Pair.String())

	var rec Reconciliation
	var read bool
	checks, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		sellAfter, buyAfter, err := FetchBalances(ctx, r.balances, seller, buyer)
		if err != nil {
			log.Warn("balance read failed", "check", attempt, "error", err)
			return err
		}
		read = true
		rec.BaseDiff = diff(sellBefore, sellAfter, intent.Pair.Base) + diff(buyBefore, buyAfter, intent.Pair.Base)
		rec.QuoteDiff = diff(sellBefore, sellAfter, intent.Pair.Quote) + diff(buyBefore, buyAfter, intent.Pair.Quote)
		if Accepts(rec.BaseDiff, rec.QuoteDiff, intent.Amount) {
			return nil
		}
		log.Debug("balances not reconciled yet", "check", attempt, "base_diff", rec.BaseDiff, "quote_diff", rec.QuoteDiff)
		return errNotYet
	})
	rec.Checks = checks
	rec.Accepted = err == nil
	if !read {
		rec.Err = err
	}
	return rec
}

func diff(before, after model.BalanceSnapshot, currency string) float64 {
	return after.Total(currency) - before.Total(currency)
}

// FetchBalances reads both venues' balances concurrently, each with the given retry policy.
func FetchBalances(ctx context.Context, policy retry.Policy, a, b exchange.ExchangeClient) (model.BalanceSnapshot, model.BalanceSnapshot, error) {
	var snapA, snapB model.BalanceSnapshot
	var g errgroup.Group
	g.Go(func() error {
		var err error
		snapA, err = fetchBalance(ctx, policy, a)
		return err
	})
	g.Go(func() error {
		var err error
		snapB, err = fetchBalance(ctx, policy, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.BalanceSnapshot{}, model.BalanceSnapshot{}, err
	}
	return snapA, snapB, nil
}

func fetchBalance(ctx context.Context, policy retry.Policy, c exchange.ExchangeClient) (model.BalanceSnapshot, error) {
	var snap model.BalanceSnapshot
	_, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		snap, err = c.FetchBalance(ctx)
		return err
	})
	if err != nil {
		return model.BalanceSnapshot{}, fmt.Errorf("balance %s: %w", c.GetName(), err)
	}
	return snap, nil
}
