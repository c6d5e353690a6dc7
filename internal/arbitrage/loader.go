package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

// Loader turns venue order books into observations.
type Loader struct {
	logger  *slog.Logger
	depth   int
	minSize float64
	policy  retry.Policy
	now     func() time.Time
}

// NewLoader keeps the top depth levels and skips levels smaller than minSize when
// picking the best bid and ask.
func NewLoader(logger *slog.Logger, depth int, minSize float64, policy retry.Policy) *Loader {
	if depth < 1 {
		depth = 5
	}
	return &Loader{
		logger:  logger.With("component", "loader"),
		depth:   depth,
		minSize: minSize,
		policy:  policy,
		now:     time.Now,
	}
}

// Load fetches one order book and reduces it to an observation. When no level meets
// the size filter the best price is kept with size 0, which the sizer reads as
// insufficient depth.
func (l *Loader) Load(ctx context.Context, client exchange.ExchangeClient, pair model.Pair) (model.Observation, error) {
	var ob model.OrderBook
	_, err := l.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		ob, err = client.FetchOrderBook(ctx, pair)
		if err != nil && attempt < l.policy.Attempts {
			l.logger.Warn("order book fetch failed, retrying", "venue", client.GetName(), "pair", pair.String(), "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return model.Observation{}, err
	}
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return model.Observation{}, fmt.Errorf("%s %s: %w", client.GetName(), pair, ErrEmptyOrderBook)
	}

	obs := model.Observation{
		Venue:             client.GetName(),
		Pair:              pair,
		Timestamp:         l.now(),
		ExchangeTimestamp: ob.Timestamp,
		Bids:              head(ob.Bids, l.depth),
		Asks:              head(ob.Asks, l.depth),
	}
	obs.BestBid, obs.BestBidSize = firstAtLeast(ob.Bids, l.minSize)
	obs.BestAsk, obs.BestAskSize = firstAtLeast(ob.Asks, l.minSize)
	return obs, nil
}

// LoadAll loads the pair from every client concurrently. Venues that fail are
// reported in the error map and left out of the observations, which keep client order.
func (l *Loader) LoadAll(ctx context.Context, clients []exchange.ExchangeClient, pair model.Pair) ([]model.Observation, map[string]error) {
	results := make([]model.Observation, len(clients))
	errs := make([]error, len(clients))

	var g errgroup.Group
	for i, c := range clients {
		g.Go(func() error {
			results[i], errs[i] = l.Load(ctx, c, pair)
			return nil
		})
	}
	_ = g.Wait()

	var obs []model.Observation
	failed := make(map[string]error)
	for i, c := range clients {
		if errs[i] != nil {
			failed[c.GetName()] = errs[i]
			continue
		}
		obs = append(obs, results[i])
	}
	return obs, failed
}

// firstAtLeast scans levels best first and returns the first one whose size meets minSize.
func firstAtLeast(levels []model.PriceLevel, minSize float64) (price, size float64) {
	for _, lvl := range levels {
		if lvl.Size >= minSize && lvl.Size > 0 {
			return lvl.Price, lvl.Size
		}
	}
	return levels[0].Price, 0
}

func head(levels []model.PriceLevel, n int) []model.PriceLevel {
	if len(levels) > n {
		levels = levels[:n]
	}
	return append([]model.PriceLevel(nil), levels...)
}
