package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
)

// PairVenues is an arbitrable pair and the venues listing it, in configured venue order.
type PairVenues struct {
	Pair   model.Pair
	Venues []string
}

// DiscoverPairs intersects the venues' market lists. A pair is kept when at least two
// venues list it, it is in allowedPairs (when set) and neither side is excluded.
// Venues whose markets cannot be loaded are dropped with a warning. The result is sorted by pair.
func DiscoverPairs(ctx context.Context, logger *slog.Logger, clients []exchange.ExchangeClient, allowedPairs, excluded []string) ([]PairVenues, error) {
	allowed := make(map[model.Pair]bool, len(allowedPairs))
	for _, s := range allowedPairs {
		p, err := model.ParsePair(s)
		if err != nil {
			return nil, err
		}
		allowed[p] = true
	}
	excludedSet := make(map[string]bool, len(excluded))
	for _, c := range excluded {
		excludedSet[strings.ToUpper(c)] = true
	}

	markets := make([][]model.Pair, len(clients))
	errs := make([]error, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		g.Go(func() error {
			markets[i], errs[i] = c.Markets(ctx)
			return nil
		})
	}
	_ = g.Wait()

	venuesByPair := make(map[model.Pair][]string)
	loaded := 0
	for i, c := range clients {
		if errs[i] != nil {
			logger.Warn("could not load markets, venue dropped", "venue", c.GetName(), "error", errs[i])
			continue
		}
		loaded++
		for _, p := range markets[i] {
			if len(allowed) > 0 && !allowed[p] {
				continue
			}
			if excludedSet[p.Base] || excludedSet[p.Quote] {
				continue
			}
			if !slices.Contains(venuesByPair[p], c.GetName()) {
				venuesByPair[p] = append(venuesByPair[p], c.GetName())
			}
		}
	}
	if len(clients) > 0 && loaded == 0 {
		return nil, fmt.Errorf("discover pairs: %w", errors.Join(errs...))
	}

	var out []PairVenues
	for p, venues := range venuesByPair {
		if len(venues) >= 2 {
			out = append(out, PairVenues{Pair: p, Venues: venues})
		}
	}
	slices.SortFunc(out, func(a, b PairVenues) int { return strings.Compare(a.Pair.String(), b.Pair.String()) })
	logger.Info("arbitrable pairs discovered", "count", len(out), "venues", loaded)
	return out, nil
}
