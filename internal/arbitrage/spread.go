package arbitrage

import (
	"fmt"
	"slices"

	"crossarb/internal/model"
)

// FindSpread picks the allow-listed venue with the highest bid to sell on and the
// allow-listed venue with the lowest ask to buy on. An empty allow-list admits every venue.
// Equal prices keep the venue seen first, so ties follow observation order.
// When one venue is best on both sides the better of the two runner-up combinations is used,
// since sell and buy venue must differ.
func FindSpread(pair model.Pair, observations []model.Observation, sellVenues, buyVenues []string) (model.Spread, error) {
	var sells, buys []model.Observation
	for _, o := range observations {
		if o.BestBid > 0 && allowed(sellVenues, o.Venue) {
			sells = append(sells, o)
		}
		if o.BestAsk > 0 && allowed(buyVenues, o.Venue) {
			buys = append(buys, o)
		}
	}
	if len(sells) == 0 || len(buys) == 0 {
		return model.Spread{}, fmt.Errorf("%s: %w: %d sell and %d buy quotes", pair, ErrNoQuote, len(sells), len(buys))
	}

	// stable sorts keep observation order among equal prices
	slices.SortStableFunc(sells, func(a, b model.Observation) int { return cmpFloat(b.BestBid, a.BestBid) })
	slices.SortStableFunc(buys, func(a, b model.Observation) int { return cmpFloat(a.BestAsk, b.BestAsk) })

	sell, buy := sells[0], buys[0]
	if sell.Venue == buy.Venue {
		var candidates [][2]model.Observation
		if len(buys) > 1 {
			candidates = append(candidates, [2]model.Observation{sells[0], buys[1]})
		}
		if len(sells) > 1 {
			candidates = append(candidates, [2]model.Observation{sells[1], buys[0]})
		}
		if len(candidates) == 0 {
			return model.Spread{}, fmt.Errorf("%s: %w: only %s quotes on both sides", pair, ErrNoQuote, sell.Venue)
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if spreadPercent(c[0].BestBid, c[1].BestAsk) > spreadPercent(best[0].BestBid, best[1].BestAsk) {
				best = c
			}
		}
		sell, buy = best[0], best[1]
	}

	return model.Spread{
		Pair:          pair,
		SellVenue:     sell.Venue,
		SellPrice:     sell.BestBid,
		SellSize:      sell.BestBidSize,
		BuyVenue:      buy.Venue,
		BuyPrice:      buy.BestAsk,
		BuySize:       buy.BestAskSize,
		SpreadPercent: spreadPercent(sell.BestBid, buy.BestAsk),
	}, nil
}

func spreadPercent(sellPrice, buyPrice float64) float64 {
	return 100 * (sellPrice - buyPrice) / sellPrice
}

func allowed(list []string, venue string) bool {
	return len(list) == 0 || slices.Contains(list, venue)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
