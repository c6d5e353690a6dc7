package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

// Portfolio is the per-currency total across venues at one moment.
type Portfolio struct {
	Taken  time.Time
	Totals map[string]float64
	// Venues that contributed, in the tracker's order.
	Venues []string
	// Failed venues and why; their holdings are missing from Totals.
	Failed map[string]error
}

// Valuation is a portfolio priced in one reference currency.
type Valuation struct {
	Reference  string
	Total      float64
	ByCurrency map[string]float64
	// Missing lists currencies that could not be priced and are left out of Total.
	Missing []string
}

// Complete reports whether every currency was priced.
func (v Valuation) Complete() bool {
	return len(v.Missing) == 0
}

// Change is the difference in one currency between two portfolios.
type Change struct {
	Currency string
	Before   float64
	After    float64
	Diff     float64
}

// PortfolioTracker aggregates balances across venues. Every snapshot is rebuilt from scratch.
type PortfolioTracker struct {
	logger  *slog.Logger
	clients []exchange.ExchangeClient
	policy  retry.Policy
	rates   *RateSource
	now     func() time.Time
}

func NewPortfolioTracker(logger *slog.Logger, clients []exchange.ExchangeClient, policy retry.Policy, rates *RateSource) *PortfolioTracker {
	return &PortfolioTracker{
		logger:  logger.With("component", "portfolio"),
		clients: clients,
		policy:  policy,
		rates:   rates,
		now:     time.Now,
	}
}

// Snapshot fetches every venue's balance and sums per currency. With currencies set,
// only those are reported and each is present even when no venue holds it.
// A venue that keeps failing is recorded in Failed; Snapshot fails only when all venues do.
func (p *PortfolioTracker) Snapshot(ctx context.Context, currencies []string) (Portfolio, error) {
	snaps := make([]model.BalanceSnapshot, len(p.clients))
	errs := make([]error, len(p.clients))

	var g errgroup.Group
	for i, c := range p.clients {
		g.Go(func() error {
			snaps[i], errs[i] = fetchBalance(ctx, p.policy, c)
			return nil
		})
	}
	_ = g.Wait()

	pf := Portfolio{Taken: p.now(), Totals: make(map[string]float64), Failed: make(map[string]error)}
	for _, cur := range currencies {
		pf.Totals[cur] = 0
	}
	// sum in venue order so repeated snapshots of unchanged balances are bit-identical
	for i, c := range p.clients {
		if errs[i] != nil {
			pf.Failed[c.GetName()] = errs[i]
			p.logger.Warn("venue left out of portfolio", "venue", c.GetName(), "error", errs[i])
			continue
		}
		pf.Venues = append(pf.Venues, c.GetName())
		for _, cur := range sortedKeys(snaps[i].Totals) {
			if len(currencies) > 0 && !slices.Contains(currencies, cur) {
				continue
			}
			pf.Totals[cur] += snaps[i].Totals[cur]
		}
	}
	if len(p.clients) > 0 && len(pf.Venues) == 0 {
		return pf, fmt.Errorf("portfolio: %w", errors.Join(errs...))
	}
	return pf, nil
}

// Value prices every non-zero total in reference. Currencies without a rate are listed
// in Missing instead of failing the call.
func (p *PortfolioTracker) Value(ctx context.Context, pf Portfolio, reference string) Valuation {
	v := Valuation{Reference: reference, ByCurrency: make(map[string]float64)}
	for _, cur := range sortedKeys(pf.Totals) {
		amount := pf.Totals[cur]
		if amount == 0 {
			continue
		}
		if p.rates == nil {
			v.Missing = append(v.Missing, cur)
			continue
		}
		rate, err := p.rates.Rate(ctx, cur, reference)
		if err != nil {
			p.logger.Warn("no rate, reporting raw total", "currency", cur, "reference", reference, "error", err)
			v.Missing = append(v.Missing, cur)
			continue
		}
		v.ByCurrency[cur] = amount * rate
		v.Total += amount * rate
	}
	return v
}

// Compare lists per-currency changes between two portfolios, sorted by currency.
func Compare(before, after Portfolio) []Change {
	seen := maps.Clone(before.Totals)
	if seen == nil {
		seen = make(map[string]float64)
	}
	for cur := range after.Totals {
		seen[cur] = 0
	}
	changes := make([]Change, 0, len(seen))
	for _, cur := range sortedKeys(seen) {
		b, a := before.Totals[cur], after.Totals[cur]
		changes = append(changes, Change{Currency: cur, Before: b, After: a, Diff: a - b})
	}
	return changes
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
