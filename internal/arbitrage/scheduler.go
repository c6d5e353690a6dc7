package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/config"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

// finalReportTimeout bounds the closing portfolio snapshot, which runs even after cancellation.
const finalReportTimeout = 2 * time.Minute

// PairEvaluator evaluates one pair for one cycle.
type PairEvaluator interface {
	EvaluatePair(ctx context.Context, pv PairVenues) model.TradeResult
}

// Summary is what a run did.
type Summary struct {
	Cycles      int
	Outcomes    map[model.Outcome]int
	Before      *Portfolio
	After       *Portfolio
	Changes     []Change
	Interrupted bool
}

// Scheduler runs every pair once per cycle for the configured number of cycles.
type Scheduler struct {
	logger    *slog.Logger
	engine    PairEvaluator
	portfolio *PortfolioTracker
	pfCfg     config.PortfolioConfig
	cfg       config.ArbitrageConfig
	pairs     []PairVenues
	sleep     func(context.Context, time.Duration) error
}

// NewScheduler builds a scheduler. portfolio may be nil to skip the before/after report.
func NewScheduler(logger *slog.Logger, engine PairEvaluator, portfolio *PortfolioTracker, cfg *config.Config, pairs []PairVenues) *Scheduler {
	return &Scheduler{
		logger:    logger.With("component", "scheduler"),
		engine:    engine,
		portfolio: portfolio,
		pfCfg:     cfg.Portfolio,
		cfg:       cfg.Arbitrage,
		pairs:     pairs,
		sleep:     retry.SleepContext,
	}
}

// Run executes the cycles. Cancelling ctx stops new pair tasks from starting; tasks
// already running finish on a context detached from the cancellation. The closing
// portfolio comparison is always attempted.
func (s *Scheduler) Run(ctx context.Context) Summary {
	sum := Summary{Outcomes: make(map[model.Outcome]int)}
	currencies := s.currencies()

	if s.portfolio != nil {
		if pf, err := s.portfolio.Snapshot(ctx, currencies); err != nil {
			s.logger.Error("initial portfolio unavailable", "error", err)
		} else {
			sum.Before = &pf
			s.report("portfolio before", pf)
		}
	}

	workers := max(s.cfg.Workers, 1)
	detached := context.WithoutCancel(ctx)
	for cycle := 1; cycle <= s.cfg.Cycles; cycle++ {
		if ctx.Err() != nil {
			break
		}
		s.logger.Info("cycle started", "cycle", cycle, "of", s.cfg.Cycles, "pairs", len(s.pairs))

		results := make([]model.TradeResult, len(s.pairs))
		started := make([]bool, len(s.pairs))
		var g errgroup.Group
		g.SetLimit(workers)
		for i, pv := range s.pairs {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				// the slot may free up only after an interrupt
				if ctx.Err() != nil {
					return nil
				}
				started[i] = true
				results[i] = s.engine.EvaluatePair(detached, pv)
				return nil
			})
		}
		_ = g.Wait()

		for i, r := range results {
			if started[i] {
				sum.Outcomes[r.Outcome]++
			}
		}
		sum.Cycles = cycle

		if cycle < s.cfg.Cycles && s.cfg.CycleDelay > 0 {
			if err := s.sleep(ctx, s.cfg.CycleDelay); err != nil {
				break
			}
		}
	}
	sum.Interrupted = ctx.Err() != nil
	if sum.Interrupted {
		s.logger.Warn("run interrupted, finishing with portfolio report", "cycles", sum.Cycles)
	}
	s.logger.Info("run finished", "cycles", sum.Cycles,
		"profitable", sum.Outcomes[model.OutcomeProfitable],
		"unconfirmed", sum.Outcomes[model.OutcomeUnconfirmed],
		"skipped", sum.Outcomes[model.OutcomeSkipped],
	)

	if s.portfolio != nil {
		fctx, cancel := context.WithTimeout(detached, finalReportTimeout)
		defer cancel()
		if pf, err := s.portfolio.Snapshot(fctx, currencies); err != nil {
			s.logger.Error("final portfolio unavailable", "error", err)
		} else {
			sum.After = &pf
			s.report("portfolio after", pf)
			if sum.Before != nil {
				sum.Changes = Compare(*sum.Before, pf)
				for _, c := range sum.Changes {
					if c.Diff != 0 {
						s.logger.Info("portfolio change", "currency", c.Currency, "before", c.Before, "after", c.After, "diff", c.Diff)
					}
				}
			}
		}
	}
	return sum
}

// currencies of interest: every currency of the scheduled pairs.
func (s *Scheduler) currencies() []string {
	var out []string
	seen := make(map[string]bool)
	for _, pv := range s.pairs {
		for _, c := range []string{pv.Pair.Base, pv.Pair.Quote} {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *Scheduler) report(msg string, pf Portfolio) {
	if !s.pfCfg.Display {
		return
	}
	attrs := []any{"venues", pf.Venues}
	for _, cur := range sortedKeys(pf.Totals) {
		attrs = append(attrs, cur, pf.Totals[cur])
	}
	if s.pfCfg.Convert {
		// valuation may call venues; give it its own bound so it survives cancellation
		ctx, cancel := context.WithTimeout(context.Background(), finalReportTimeout)
		defer cancel()
		v := s.portfolio.Value(ctx, pf, s.pfCfg.ReferenceCurrency)
		attrs = append(attrs, "value", v.Total, "reference", v.Reference)
		if !v.Complete() {
			attrs = append(attrs, "unpriced", v.Missing)
		}
	}
	s.logger.Info(msg, attrs...)
}
