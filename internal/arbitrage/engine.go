package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"crossarb/internal/config"
	"crossarb/internal/database"
	"crossarb/internal/exchange"
	"crossarb/internal/model"
	"crossarb/internal/retry"
)

// ArbitrageEngine holds the logic for identifying and executing arbitrage opportunities.
type ArbitrageEngine struct {
	logger     *slog.Logger
	repo       database.Repository
	cfg        *config.Config
	clients    map[string]exchange.ExchangeClient
	rates      *RateSource
	loader     *Loader
	sizer      Sizer
	executor   *Executor
	reconciler *Reconciler
	balances   retry.Policy

	// execMu serializes balance snapshot, execution and reconciliation. Pairs on the
	// same venue share quote balances, so interleaved trades would corrupt each other's diffs.
	execMu sync.Mutex
	newID  func() string
	now    func() time.Time
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine.
func NewArbitrageEngine(logger *slog.Logger, repo database.Repository, cfg *config.Config, clients []exchange.ExchangeClient, rates *RateSource) *ArbitrageEngine {
	return newArbitrageEngine(logger, repo, cfg, clients, rates, nil)
}

func newArbitrageEngine(logger *slog.Logger, repo database.Repository, cfg *config.Config, clients []exchange.ExchangeClient,
	rates *RateSource, sleep func(context.Context, time.Duration) error) *ArbitrageEngine {
	a := cfg.Arbitrage
	policy := func(attempts int, delay time.Duration) retry.Policy {
		p := retry.Fixed(attempts, delay)
		p.Sleep = sleep
		return p
	}
	balances := policy(a.BalanceAttempts, a.BalanceRetryDelay)

	byName := make(map[string]exchange.ExchangeClient, len(clients))
	for _, c := range clients {
		byName[c.GetName()] = c
	}
	if rates == nil {
		rates = NewRateSource(logger, clients, nil)
	}
	if repo == nil {
		repo = database.NopRepository{}
	}
	return &ArbitrageEngine{
		logger:     logger.With("component", "engine"),
		repo:       repo,
		cfg:        cfg,
		clients:    byName,
		rates:      rates,
		loader:     NewLoader(logger, a.BookDepth, a.MinBookSize, balances),
		sizer:      Sizer{FeeMargin: a.FeeMargin, PriceOffset: a.PriceOffset},
		executor:   NewExecutor(logger, policy(a.OrderAttempts, a.OrderRetryDelay)),
		reconciler: NewReconciler(logger, policy(a.ReconcileAttempts, a.ReconcileDelay), balances),
		balances:   balances,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// EvaluatePair runs one pass for one pair: observe, find the spread, size, execute and
// reconcile. Every failure is local to the pair and ends in a skipped result.
func (e *ArbitrageEngine) EvaluatePair(ctx context.Context, pv PairVenues) model.TradeResult {
	pair := pv.Pair
	log := e.logger.With("pair", pair.String())
	res := model.TradeResult{Pair: pair, Outcome: model.OutcomeSkipped}
	skip := func(err error) model.TradeResult {
		res.Reason = err.Error()
		if errors.Is(err, exchange.ErrVenueUnavailable) {
			log.Warn("pair skipped", "reason", res.Reason)
		} else {
			log.Info("pair skipped", "reason", res.Reason)
		}
		return res
	}

	if err := checkQuote(pair); err != nil {
		return skip(err)
	}

	clients := make([]exchange.ExchangeClient, 0, len(pv.Venues))
	for _, v := range pv.Venues {
		if c, ok := e.clients[v]; ok {
			clients = append(clients, c)
		}
	}
	observations, failed := e.loader.LoadAll(ctx, clients, pair)
	for venue, err := range failed {
		if errors.Is(err, ErrEmptyOrderBook) {
			log.Info("no quotes", "venue", venue, "error", err)
		} else {
			log.Warn("order book unavailable", "venue", venue, "error", err)
		}
	}
	for _, o := range observations {
		log.Debug("order book",
			"venue", o.Venue,
			"bids", model.FormatLevels(o.Bids),
			"asks", model.FormatLevels(o.Asks),
			"best_bid", o.BestBid, "best_bid_size", o.BestBidSize,
			"best_ask", o.BestAsk, "best_ask_size", o.BestAskSize,
		)
		if err := e.repo.LogObservation(ctx, o); err != nil {
			log.Error("Failed to log observation", "venue", o.Venue, "error", err)
		}
	}

	a := e.cfg.Arbitrage
	sp, err := FindSpread(pair, observations, a.SellVenues, a.BuyVenues)
	if err != nil {
		return skip(err)
	}
	res.Spread = &sp
	above := sp.SpreadPercent >= a.MinSpreadPercent
	log.Info("spread found",
		"sell_venue", sp.SellVenue, "sell_price", sp.SellPrice, "sell_size", sp.SellSize,
		"buy_venue", sp.BuyVenue, "buy_price", sp.BuyPrice, "buy_size", sp.BuySize,
		"spread_percent", sp.SpreadPercent, "above_threshold", above,
	)
	if !above {
		return skip(fmt.Errorf("spread %.4f%% below %.4f%%", sp.SpreadPercent, a.MinSpreadPercent))
	}
	if !a.Enabled {
		return skip(errors.New("execution disabled, observing only"))
	}

	minNotional, maxNotional, err := e.rates.NotionalBounds(ctx, pair, a.MinNotional, a.MaxNotional)
	if err != nil {
		return skip(err)
	}

	seller, buyer := e.clients[sp.SellVenue], e.clients[sp.BuyVenue]

	e.execMu.Lock()
	defer e.execMu.Unlock()

	sellBefore, buyBefore, err := FetchBalances(ctx, e.balances, seller, buyer)
	if err != nil {
		return skip(err)
	}
	intent, err := e.sizer.Size(sp, minNotional, maxNotional, sellBefore, buyBefore)
	if err != nil {
		return skip(err)
	}
	intent.ID = e.newID()
	res.Intent = &intent
	log = log.With("trade_id", intent.ID)
	log.Info("executing trade",
		"amount", intent.Amount, "min_amount", intent.MinAmount,
		"sell_venue", intent.SellVenue, "sell_price", intent.SellPrice,
		"buy_venue", intent.BuyVenue, "buy_price", intent.BuyPrice,
	)

	sellLeg, buyLeg := e.executor.Execute(ctx, seller, buyer, intent)
	res.SellLeg, res.BuyLeg = &sellLeg, &buyLeg

	rec := e.reconciler.Reconcile(ctx, seller, buyer, intent, sellBefore, buyBefore, sellLeg.OK() || buyLeg.OK())
	res.BaseDiff, res.QuoteDiff, res.Checks = rec.BaseDiff, rec.QuoteDiff, rec.Checks

	switch {
	case rec.Accepted:
		res.Outcome = model.OutcomeProfitable
		e.reportGain(ctx, log, intent, rec)
	case !sellLeg.OK() && !buyLeg.OK():
		res.Outcome = model.OutcomeUnconfirmed
		res.Reason = "both legs failed"
		log.Error("trade failed on both legs", "sell_error", sellLeg.Err, "buy_error", buyLeg.Err,
			"base_diff", rec.BaseDiff, "quote_diff", rec.QuoteDiff)
	default:
		res.Outcome = model.OutcomeUnconfirmed
		res.Reason = ErrUnconfirmedPortfolio.Error()
		if rec.Err != nil {
			res.Reason = fmt.Sprintf("%s: %v", ErrUnconfirmedPortfolio, rec.Err)
		}
		log.Warn("trade unconfirmed", "checks", rec.Checks, "base_diff", rec.BaseDiff, "quote_diff", rec.QuoteDiff,
			"sell_ok", sellLeg.OK(), "buy_ok", buyLeg.OK())
	}

	if record, ok := model.NewTradeRecord(res, e.now()); ok {
		if err := e.repo.LogTrade(ctx, record); err != nil {
			log.Error("Failed to log trade", "error", err)
		}
	}
	return res
}

// reportGain logs the realized quote gain, as a share of the traded notional and, when a
// rate is available, in the portfolio reference currency.
func (e *ArbitrageEngine) reportGain(ctx context.Context, log *slog.Logger, intent model.TradeIntent, rec Reconciliation) {
	attrs := []any{
		"base_diff", rec.BaseDiff,
		"quote_diff", rec.QuoteDiff,
		"gain_percent", 100 * rec.QuoteDiff / (intent.Amount * intent.BuyPrice),
		"checks", rec.Checks,
	}
	if ref := e.cfg.Portfolio.ReferenceCurrency; ref != "" {
		if rate, err := e.rates.Rate(ctx, intent.Pair.Quote, ref); err == nil {
			attrs = append(attrs, "reference", ref, "gain_reference", rec.QuoteDiff*rate)
		} else {
			log.Debug("no reference rate for gain", "reference", ref, "error", err)
		}
	}
	log.Info("trade executed", attrs...)
}
