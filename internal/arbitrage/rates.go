package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crossarb/internal/cache"
	"crossarb/internal/exchange"
	"crossarb/internal/model"
)

// NotionalCurrency is the unit min and max notional are configured in.
const NotionalCurrency = "BTC"

// supportedQuotes are the quote currencies notional bounds can be priced in.
var supportedQuotes = []string{"BTC", "ETH"}

// RateSource prices one currency in another from venue tickers. Successful lookups
// are cached and the cached value is used when every venue fails.
type RateSource struct {
	logger  *slog.Logger
	clients []exchange.ExchangeClient
	cache   cache.RateCache
	now     func() time.Time
}

// NewRateSource asks clients in order. A nil cache keeps rates in memory.
func NewRateSource(logger *slog.Logger, clients []exchange.ExchangeClient, rc cache.RateCache) *RateSource {
	if rc == nil {
		rc = cache.NewMemoryRateCache()
	}
	return &RateSource{
		logger:  logger.With("component", "rates"),
		clients: clients,
		cache:   rc,
		now:     time.Now,
	}
}

// Rate returns the price of one unit of from in to. It tries the direct pair on every
// venue, then the inverted pair, then the cache.
func (r *RateSource) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	direct := model.Pair{Base: from, Quote: to}
	inverse := model.Pair{Base: to, Quote: from}

	var errs []error
	for _, c := range r.clients {
		v, err := r.mid(ctx, c, direct)
		if err == nil {
			r.store(ctx, direct, v)
			return v, nil
		}
		errs = append(errs, err)

		v, err = r.mid(ctx, c, inverse)
		if err == nil {
			r.store(ctx, direct, 1/v)
			return 1 / v, nil
		}
		errs = append(errs, err)
	}

	cached, err := r.cache.Get(ctx, direct)
	if err == nil && cached.Value > 0 {
		r.logger.Warn("using cached rate", "pair", direct.String(), "rate", cached.Value, "age", r.now().Sub(cached.At))
		return cached.Value, nil
	}
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		errs = append(errs, err)
	}
	return 0, fmt.Errorf("rate %s: %w", direct, errors.Join(errs...))
}

func (r *RateSource) mid(ctx context.Context, c exchange.ExchangeClient, pair model.Pair) (float64, error) {
	t, err := c.FetchTicker(ctx, pair)
	if err != nil {
		return 0, err
	}
	if m := t.Mid(); m > 0 {
		return m, nil
	}
	return 0, fmt.Errorf("%s %s: %w", c.GetName(), pair, ErrNoQuote)
}

func (r *RateSource) store(ctx context.Context, pair model.Pair, v float64) {
	if err := r.cache.Set(ctx, pair, cache.Rate{Value: v, At: r.now()}); err != nil {
		r.logger.Warn("failed to cache rate", "pair", pair.String(), "error", err)
	}
}

// NotionalBounds converts min and max notional from NotionalCurrency into the pair's
// quote currency. Pairs quoted outside supportedQuotes fail with ErrUnsupportedQuote.
func (r *RateSource) NotionalBounds(ctx context.Context, pair model.Pair, minNotional, maxNotional float64) (float64, float64, error) {
	if err := checkQuote(pair); err != nil {
		return 0, 0, err
	}
	if pair.Quote == NotionalCurrency {
		return minNotional, maxNotional, nil
	}
	// price of one quote unit in BTC
	rate, err := r.Rate(ctx, pair.Quote, NotionalCurrency)
	if err != nil {
		return 0, 0, fmt.Errorf("notional for %s: %w", pair, err)
	}
	return minNotional / rate, maxNotional / rate, nil
}

func checkQuote(pair model.Pair) error {
	for _, q := range supportedQuotes {
		if pair.Quote == q {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", pair, ErrUnsupportedQuote)
}
