package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"crossarb/internal/config"
	"crossarb/internal/model"
)

// wallexQuotes are the quote currencies Wallex lists, longest first so USDT wins over a USD suffix.
var wallexQuotes = []string{"USDT", "TMN", "BTC", "ETH"}

// WallexClient implements the ExchangeClient interface for Wallex.
// The SDK takes no context, so cancellation is only checked before each call.
type WallexClient struct {
	logger *slog.Logger
	client *wallex.Client
}

// NewWallexClient creates a new WallexClient.
func NewWallexClient(logger *slog.Logger, cfg config.ExchangeConfig) *WallexClient {
	// wallex-go v0.1.1 ignores ClientOptions.APIKey and only reads WALLEX_API_KEY
	if cfg.APIKey != "" {
		_ = os.Setenv("WALLEX_API_KEY", cfg.APIKey)
	}
	httpClient := &http.Client{Timeout: 7 * time.Second}
	if cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			// the SDK has a fixed host, so requests are redirected at the transport
			httpClient.Transport = &hostRewriter{target: u, next: http.DefaultTransport}
		} else {
			logger.Warn("ignoring invalid wallex base_url", "base_url", cfg.BaseURL, "error", err)
		}
	}
	return &WallexClient{
		logger: logger.With("venue", "wallex"),
		client: wallex.New(wallex.ClientOptions{APIKey: cfg.APIKey, HTTPClient: httpClient}),
	}
}

// hostRewriter sends every request to target's scheme and host, keeping path and query.
type hostRewriter struct {
	target *url.URL
	next   http.RoundTripper
}

func (h *hostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = h.target.Scheme
	r.URL.Host = h.target.Host
	r.Host = h.target.Host
	return h.next.RoundTrip(r)
}

// classify maps SDK errors onto the package taxonomy. A 400 on the order endpoint
// is the venue refusing the order; everything else is treated as unavailability.
func (w *WallexClient) classify(err error, order bool) error {
	if order && errors.Is(err, wallex.ErrBadRequest) {
		return &OrderRejectedError{Venue: w.GetName(), Reason: err.Error()}
	}
	return unavailable(w.GetName(), err)
}

func (w *WallexClient) GetName() string {
	return "wallex"
}

func (w *WallexClient) Markets(ctx context.Context) ([]model.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markets, err := w.client.Markets()
	if err != nil {
		return nil, w.classify(err, false)
	}
	pairs := make([]model.Pair, 0, len(markets))
	for _, m := range markets {
		if m == nil {
			continue
		}
		if m.BaseAsset != "" && m.QuoteAsset != "" {
			pairs = append(pairs, model.Pair{Base: strings.ToUpper(m.BaseAsset), Quote: strings.ToUpper(m.QuoteAsset)})
			continue
		}
		if p, ok := splitConcatSymbol(m.Symbol, wallexQuotes); ok {
			pairs = append(pairs, p)
		}
	}
	// the SDK returns markets in map order
	slices.SortFunc(pairs, func(a, b model.Pair) int { return strings.Compare(a.String(), b.String()) })
	return pairs, nil
}

func (w *WallexClient) FetchOrderBook(ctx context.Context, pair model.Pair) (model.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderBook{}, err
	}
	asks, bids, err := w.client.MarketOrders(concatSymbol(pair))
	if err != nil {
		return model.OrderBook{}, w.classify(err, false)
	}
	ob := model.OrderBook{Venue: w.GetName(), Pair: pair, Timestamp: time.Now()}
	for _, b := range bids {
		if b == nil {
			continue
		}
		if lvl, ok := parseLevel(string(b.Price), string(b.Quantity)); ok {
			ob.Bids = append(ob.Bids, lvl)
		}
	}
	for _, a := range asks {
		if a == nil {
			continue
		}
		if lvl, ok := parseLevel(string(a.Price), string(a.Quantity)); ok {
			ob.Asks = append(ob.Asks, lvl)
		}
	}
	return ob, nil
}

func (w *WallexClient) FetchBalance(ctx context.Context) (model.BalanceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.BalanceSnapshot{}, err
	}
	balances, err := w.client.Balances()
	if err != nil {
		return model.BalanceSnapshot{}, w.classify(err, false)
	}
	snap := model.BalanceSnapshot{Venue: w.GetName(), Taken: time.Now(), Totals: make(map[string]float64, len(balances))}
	for asset, b := range balances {
		if b == nil {
			continue
		}
		available, _ := strconv.ParseFloat(string(b.Value), 64)
		locked, _ := strconv.ParseFloat(string(b.Locked), 64)
		if total := available + locked; total > 0 {
			snap.Totals[strings.ToUpper(asset)] = total
		}
	}
	return snap, nil
}

func (w *WallexClient) CreateLimitSellOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return w.placeOrder(ctx, pair, model.SideSell, amount, price)
}

func (w *WallexClient) CreateLimitBuyOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return w.placeOrder(ctx, pair, model.SideBuy, amount, price)
}

func (w *WallexClient) placeOrder(ctx context.Context, pair model.Pair, side model.Side, amount, price float64) (model.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderAck{}, err
	}
	params := &wallex.OrderParams{
		Symbol:   concatSymbol(pair),
		Type:     "LIMIT",
		Side:     strings.ToUpper(string(side)),
		Price:    wallex.Number(formatNumber(price)),
		Quantity: wallex.Number(formatNumber(amount)),
	}
	resp, err := w.client.PlaceOrder(params)
	if err != nil {
		return model.OrderAck{}, w.classify(err, true)
	}
	if resp == nil {
		return model.OrderAck{}, unavailable(w.GetName(), errors.New("empty order response"))
	}
	return model.OrderAck{
		Venue:    w.GetName(),
		OrderID:  resp.ClientOrderID,
		Status:   strings.ToUpper(resp.Status),
		Side:     side,
		Pair:     pair,
		Amount:   amount,
		Price:    price,
		Executed: numberValue(resp.ExecutedQty),
	}, nil
}

func (w *WallexClient) FetchTicker(ctx context.Context, pair model.Pair) (model.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return model.Ticker{}, err
	}
	markets, err := w.client.Markets()
	if err != nil {
		return model.Ticker{}, w.classify(err, false)
	}
	symbol := concatSymbol(pair)
	for _, m := range markets {
		if m == nil || !strings.EqualFold(m.Symbol, symbol) {
			continue
		}
		bid, _ := strconv.ParseFloat(string(m.Stats.BidPrice), 64)
		ask, _ := strconv.ParseFloat(string(m.Stats.AskPrice), 64)
		return model.Ticker{Venue: w.GetName(), Pair: pair, Bid: bid, Ask: ask, Timestamp: time.Now()}, nil
	}
	return model.Ticker{}, unavailable(w.GetName(), fmt.Errorf("market %s not listed", symbol))
}

func numberValue(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(string(*n), 64)
	return v
}
