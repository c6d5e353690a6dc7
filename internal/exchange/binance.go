package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gbinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"crossarb/internal/config"
	"crossarb/internal/model"
)

const binanceDepthLimit = 20

// BinanceClient implements the ExchangeClient interface for Binance spot.
type BinanceClient struct {
	logger *slog.Logger
	client *gbinance.Client
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *slog.Logger, cfg config.ExchangeConfig) *BinanceClient {
	c := gbinance.NewClient(cfg.APIKey, cfg.APISecret)
	c.HTTPClient = &http.Client{Timeout: 7 * time.Second}
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &BinanceClient{
		logger: logger.With("venue", "binance"),
		client: c,
	}
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

// classify turns go-binance errors into the package taxonomy. API errors on order
// endpoints are rejections; everything else is treated as the venue being unavailable.
func (b *BinanceClient) classify(err error, order bool) error {
	var apiErr *common.APIError
	if order && errors.As(err, &apiErr) {
		return &OrderRejectedError{Venue: b.GetName(), Reason: fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)}
	}
	return unavailable(b.GetName(), err)
}

func (b *BinanceClient) Markets(ctx context.Context) ([]model.Pair, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, b.classify(err, false)
	}
	pairs := make([]model.Pair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, model.Pair{Base: s.BaseAsset, Quote: s.QuoteAsset})
	}
	return pairs, nil
}

func (b *BinanceClient) FetchOrderBook(ctx context.Context, pair model.Pair) (model.OrderBook, error) {
	depth, err := b.client.NewDepthService().Symbol(concatSymbol(pair)).Limit(binanceDepthLimit).Do(ctx)
	if err != nil {
		return model.OrderBook{}, b.classify(err, false)
	}
	ob := model.OrderBook{Venue: b.GetName(), Pair: pair, Timestamp: time.Now()}
	for _, bid := range depth.Bids {
		if lvl, ok := parseLevel(bid.Price, bid.Quantity); ok {
			ob.Bids = append(ob.Bids, lvl)
		}
	}
	for _, ask := range depth.Asks {
		if lvl, ok := parseLevel(ask.Price, ask.Quantity); ok {
			ob.Asks = append(ob.Asks, lvl)
		}
	}
	return ob, nil
}

func (b *BinanceClient) FetchBalance(ctx context.Context) (model.BalanceSnapshot, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return model.BalanceSnapshot{}, b.classify(err, false)
	}
	snap := model.BalanceSnapshot{Venue: b.GetName(), Taken: time.Now(), Totals: make(map[string]float64, len(acct.Balances))}
	for _, bal := range acct.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		if total := free + locked; total > 0 {
			snap.Totals[bal.Asset] = total
		}
	}
	return snap, nil
}

func (b *BinanceClient) CreateLimitSellOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return b.createLimitOrder(ctx, pair, gbinance.SideTypeSell, amount, price)
}

func (b *BinanceClient) CreateLimitBuyOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return b.createLimitOrder(ctx, pair, gbinance.SideTypeBuy, amount, price)
}

func (b *BinanceClient) createLimitOrder(ctx context.Context, pair model.Pair, side gbinance.SideType, amount, price float64) (model.OrderAck, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(concatSymbol(pair)).
		Side(side).
		Type(gbinance.OrderTypeLimit).
		TimeInForce(gbinance.TimeInForceTypeGTC).
		Quantity(formatNumber(amount)).
		Price(formatNumber(price)).
		Do(ctx)
	if err != nil {
		return model.OrderAck{}, b.classify(err, true)
	}
	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	s := model.SideBuy
	if side == gbinance.SideTypeSell {
		s = model.SideSell
	}
	return model.OrderAck{
		Venue:    b.GetName(),
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		Status:   string(res.Status),
		Side:     s,
		Pair:     pair,
		Amount:   amount,
		Price:    price,
		Executed: executed,
	}, nil
}

func (b *BinanceClient) FetchTicker(ctx context.Context, pair model.Pair) (model.Ticker, error) {
	tickers, err := b.client.NewListBookTickersService().Symbol(concatSymbol(pair)).Do(ctx)
	if err != nil {
		return model.Ticker{}, b.classify(err, false)
	}
	if len(tickers) == 0 {
		return model.Ticker{}, unavailable(b.GetName(), fmt.Errorf("no book ticker for %s", pair))
	}
	bid, _ := strconv.ParseFloat(tickers[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(tickers[0].AskPrice, 64)
	return model.Ticker{Venue: b.GetName(), Pair: pair, Bid: bid, Ask: ask, Timestamp: time.Now()}, nil
}

// parseLevel parses a string level, dropping malformed or non-positive entries.
func parseLevel(price, qty string) (model.PriceLevel, bool) {
	p, err1 := strconv.ParseFloat(price, 64)
	q, err2 := strconv.ParseFloat(qty, 64)
	if err1 != nil || err2 != nil || p <= 0 || q <= 0 {
		return model.PriceLevel{}, false
	}
	return model.PriceLevel{Price: p, Size: q}, true
}
