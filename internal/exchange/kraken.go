package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"crossarb/internal/config"
	"crossarb/internal/model"
)

const (
	krakenRESTURL     = "https://api.kraken.com"
	krakenWSURL       = "wss://ws.kraken.com"
	krakenBookDepth   = 10
	krakenDialRetries = 3
	krakenReadTimeout = 10 * time.Second
)

// KrakenClient implements the ExchangeClient interface for Kraken.
// Public market data is taken as snapshots from the websocket feed; account
// and order endpoints use the signed REST API.
type KrakenClient struct {
	logger    *slog.Logger
	http      *http.Client
	restURL   string
	wsURL     string
	apiKey    string
	apiSecret string
	nonce     atomic.Int64
}

// NewKrakenClient creates a new KrakenClient.
func NewKrakenClient(logger *slog.Logger, cfg config.ExchangeConfig) *KrakenClient {
	k := &KrakenClient{
		logger:    logger.With("venue", "kraken"),
		http:      &http.Client{Timeout: 10 * time.Second},
		restURL:   krakenRESTURL,
		wsURL:     krakenWSURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		k.restURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.WSURL != "" {
		k.wsURL = cfg.WSURL
	}
	k.nonce.Store(time.Now().UnixMilli())
	return k
}

func (k *KrakenClient) GetName() string {
	return "kraken"
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

type krakenAssetPair struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Status  string `json:"status"`
}

func (k *KrakenClient) Markets(ctx context.Context) ([]model.Pair, error) {
	raw, err := k.public(ctx, "AssetPairs")
	if err != nil {
		return nil, err
	}
	var pairs map[string]krakenAssetPair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, unavailable(k.GetName(), fmt.Errorf("decode asset pairs: %w", err))
	}
	names := make([]string, 0, len(pairs))
	for name := range pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.Pair, 0, len(pairs))
	for _, name := range names {
		ap := pairs[name]
		if ap.Status != "" && ap.Status != "online" {
			continue
		}
		base, quote, ok := strings.Cut(ap.WSName, "/")
		if !ok {
			// dark-pool and legacy entries carry no websocket name
			continue
		}
		out = append(out, model.Pair{Base: krakenCurrency(base), Quote: krakenCurrency(quote)})
	}
	return out, nil
}

func (k *KrakenClient) FetchOrderBook(ctx context.Context, pair model.Pair) (model.OrderBook, error) {
	sub := map[string]interface{}{
		"name":  "book",
		"depth": krakenBookDepth,
	}
	payload, err := k.snapshot(ctx, pair, sub, "book")
	if err != nil {
		return model.OrderBook{}, err
	}
	var book struct {
		As [][]string `json:"as"`
		Bs [][]string `json:"bs"`
	}
	if err := json.Unmarshal(payload, &book); err != nil {
		return model.OrderBook{}, unavailable(k.GetName(), fmt.Errorf("decode book snapshot: %w", err))
	}
	ob := model.OrderBook{Venue: k.GetName(), Pair: pair, Timestamp: time.Now()}
	var newest float64
	for _, l := range book.Bs {
		if len(l) >= 2 {
			if lvl, ok := parseLevel(l[0], l[1]); ok {
				ob.Bids = append(ob.Bids, lvl)
			}
		}
		newest = max(newest, levelTime(l))
	}
	for _, l := range book.As {
		if len(l) >= 2 {
			if lvl, ok := parseLevel(l[0], l[1]); ok {
				ob.Asks = append(ob.Asks, lvl)
			}
		}
		newest = max(newest, levelTime(l))
	}
	if newest > 0 {
		sec := int64(newest)
		ob.Timestamp = time.Unix(sec, int64((newest-float64(sec))*1e9))
	}
	return ob, nil
}

func levelTime(l []string) float64 {
	if len(l) < 3 {
		return 0
	}
	ts, _ := strconv.ParseFloat(l[2], 64)
	return ts
}

func (k *KrakenClient) FetchTicker(ctx context.Context, pair model.Pair) (model.Ticker, error) {
	payload, err := k.snapshot(ctx, pair, map[string]interface{}{"name": "ticker"}, "ticker")
	if err != nil {
		return model.Ticker{}, err
	}
	var t struct {
		A []string `json:"a"`
		B []string `json:"b"`
	}
	if err := json.Unmarshal(payload, &t); err != nil {
		return model.Ticker{}, unavailable(k.GetName(), fmt.Errorf("decode ticker: %w", err))
	}
	tick := model.Ticker{Venue: k.GetName(), Pair: pair, Timestamp: time.Now()}
	if len(t.B) > 0 {
		tick.Bid, _ = strconv.ParseFloat(t.B[0], 64)
	}
	if len(t.A) > 0 {
		tick.Ask, _ = strconv.ParseFloat(t.A[0], 64)
	}
	return tick, nil
}

// snapshot subscribes to one channel for one pair and returns the payload of the
// first data message, closing the connection afterwards.
func (k *KrakenClient) snapshot(ctx context.Context, pair model.Pair, subscription map[string]interface{}, channel string) (json.RawMessage, error) {
	c, err := k.dial(ctx)
	if err != nil {
		return nil, unavailable(k.GetName(), err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	wsPair := krakenWSPair(pair)
	msg := map[string]interface{}{
		"event":        "subscribe",
		"pair":         []string{wsPair},
		"subscription": subscription,
	}
	if err := c.WriteJSON(msg); err != nil {
		return nil, unavailable(k.GetName(), fmt.Errorf("send subscription: %w", err))
	}

	deadline := time.Now().Add(krakenReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.SetReadDeadline(deadline)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, unavailable(k.GetName(), fmt.Errorf("read message: %w", err))
		}

		if len(message) > 0 && message[0] == '{' {
			var ev struct {
				Event        string `json:"event"`
				Status       string `json:"status"`
				ErrorMessage string `json:"errorMessage"`
			}
			if err := json.Unmarshal(message, &ev); err != nil {
				k.logger.Warn("KrakenClient: failed to parse event", "error", err)
				continue
			}
			if ev.Event == "subscriptionStatus" && ev.Status == "error" {
				return nil, unavailable(k.GetName(), fmt.Errorf("subscribe %s %s: %s", channel, wsPair, ev.ErrorMessage))
			}
			continue
		}

		// data messages are arrays: [channelID, payload, channelName, pair]
		var arr []json.RawMessage
		if err := json.Unmarshal(message, &arr); err != nil || len(arr) < 4 {
			continue
		}
		var name, p string
		if json.Unmarshal(arr[len(arr)-2], &name) != nil || json.Unmarshal(arr[len(arr)-1], &p) != nil {
			continue
		}
		if p != wsPair || !strings.HasPrefix(name, channel) {
			continue
		}
		return arr[1], nil
	}
}

// dial connects with capped exponential backoff.
func (k *KrakenClient) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := 250 * time.Millisecond
	var lastErr error
	for i := 0; i < krakenDialRetries; i++ {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, k.wsURL, nil)
		if err == nil {
			return c, nil
		}
		lastErr = err
		k.logger.Warn("KrakenClient: WebSocket connection failed", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}
	return nil, lastErr
}

func (k *KrakenClient) FetchBalance(ctx context.Context) (model.BalanceSnapshot, error) {
	raw, err := k.private(ctx, "Balance", url.Values{})
	if err != nil {
		return model.BalanceSnapshot{}, err
	}
	var balances map[string]string
	if err := json.Unmarshal(raw, &balances); err != nil {
		return model.BalanceSnapshot{}, unavailable(k.GetName(), fmt.Errorf("decode balance: %w", err))
	}
	snap := model.BalanceSnapshot{Venue: k.GetName(), Taken: time.Now(), Totals: make(map[string]float64, len(balances))}
	for code, v := range balances {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil || amount <= 0 {
			continue
		}
		// staked and held variants (ETH.F, DOT.S) are not spendable
		if strings.Contains(code, ".") {
			continue
		}
		snap.Totals[krakenCurrency(code)] += amount
	}
	return snap, nil
}

func (k *KrakenClient) CreateLimitSellOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return k.addOrder(ctx, pair, model.SideSell, amount, price)
}

func (k *KrakenClient) CreateLimitBuyOrder(ctx context.Context, pair model.Pair, amount, price float64) (model.OrderAck, error) {
	return k.addOrder(ctx, pair, model.SideBuy, amount, price)
}

func (k *KrakenClient) addOrder(ctx context.Context, pair model.Pair, side model.Side, amount, price float64) (model.OrderAck, error) {
	form := url.Values{}
	form.Set("pair", krakenCode(pair.Base)+krakenCode(pair.Quote))
	form.Set("type", string(side))
	form.Set("ordertype", "limit")
	form.Set("price", formatNumber(price))
	form.Set("volume", formatNumber(amount))

	raw, err := k.private(ctx, "AddOrder", form)
	if err != nil {
		return model.OrderAck{}, err
	}
	var res struct {
		TxID []string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || len(res.TxID) == 0 {
		return model.OrderAck{}, unavailable(k.GetName(), fmt.Errorf("decode order response: %s", raw))
	}
	return model.OrderAck{
		Venue:   k.GetName(),
		OrderID: res.TxID[0],
		Status:  "open",
		Side:    side,
		Pair:    pair,
		Amount:  amount,
		Price:   price,
	}, nil
}

func (k *KrakenClient) public(ctx context.Context, method string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.restURL+"/0/public/"+method, nil)
	if err != nil {
		return nil, err
	}
	return k.do(req, false)
}

func (k *KrakenClient) private(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	if k.apiKey == "" || k.apiSecret == "" {
		return nil, unavailable(k.GetName(), errors.New("missing API credentials"))
	}
	path := "/0/private/" + method
	form.Set("nonce", strconv.FormatInt(k.nonce.Add(1), 10))
	body := form.Encode()

	sig, err := krakenSign(path, form.Get("nonce"), body, k.apiSecret)
	if err != nil {
		return nil, unavailable(k.GetName(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.restURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", sig)
	return k.do(req, method == "AddOrder")
}

func (k *KrakenClient) do(req *http.Request, order bool) (json.RawMessage, error) {
	resp, err := k.http.Do(req)
	if err != nil {
		return nil, unavailable(k.GetName(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(k.GetName(), err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, unavailable(k.GetName(), fmt.Errorf("http status %d", resp.StatusCode))
	}
	var kr krakenResponse
	if err := json.Unmarshal(data, &kr); err != nil {
		return nil, unavailable(k.GetName(), fmt.Errorf("decode response: %w", err))
	}
	if len(kr.Error) > 0 {
		reason := strings.Join(kr.Error, "; ")
		// EOrder and EGeneral:Invalid arguments are refusals of this order; the rest are transport or account state.
		if order && (strings.HasPrefix(reason, "EOrder:") || strings.HasPrefix(reason, "EGeneral:Invalid")) {
			return nil, &OrderRejectedError{Venue: k.GetName(), Reason: reason}
		}
		return nil, unavailable(k.GetName(), errors.New(reason))
	}
	return kr.Result, nil
}

// krakenSign computes API-Sign: HMAC-SHA512 of path + SHA256(nonce + body), keyed by the decoded secret.
func krakenSign(path, nonce, body, secret string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	sha := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
