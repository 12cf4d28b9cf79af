package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/httputil"
	"github.com/kjannette/microtrend-backend/internal/metrics"
	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/precision"
)

var ErrNoCredentials = errors.New("binance API key and secret are not configured")

// APIError is an error payload returned by the futures API.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance HTTP %d: code %d: %s", e.Status, e.Code, e.Msg)
}

type BinanceOptions struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	RecvWindow     time.Duration
	PricePrecision int32
	QtyPrecision   int32
	Logger         *zap.Logger
}

// BinanceClient talks to the USDⓈ-M futures REST API.
type BinanceClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	pricePrec  int32
	qtyPrec    int32
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        *zap.Logger
	now        func() time.Time
}

func NewBinanceClient(opts BinanceOptions) *BinanceClient {
	if opts.RecvWindow <= 0 {
		opts.RecvWindow = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("binance")
	return &BinanceClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		recvWindow: opts.RecvWindow,
		pricePrec:  opts.PricePrecision,
		qtyPrec:    opts.QtyPrecision,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Logger:      log,
		},
		log: log,
		now: time.Now,
	}
}

func (c *BinanceClient) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// --- market data ---

// Candles returns up to limit klines, oldest first.
func (c *BinanceClient) Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.public(ctx, "/fapi/v1/klines", q, &rows); err != nil {
		return nil, err
	}

	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}
		var k models.Candle
		if err := json.Unmarshal(row[0], &k.OpenTime); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		fields := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
		for j, dst := range fields {
			v, err := decimalField(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			*dst = v
		}
		out = append(out, k)
	}
	return out, nil
}

type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

func (c *BinanceClient) premium(ctx context.Context, symbol string) (premiumIndex, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var p premiumIndex
	err := c.public(ctx, "/fapi/v1/premiumIndex", q, &p)
	return p, err
}

func (c *BinanceClient) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	p, err := c.premium(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(p.MarkPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid mark price %q for %s", p.MarkPrice, symbol)
	}
	return price, nil
}

func (c *BinanceClient) FundingRate(ctx context.Context, symbol string) (float64, error) {
	p, err := c.premium(ctx, symbol)
	if err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(p.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid funding rate %q for %s", p.LastFundingRate, symbol)
	}
	return rate, nil
}

// --- account ---

// Balance returns the available USDT margin balance.
func (c *BinanceClient) Balance(ctx context.Context) (float64, error) {
	var assets []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := c.signed(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{}, c.retry, &assets); err != nil {
		return 0, err
	}
	for _, a := range assets {
		if a.Asset == "USDT" {
			return strconv.ParseFloat(a.AvailableBalance, 64)
		}
	}
	return 0, nil
}

// PositionAmount returns the signed open position size for symbol:
// positive long, negative short, 0 flat.
func (c *BinanceClient) PositionAmount(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var positions []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
	}
	if err := c.signed(ctx, http.MethodGet, "/fapi/v2/positionRisk", q, c.retry, &positions); err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		amt, err := strconv.ParseFloat(p.PositionAmt, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid position amount %q: %w", p.PositionAmt, err)
		}
		total += amt
	}
	return total, nil
}

func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	return c.signed(ctx, http.MethodPost, "/fapi/v1/leverage", q, httputil.NoRetry, nil)
}

// --- orders ---

type OrderAck struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
}

// PlaceMarketOrder sends a MARKET order. Orders are never retried.
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty float64, reduceOnly bool) (OrderAck, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", string(side))
	q.Set("type", "MARKET")
	q.Set("quantity", precision.Format(qty, c.qtyPrec))
	if reduceOnly {
		q.Set("reduceOnly", "true")
	}

	var ack OrderAck
	err := c.signed(ctx, http.MethodPost, "/fapi/v1/order", q, httputil.NoRetry, &ack)
	return ack, err
}

// PlaceExitOrder attaches a STOP_MARKET or TAKE_PROFIT_MARKET order that
// closes the whole position when stopPrice trades.
func (c *BinanceClient) PlaceExitOrder(ctx context.Context, symbol string, side models.Side, orderType string, stopPrice float64) (OrderAck, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", string(side))
	q.Set("type", orderType)
	q.Set("stopPrice", precision.Format(stopPrice, c.pricePrec))
	q.Set("closePosition", "true")
	q.Set("workingType", "MARK_PRICE")

	var ack OrderAck
	err := c.signed(ctx, http.MethodPost, "/fapi/v1/order", q, httputil.NoRetry, &ack)
	return ack, err
}

// CancelAllOrders removes resting exit orders once a position is closed.
func (c *BinanceClient) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	return c.signed(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", q, httputil.NoRetry, nil)
}

// --- transport ---

func (c *BinanceClient) public(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q.Encode(), false, c.retry, out)
}

func (c *BinanceClient) signed(ctx context.Context, method, path string, q url.Values, retry httputil.RetryConfig, out any) error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	query := q.Encode()
	query += "&signature=" + Sign(c.apiSecret, query)
	return c.do(ctx, method, path, query, true, retry, out)
}

func (c *BinanceClient) do(ctx context.Context, method, path, query string, auth bool, retry httputil.RetryConfig, out any) error {
	resp, err := httputil.Do(ctx, c.httpClient, retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query, nil)
		if err != nil {
			return nil, err
		}
		if auth {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("binance %s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ExchangeRequests.WithLabelValues(path, "rejected").Inc()
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	metrics.ExchangeRequests.WithLabelValues(path, "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance %s %s: decode: %w", method, path, err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed with secret.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func decimalField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var f float64
		if err2 := json.Unmarshal(raw, &f); err2 != nil {
			return 0, err
		}
		return f, nil
	}
	return strconv.ParseFloat(s, 64)
}
