package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/microtrend-backend/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *BinanceClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewBinanceClient(BinanceOptions{
		BaseURL:        srv.URL,
		APIKey:         "key",
		APISecret:      "secret",
		PricePrecision: 2,
		QtyPrecision:   3,
	})
	c.retry.BaseDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestSign_KnownVector(t *testing.T) {
	// Example from the Binance API documentation.
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Sign(secret, payload))
}

func TestCandles_Parse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))
		w.Write([]byte(`[
			[1700000000000,"30000.1","30010.0","29990.5","30005.2","12.5",1700000299999,"0",10,"0","0","0"],
			[1700000300000,"30005.2","30020.0","30000.0","30015.0","8.25",1700000599999,"0",7,"0","0","0"]
		]`))
	})

	candles, err := c.Candles(context.Background(), "BTCUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, models.Candle{
		OpenTime: 1700000000000, Open: 30000.1, High: 30010.0, Low: 29990.5, Close: 30005.2, Volume: 12.5,
	}, candles[0])
	assert.Equal(t, 30015.0, candles[1].Close)
}

func TestCandles_ShortRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"1","2"]]`))
	})
	_, err := c.Candles(context.Background(), "BTCUSDT", "5m", 1)
	require.Error(t, err)
}

func TestMarkPriceAndFunding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"30001.50","lastFundingRate":"0.00010000"}`))
	})

	price, err := c.MarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 30001.5, price)

	rate, err := c.FundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, rate, 1e-12)
}

func TestMarkPrice_Invalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"0","lastFundingRate":"0"}`))
	})
	_, err := c.MarkPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
}

func TestSignedRequest_HeadersAndSignature(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/balance", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		require.Positive(t, idx)
		assert.Equal(t, Sign("secret", raw[:idx]), raw[idx+len("&signature="):])
		assert.Equal(t, "1700000000000", r.URL.Query().Get("timestamp"))
		assert.Equal(t, "5000", r.URL.Query().Get("recvWindow"))

		w.Write([]byte(`[{"asset":"BNB","availableBalance":"1"},{"asset":"USDT","availableBalance":"123.45"}]`))
	})

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123.45, bal)
}

func TestSignedRequest_NoCredentials(t *testing.T) {
	c := NewBinanceClient(BinanceOptions{BaseURL: "http://localhost:1"})
	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestPositionAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"-0.004"},{"symbol":"ETHUSDT","positionAmt":"1"}]`))
	})
	amt, err := c.PositionAmount(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, -0.004, amt)
}

func TestPlaceMarketOrder_FormatsQuantity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "0.004", q.Get("quantity"))
		assert.Equal(t, "true", q.Get("reduceOnly"))
		w.Write([]byte(`{"orderId":42,"status":"FILLED","type":"MARKET","side":"SELL"}`))
	})

	ack, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", models.Sell, 0.0041, true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ack.OrderID)
}

func TestPlaceExitOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "STOP_MARKET", q.Get("type"))
		assert.Equal(t, "29925.00", q.Get("stopPrice"))
		assert.Equal(t, "true", q.Get("closePosition"))
		w.Write([]byte(`{"orderId":7}`))
	})
	_, err := c.PlaceExitOrder(context.Background(), "BTCUSDT", models.Sell, "STOP_MARKET", 29925)
	require.NoError(t, err)
}

func TestOrder_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	_, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", models.Buy, 1, false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -2019, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOrder_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", models.Buy, 1, false)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublic_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"markPrice":"100","lastFundingRate":"0"}`))
	})

	price, err := c.MarkPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)
	assert.Equal(t, int32(2), calls.Load())
}
