// Package api provides the Binance REST client used by the trading engine:
// price snapshots, kline history, account balances and order placement.
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	sdkhttp "github.com/betbot/gogale/pkg/sdk/http"
	"github.com/betbot/gogale/pkg/ratelimit"
)

const defaultBaseURL = "https://api.binance.com"

// BinanceClient talks to the Binance spot REST API.
type BinanceClient struct {
	http      *sdkhttp.Client
	apiKey    string
	apiSecret string
	limiter   ratelimit.RateLimiter
}

// NewBinanceClient creates a client. Credentials may be empty for
// public-data-only usage (ping, ticker, klines).
func NewBinanceClient(apiKey, apiSecret string) *BinanceClient {
	return NewBinanceClientWithBaseURL(defaultBaseURL, apiKey, apiSecret)
}

// NewBinanceClientWithBaseURL creates a client against a custom endpoint
// (testnet, local stub).
func NewBinanceClientWithBaseURL(baseURL, apiKey, apiSecret string) *BinanceClient {
	return &BinanceClient{
		http:      sdkhttp.NewClient(baseURL),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		// Binance allows 1200 request weight per minute; keep headroom.
		limiter: ratelimit.NewTokenBucket(600, 10),
	}
}

// Ping checks REST connectivity.
func (c *BinanceClient) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.http.DoRequest(ctx, http.MethodGet, "/api/v3/ping", nil, nil)
	return err
}

// TickerPrice returns the latest traded price for one symbol.
func (c *BinanceClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	_, err := c.http.DoRequest(ctx, http.MethodGet, "/api/v3/ticker/price",
		&sdkhttp.RequestOptions{Params: map[string]string{"symbol": symbol}}, &out)
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse ticker price %q", out.Price)
	}
	return price, nil
}

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// Klines fetches candlestick data, newest last. limit is capped at 1000.
func (c *BinanceClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Binance returns klines as array of arrays
	var raw [][]any
	_, err := c.http.DoRequest(ctx, http.MethodGet, "/api/v3/klines",
		&sdkhttp.RequestOptions{Params: map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}}, &raw)
	if err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, r := range raw {
		if len(r) < 7 {
			continue
		}
		k := Kline{}
		if f, ok := r[0].(float64); ok {
			k.OpenTime = int64(f)
		}
		if f, ok := r[6].(float64); ok {
			k.CloseTime = int64(f)
		}
		k.Open = parseFloatField(r[1])
		k.High = parseFloatField(r[2])
		k.Low = parseFloatField(r[3])
		k.Close = parseFloatField(r[4])
		k.Volume = parseFloatField(r[5])
		klines = append(klines, k)
	}
	return klines, nil
}

// Balance is one asset balance in the spot account.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountBalances returns the spot account balances (signed endpoint).
func (c *BinanceClient) AccountBalances(ctx context.Context) ([]Balance, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, errors.New("binance: credentials not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out struct {
		Balances []Balance `json:"balances"`
	}
	endpoint := "/api/v3/account?" + c.sign(map[string]string{})
	_, err := c.http.DoRequest(ctx, http.MethodGet, endpoint,
		&sdkhttp.RequestOptions{Headers: c.authHeaders()}, &out)
	if err != nil {
		return nil, err
	}
	return out.Balances, nil
}

// FreeBalance returns the free amount of one asset as a float.
func (c *BinanceClient) FreeBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := c.AccountBalances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Asset == asset {
			f, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "parse balance %q", b.Free)
			}
			return f, nil
		}
	}
	return 0, nil
}

// OrderResult is the acknowledged order returned by the exchange.
type OrderResult struct {
	OrderID  string
	Quantity float64
}

// PlaceMarketOrder submits a market order spending quoteQty of the quote
// asset (signed endpoint).
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quoteQty float64) (*OrderResult, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, errors.New("binance: credentials not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		Status      string `json:"status"`
	}
	endpoint := "/api/v3/order?" + c.sign(map[string]string{
		"symbol":        symbol,
		"side":          side,
		"type":          "MARKET",
		"quoteOrderQty": strconv.FormatFloat(quoteQty, 'f', -1, 64),
	})
	_, err := c.http.DoRequest(ctx, http.MethodPost, endpoint,
		&sdkhttp.RequestOptions{Headers: c.authHeaders()}, &out)
	if err != nil {
		return nil, err
	}

	qty, _ := strconv.ParseFloat(out.ExecutedQty, 64)
	return &OrderResult{
		OrderID:  fmt.Sprintf("%d", out.OrderID),
		Quantity: qty,
	}, nil
}

func (c *BinanceClient) authHeaders() map[string]string {
	return map[string]string{"X-MBX-APIKEY": c.apiKey}
}

// sign builds the signed query string: sorted params + timestamp, HMAC-SHA256
// with the API secret appended as "signature".
func (c *BinanceClient) sign(params map[string]string) string {
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["recvWindow"] = "5000"

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Set(k, params[k])
	}
	payload := q.Encode()

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func parseFloatField(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
