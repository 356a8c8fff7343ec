// Package binance is the exchange adapter: the only component that speaks
// HTTP/WebSocket to Binance Futures. Adapted from the teacher's
// FuturesClientImpl + FuturesClient interface + RateLimiter, trimmed to
// the operations the trading core actually drives and rebuilt on
// golang.org/x/time/rate instead of the teacher's hand-rolled weight
// tracker.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tradecore/internal/apperrors"
	"tradecore/internal/logging"
	"tradecore/internal/model"
)

const (
	// FuturesBaseURL is the production Binance Futures API URL.
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL.
	FuturesTestnetURL = "https://testnet.binancefuture.com"

	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// Side mirrors the exchange's order side vocabulary.
type Side string

const (
	OrderSideBuy  Side = "BUY"
	OrderSideSell Side = "SELL"
)

// OrderResult is the exchange's response to a placed order.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	AvgPrice      float64
	FilledQty     float64
}

// ExchangePosition is a position as reported by the exchange, used for
// reconciliation against the engine's in-memory Position records.
type ExchangePosition struct {
	Symbol         string
	PositionAmt    float64
	EntryPrice     float64
	UnrealizedPnL  float64
	Leverage       int
	MarginType     string
}

// Client is the exchange adapter's abstract contract. FuturesClient and a
// test double both satisfy it.
type Client interface {
	FetchAllTickers(ctx context.Context) ([]model.Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64, clientOrderID string) (OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, price, quantity float64, clientOrderID string) (OrderResult, error)
	PlaceStopMarket(ctx context.Context, symbol string, stopPrice float64, side Side, quantity float64) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	CloseAllPositions(ctx context.Context, symbol string) error
	FetchPositions(ctx context.Context) ([]ExchangePosition, error)
}

// FuturesClientImpl talks to the real Binance Futures REST API.
type FuturesClientImpl struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFuturesClient constructs a client. limiter enforces a floor of one
// request every 200ms per the adapter's documented rate-limit contract.
func NewFuturesClient(apiKey, secretKey string, testnet bool) *FuturesClientImpl {
	baseURL := FuturesBaseURL
	if testnet {
		baseURL = FuturesTestnetURL
	}
	return &FuturesClientImpl{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

func (c *FuturesClientImpl) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *FuturesClientImpl) buildQueryString(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func (c *FuturesClientImpl) signParams(params map[string]string) string {
	query := c.buildQueryString(params)
	return query + "&signature=" + c.sign(query)
}

// signedRequest performs an authenticated request with rate limiting,
// retry-with-jittered-backoff, and normalized error classification.
func (c *FuturesClientImpl) signedRequest(ctx context.Context, method, endpoint string, params map[string]string) ([]byte, error) {
	log := logging.Component("exchange")
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "rate limiter wait cancelled", err)
		}

		if params == nil {
			params = map[string]string{}
		}
		params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
		params["recvWindow"] = "10000"
		query := c.signParams(params)

		var req *http.Request
		var err error
		reqURL := fmt.Sprintf("%s%s", c.baseURL, endpoint)
		if method == http.MethodGet || method == http.MethodDelete {
			req, err = http.NewRequestWithContext(ctx, method, reqURL+"?"+query, nil)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(query))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if err != nil {
			return nil, fmt.Errorf("build exchange request: %w", err)
		}
		req.Header.Set("X-MBX-APIKEY", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = classifyNetworkError(err)
			if attempt < maxRetries {
				delay := retryDelay(attempt)
				log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Dur("delay", delay).Msg("exchange request failed, retrying")
				time.Sleep(delay)
				continue
			}
			return nil, lastErr
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read exchange response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = classifyStatusError(resp.StatusCode, body)
		if isRetryable(resp.StatusCode, body) && attempt < maxRetries {
			delay := retryDelay(attempt)
			log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Dur("delay", delay).Msg("exchange returned retryable error")
			time.Sleep(delay)
			continue
		}
		return nil, lastErr
	}
	return nil, lastErr
}

func classifyNetworkError(err error) error {
	return apperrors.Wrap(apperrors.KindTransient, "network error", err)
}

func classifyStatusError(statusCode int, body []byte) error {
	msg := string(body)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuthFailure, msg)
	case statusCode == http.StatusTooManyRequests || statusCode == 418:
		return apperrors.New(apperrors.KindRateLimited, msg)
	case statusCode >= 500:
		return apperrors.New(apperrors.KindTransient, msg)
	case statusCode == http.StatusBadRequest:
		return apperrors.New(apperrors.KindOrderRejected, msg)
	default:
		return apperrors.New(apperrors.KindOrderRejected, msg)
	}
}

func isRetryable(statusCode int, body []byte) bool {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return true
	}
	s := string(body)
	return strings.Contains(s, "-1001") || strings.Contains(s, "-1003") || strings.Contains(s, "-1016")
}

func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter - delay/4
}

// FetchAllTickers retrieves 24hr ticker statistics for every symbol.
func (c *FuturesClientImpl) FetchAllTickers(ctx context.Context) ([]model.Ticker, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/ticker/24hr", map[string]string{})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse tickers: %w", err)
	}

	tickers := make([]model.Ticker, 0, len(raw))
	for _, r := range raw {
		tickers = append(tickers, model.Ticker{
			Symbol:            r.Symbol,
			Last:              parseFloat(r.LastPrice),
			QuoteVolume24h:    parseFloat(r.QuoteVolume),
			PriceChangePct24h: parseFloat(r.PriceChangePercent),
		})
	}
	return tickers, nil
}

// FetchOHLCV retrieves candlestick data for symbol at timeframe.
func (c *FuturesClientImpl) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	params := map[string]string{"symbol": symbol, "interval": timeframe, "limit": strconv.Itoa(limit)}
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTimeMs, _ := k[0].(float64)
		candles = append(candles, model.Candle{
			OpenTime: time.UnixMilli(int64(openTimeMs)),
			Open:     parseFloat(k[1].(string)),
			High:     parseFloat(k[2].(string)),
			Low:      parseFloat(k[3].(string)),
			Close:    parseFloat(k[4].(string)),
			Volume:   parseFloat(k[5].(string)),
		})
	}
	return candles, nil
}

// SetLeverage sets leverage for symbol.
func (c *FuturesClientImpl) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := map[string]string{"symbol": symbol, "leverage": strconv.Itoa(leverage)}
	_, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

// PlaceMarketOrder places a market order.
func (c *FuturesClientImpl) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64, clientOrderID string) (OrderResult, error) {
	params := map[string]string{
		"symbol": symbol, "side": string(side), "type": "MARKET",
		"quantity": strconv.FormatFloat(quantity, 'f', -1, 64), "newClientOrderId": clientOrderID,
	}
	return c.placeOrder(ctx, params)
}

// PlaceLimitOrder places a GTC limit order.
func (c *FuturesClientImpl) PlaceLimitOrder(ctx context.Context, symbol string, side Side, price, quantity float64, clientOrderID string) (OrderResult, error) {
	params := map[string]string{
		"symbol": symbol, "side": string(side), "type": "LIMIT", "timeInForce": "GTC",
		"price":            strconv.FormatFloat(price, 'f', -1, 64),
		"quantity":         strconv.FormatFloat(quantity, 'f', -1, 64),
		"newClientOrderId": clientOrderID,
	}
	return c.placeOrder(ctx, params)
}

// PlaceStopMarket places a conditional stop-market order, used for stop
// loss and emergency exits.
func (c *FuturesClientImpl) PlaceStopMarket(ctx context.Context, symbol string, stopPrice float64, side Side, quantity float64) (OrderResult, error) {
	params := map[string]string{
		"symbol": symbol, "side": string(side), "type": "STOP_MARKET",
		"stopPrice": strconv.FormatFloat(stopPrice, 'f', -1, 64),
		"quantity":  strconv.FormatFloat(quantity, 'f', -1, 64),
	}
	return c.placeOrder(ctx, params)
}

func (c *FuturesClientImpl) placeOrder(ctx context.Context, params map[string]string) (OrderResult, error) {
	body, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return OrderResult{}, err
	}

	var raw struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Status        string `json:"status"`
		AvgPrice      string `json:"avgPrice"`
		ExecutedQty   string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderResult{}, fmt.Errorf("parse order response: %w", err)
	}

	return OrderResult{
		OrderID:       raw.OrderID,
		ClientOrderID: raw.ClientOrderID,
		Symbol:        raw.Symbol,
		Status:        raw.Status,
		AvgPrice:      parseFloat(raw.AvgPrice),
		FilledQty:     parseFloat(raw.ExecutedQty),
	}, nil
}

// CancelOrder cancels an open order.
func (c *FuturesClientImpl) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)}
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// CloseAllPositions cancels resting orders and flattens any open position
// for symbol via a reduce-only market order, used on emergency exit and
// shutdown drain.
func (c *FuturesClientImpl) CloseAllPositions(ctx context.Context, symbol string) error {
	params := map[string]string{"symbol": symbol}
	_, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params)
	if err != nil {
		return err
	}

	positions, err := c.FetchPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if p.Symbol != symbol || p.PositionAmt == 0 {
			continue
		}
		side := OrderSideSell
		qty := p.PositionAmt
		if p.PositionAmt < 0 {
			side = OrderSideBuy
			qty = -qty
		}
		closeParams := map[string]string{
			"symbol": symbol, "side": string(side), "type": "MARKET",
			"quantity": strconv.FormatFloat(qty, 'f', -1, 64), "reduceOnly": "true",
		}
		if _, err := c.placeOrder(ctx, closeParams); err != nil {
			return err
		}
	}
	return nil
}

// FetchPositions retrieves all open futures positions, used by the engine
// to reconcile its in-memory Position state against the exchange.
func (c *FuturesClientImpl) FetchPositions(ctx context.Context) ([]ExchangePosition, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", map[string]string{})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol        string `json:"symbol"`
		PositionAmt   string `json:"positionAmt"`
		EntryPrice    string `json:"entryPrice"`
		UnrealizedPnL string `json:"unRealizedProfit"`
		Leverage      string `json:"leverage"`
		MarginType    string `json:"marginType"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}

	positions := make([]ExchangePosition, 0, len(raw))
	for _, r := range raw {
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(r.Leverage)
		positions = append(positions, ExchangePosition{
			Symbol:        r.Symbol,
			PositionAmt:   amt,
			EntryPrice:    parseFloat(r.EntryPrice),
			UnrealizedPnL: parseFloat(r.UnrealizedPnL),
			Leverage:      lev,
			MarginType:    r.MarginType,
		})
	}
	return positions, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
