package binance

import (
	"context"
	"fmt"
	"sync"

	"tradecore/internal/model"
)

// MockClient is an in-memory Client fake backing engine tests, adapted
// from the teacher's FuturesMockClient dry-run implementation.
type MockClient struct {
	mu sync.RWMutex

	tickers   map[string]model.Ticker
	candles   map[string][]model.Candle
	positions map[string]ExchangePosition
	leverage  map[string]int
	nextOrder int64
	orders    []OrderResult

	// Rejected, when set, is returned by every order-placement call
	// instead of a successful OrderResult, for gate/engine rejection tests.
	Rejected error
}

// NewMockClient constructs an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		tickers:   make(map[string]model.Ticker),
		candles:   make(map[string][]model.Candle),
		positions: make(map[string]ExchangePosition),
		leverage:  make(map[string]int),
		nextOrder: 1000,
	}
}

// SeedTicker injects a ticker a test can later assert FetchAllTickers
// returns.
func (c *MockClient) SeedTicker(t model.Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers[t.Symbol] = t
}

// SeedCandles injects OHLCV history for symbol/timeframe.
func (c *MockClient) SeedCandles(symbol, timeframe string, candles []model.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles[seedKey(symbol, timeframe)] = candles
}

func seedKey(symbol, timeframe string) string { return symbol + ":" + timeframe }

func (c *MockClient) FetchAllTickers(ctx context.Context) ([]model.Ticker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Ticker, 0, len(c.tickers))
	for _, t := range c.tickers {
		out = append(out, t)
	}
	return out, nil
}

func (c *MockClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series := c.candles[seedKey(symbol, timeframe)]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

func (c *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leverage[symbol] = leverage
	return nil
}

func (c *MockClient) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64, clientOrderID string) (OrderResult, error) {
	return c.fill(symbol, side, quantity, clientOrderID)
}

func (c *MockClient) PlaceLimitOrder(ctx context.Context, symbol string, side Side, price, quantity float64, clientOrderID string) (OrderResult, error) {
	return c.fill(symbol, side, quantity, clientOrderID)
}

func (c *MockClient) PlaceStopMarket(ctx context.Context, symbol string, stopPrice float64, side Side, quantity float64) (OrderResult, error) {
	return c.fill(symbol, side, quantity, "")
}

func (c *MockClient) fill(symbol string, side Side, quantity float64, clientOrderID string) (OrderResult, error) {
	if c.Rejected != nil {
		return OrderResult{}, c.Rejected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextOrder++
	amt := quantity
	if side == OrderSideSell {
		amt = -amt
	}

	existing := c.positions[symbol]
	existing.Symbol = symbol
	existing.PositionAmt += amt
	c.positions[symbol] = existing

	price := c.tickers[symbol].Last

	return OrderResult{
		OrderID:       c.nextOrder,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Status:        "FILLED",
		AvgPrice:      price,
		FilledQty:     quantity,
	}, nil
}

func (c *MockClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}

func (c *MockClient) CloseAllPositions(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, symbol)
	return nil
}

func (c *MockClient) FetchPositions(ctx context.Context) ([]ExchangePosition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ExchangePosition, 0, len(c.positions))
	for _, p := range c.positions {
		if p.PositionAmt == 0 {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *MockClient) getListenKey(ctx context.Context) (string, error) {
	return "mock-listen-key", nil
}

func (c *MockClient) keepAliveListenKey(ctx context.Context, listenKey string) error {
	if listenKey == "" {
		return fmt.Errorf("empty listen key")
	}
	return nil
}

var _ Client = (*MockClient)(nil)
var _ listenKeyClient = (*MockClient)(nil)
