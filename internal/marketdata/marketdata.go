// Package marketdata is the in-memory hub for candle and ticker data fed by
// the exchange adapter's REST backfill and WebSocket streams. Readers
// (scanner, analyzer) never touch the exchange directly.
package marketdata

import (
	"sync"
	"time"

	"tradecore/internal/model"
)

const maxCandlesPerSeries = 500

type cachedSeries struct {
	candles   []model.Candle
	updatedAt time.Time
}

type cachedTicker struct {
	ticker    model.Ticker
	updatedAt time.Time
}

// Hub is a thread-safe store of the most recent candles and tickers per
// symbol and timeframe, mirroring the teacher's sync.Map-based market data
// cache but keyed on the new domain's Candle/Ticker types.
type Hub struct {
	candleTTL time.Duration
	tickerTTL time.Duration

	series  sync.Map // "symbol:timeframe" -> *cachedSeries
	tickers sync.Map // symbol -> *cachedTicker

	mu        sync.Mutex
	hitCount  int64
	missCount int64
}

// NewHub returns a Hub with the given freshness windows for candles and
// tickers.
func NewHub(candleTTL, tickerTTL time.Duration) *Hub {
	return &Hub{candleTTL: candleTTL, tickerTTL: tickerTTL}
}

func seriesKey(symbol, timeframe string) string { return symbol + ":" + timeframe }

// UpdateCandle appends a closed candle or replaces the still-forming last
// candle in the series, matching the teacher's update-in-place-or-append
// rule for live kline streams. Each update stores a fresh copy of the
// series, so slices already returned to readers are never modified.
func (h *Hub) UpdateCandle(symbol, timeframe string, c model.Candle) {
	key := seriesKey(symbol, timeframe)
	var old []model.Candle
	if val, ok := h.series.Load(key); ok {
		old = val.(*cachedSeries).candles
	}

	candles := make([]model.Candle, len(old), len(old)+1)
	copy(candles, old)
	if n := len(candles); n > 0 && candles[n-1].OpenTime.Equal(c.OpenTime) {
		candles[n-1] = c
	} else {
		candles = append(candles, c)
		if len(candles) > maxCandlesPerSeries {
			candles = candles[len(candles)-maxCandlesPerSeries:]
		}
	}
	h.series.Store(key, &cachedSeries{candles: candles, updatedAt: time.Now()})
}

// Candles returns up to `limit` most recent candles for symbol/timeframe,
// or nil if the series is absent or stale.
func (h *Hub) Candles(symbol, timeframe string, limit int) []model.Candle {
	key := seriesKey(symbol, timeframe)
	val, ok := h.series.Load(key)
	if !ok {
		h.recordMiss()
		return nil
	}
	entry := val.(*cachedSeries)
	if time.Since(entry.updatedAt) > h.candleTTL {
		h.recordMiss()
		return nil
	}
	h.recordHit()
	data := entry.candles
	if limit > 0 && len(data) > limit {
		return data[len(data)-limit:]
	}
	return data
}

// UpdateTicker stores the latest ticker snapshot for a symbol.
func (h *Hub) UpdateTicker(t model.Ticker) {
	h.tickers.Store(t.Symbol, &cachedTicker{ticker: t, updatedAt: time.Now()})
}

// Ticker returns the latest ticker for symbol, or false if missing or
// stale.
func (h *Hub) Ticker(symbol string) (model.Ticker, bool) {
	val, ok := h.tickers.Load(symbol)
	if !ok {
		h.recordMiss()
		return model.Ticker{}, false
	}
	entry := val.(*cachedTicker)
	if time.Since(entry.updatedAt) > h.tickerTTL {
		h.recordMiss()
		return model.Ticker{}, false
	}
	h.recordHit()
	return entry.ticker, true
}

// AllTickers returns a snapshot of every non-stale ticker currently cached,
// used by the scanner's universe sweep.
func (h *Hub) AllTickers() []model.Ticker {
	out := make([]model.Ticker, 0)
	h.tickers.Range(func(_, v any) bool {
		entry := v.(*cachedTicker)
		if time.Since(entry.updatedAt) <= h.tickerTTL {
			out = append(out, entry.ticker)
		}
		return true
	})
	return out
}

// Stats reports cumulative cache hit/miss counters for observability.
func (h *Hub) Stats() (hits, misses int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hitCount, h.missCount
}

func (h *Hub) recordHit() {
	h.mu.Lock()
	h.hitCount++
	h.mu.Unlock()
}

func (h *Hub) recordMiss() {
	h.mu.Lock()
	h.missCount++
	h.mu.Unlock()
}
