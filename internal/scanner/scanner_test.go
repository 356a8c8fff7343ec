package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

type fakeTickers struct {
	tickers []model.Ticker
}

func (f *fakeTickers) FetchAllTickers(ctx context.Context) ([]model.Ticker, error) {
	return f.tickers, nil
}

type fakeCandles struct {
	series map[string][]model.Candle
}

func (f *fakeCandles) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	return f.series[symbol], nil
}

type fakeBlacklist struct {
	blocked map[string]bool
}

func (f *fakeBlacklist) IsBlacklisted(symbol string) bool { return f.blocked[symbol] }

func flatCandles(n int, vol float64) []model.Candle {
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{Close: 100, Volume: vol}
	}
	return candles
}

func TestScan_DiscardsBelowMinVolume(t *testing.T) {
	tickers := &fakeTickers{tickers: []model.Ticker{
		{Symbol: "LOWUSDT", QuoteVolume24h: 1_000_000},
		{Symbol: "BTCUSDT", QuoteVolume24h: 50_000_000},
	}}
	candles := &fakeCandles{series: map[string][]model.Candle{
		"BTCUSDT": flatCandles(21, 100),
	}}
	cfg := DefaultConfig()
	cfg.CacheTTL = 0

	s := New(tickers, candles, &fakeBlacklist{blocked: map[string]bool{}}, cfg)
	result, err := s.Scan(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, result.SymbolsScanned)
}

func TestScan_ExcludesBlacklistedSymbols(t *testing.T) {
	tickers := &fakeTickers{tickers: []model.Ticker{
		{Symbol: "ETHUSDT", QuoteVolume24h: 50_000_000},
	}}
	candles := &fakeCandles{series: map[string][]model.Candle{
		"ETHUSDT": flatCandles(21, 100),
	}}
	cfg := DefaultConfig()
	cfg.CacheTTL = 0

	s := New(tickers, candles, &fakeBlacklist{blocked: map[string]bool{"ETHUSDT": true}}, cfg)
	result, err := s.Scan(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.SymbolsScanned)
}

func TestScan_ExcludesSymbolsWithInsufficientHistory(t *testing.T) {
	tickers := &fakeTickers{tickers: []model.Ticker{
		{Symbol: "NEWUSDT", QuoteVolume24h: 50_000_000},
	}}
	candles := &fakeCandles{series: map[string][]model.Candle{
		"NEWUSDT": flatCandles(5, 100),
	}}
	cfg := DefaultConfig()
	cfg.CacheTTL = 0

	s := New(tickers, candles, &fakeBlacklist{blocked: map[string]bool{}}, cfg)
	result, err := s.Scan(context.Background())
	assert.NoError(t, err)
	assert.Len(t, result.Candidates, 0)
}

func TestScan_RanksByMomentumScoreDescending(t *testing.T) {
	highMomentum := flatCandles(21, 100)
	highMomentum[20].Close = 110
	highMomentum[20].Volume = 500

	lowMomentum := flatCandles(21, 100)
	lowMomentum[20].Close = 101

	tickers := &fakeTickers{tickers: []model.Ticker{
		{Symbol: "HIGHUSDT", QuoteVolume24h: 50_000_000},
		{Symbol: "LOWUSDT", QuoteVolume24h: 50_000_000},
	}}
	candles := &fakeCandles{series: map[string][]model.Candle{
		"HIGHUSDT": highMomentum,
		"LOWUSDT":  lowMomentum,
	}}
	cfg := DefaultConfig()
	cfg.CacheTTL = 0

	s := New(tickers, candles, &fakeBlacklist{blocked: map[string]bool{}}, cfg)
	result, err := s.Scan(context.Background())
	assert.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
	assert.Equal(t, "HIGHUSDT", result.Candidates[0].Symbol)
}

func TestScan_ServesCachedResultWithinTTL(t *testing.T) {
	tickers := &fakeTickers{tickers: []model.Ticker{{Symbol: "BTCUSDT", QuoteVolume24h: 50_000_000}}}
	candles := &fakeCandles{series: map[string][]model.Candle{"BTCUSDT": flatCandles(21, 100)}}
	cfg := DefaultConfig()
	cfg.CacheTTL = time.Minute

	s := New(tickers, candles, &fakeBlacklist{blocked: map[string]bool{}}, cfg)
	first, _ := s.Scan(context.Background())

	tickers.tickers = nil // would yield a different result if re-scanned
	second, err := s.Scan(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, first.ScanID, second.ScanID)
}
