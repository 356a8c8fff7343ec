// Package scanner is the Market Scanner: it ranks exchange symbols by a
// momentum score so the engine's scan loop only feeds the analyzer its
// best candidates. Adapted from the teacher's Scanner worker-pool
// concurrency pattern in internal/scanner/scanner.go, retargeted from
// strategy-proximity scoring onto §4.4's momentum-score algorithm.
package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"tradecore/internal/logging"
	"tradecore/internal/model"
)

// TickerSource supplies the full exchange ticker snapshot.
type TickerSource interface {
	FetchAllTickers(ctx context.Context) ([]model.Ticker, error)
}

// CandleSource supplies recent OHLCV history for volume/price-change math.
type CandleSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
}

// BlacklistChecker reports whether a symbol is currently vetoed.
type BlacklistChecker interface {
	IsBlacklisted(symbol string) bool
}

// Scanner ranks symbols by momentum and caches the ranking for CacheTTL.
type Scanner struct {
	tickers    TickerSource
	candles    CandleSource
	blacklist  BlacklistChecker
	cfg        Config
	cache      *resultCache
	nextScanID int
	mu         sync.Mutex
}

// New constructs a Scanner.
func New(tickers TickerSource, candles CandleSource, blacklist BlacklistChecker, cfg Config) *Scanner {
	return &Scanner{
		tickers:   tickers,
		candles:   candles,
		blacklist: blacklist,
		cfg:       cfg,
		cache:     newResultCache(cfg.CacheTTL),
	}
}

// Scan returns the top-N momentum candidates, serving a cached ranking
// when the last scan completed within CacheTTL.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if cached := s.cache.get(); cached != nil {
		return cached, nil
	}

	start := time.Now()
	scanID := s.nextID()

	allTickers, err := s.tickers.FetchAllTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers for scan: %w", err)
	}

	survivors := s.filterByVolumeAndBlacklist(allTickers)

	resultChan := make(chan *Candidate, len(survivors))
	symbolChan := make(chan model.Ticker, len(survivors))
	var wg sync.WaitGroup

	workers := s.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, symbolChan, resultChan, &wg)
	}

	go func() {
		for _, t := range survivors {
			select {
			case symbolChan <- t:
			case <-ctx.Done():
			}
		}
		close(symbolChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var candidates []Candidate
	for c := range resultChan {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].MomentumScore != candidates[j].MomentumScore {
			return candidates[i].MomentumScore > candidates[j].MomentumScore
		}
		return candidates[i].VolumeRatio > candidates[j].VolumeRatio
	})

	topN := s.cfg.TopN
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	candidates = candidates[:topN]

	result := &Result{
		ScanID:         scanID,
		StartTime:      start,
		EndTime:        time.Now(),
		Duration:       time.Since(start),
		SymbolsScanned: len(survivors),
		Candidates:     candidates,
	}
	s.cache.set(result)

	logging.Component("scanner").Info().
		Str("scan_id", scanID).
		Int("scanned", len(survivors)).
		Int("candidates", len(candidates)).
		Dur("duration", result.Duration).
		Msg("scan complete")

	return result, nil
}

func (s *Scanner) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScanID++
	return fmt.Sprintf("scan-%d", s.nextScanID)
}

func (s *Scanner) filterByVolumeAndBlacklist(tickers []model.Ticker) []model.Ticker {
	survivors := make([]model.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if t.QuoteVolume24h < s.cfg.MinVolumeUsd {
			continue
		}
		if s.blacklist != nil && s.blacklist.IsBlacklisted(t.Symbol) {
			continue
		}
		if matchesAny(t.Symbol, s.cfg.BlacklistGlobs) {
			continue
		}
		survivors = append(survivors, t)
	}
	return survivors
}

func matchesAny(symbol string, globs []string) bool {
	for _, g := range globs {
		if strings.Contains(symbol, g) {
			return true
		}
	}
	return false
}

func (s *Scanner) worker(ctx context.Context, in <-chan model.Ticker, out chan<- *Candidate, wg *sync.WaitGroup) {
	defer wg.Done()
	for t := range in {
		c, err := s.evaluate(ctx, t)
		if err != nil {
			logging.Component("scanner").Debug().Err(err).Str("symbol", t.Symbol).Msg("skipping symbol, insufficient history")
			continue
		}
		out <- c
	}
}

// evaluate computes priceChange5mPct, volumeRatio, and momentumScore for
// a single symbol, per §4.4 steps 2-3.
func (s *Scanner) evaluate(ctx context.Context, t model.Ticker) (*Candidate, error) {
	candles, err := s.candles.FetchOHLCV(ctx, t.Symbol, "1m", 21)
	if err != nil {
		return nil, err
	}
	if len(candles) < 21 {
		return nil, fmt.Errorf("insufficient 1m history for %s: have %d, need 21", t.Symbol, len(candles))
	}

	last := candles[len(candles)-1]
	fiveAgo := candles[len(candles)-6]
	priceChange5mPct := 0.0
	if fiveAgo.Close != 0 {
		priceChange5mPct = ((last.Close - fiveAgo.Close) / fiveAgo.Close) * 100
	}

	history := candles[len(candles)-21 : len(candles)-1]
	var volSum float64
	for _, c := range history {
		volSum += c.Volume
	}
	avgVolume := volSum / float64(len(history))

	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = last.Volume / avgVolume
	}

	momentumScore := volumeRatio * math.Abs(priceChange5mPct)

	return &Candidate{
		Symbol:           t.Symbol,
		PriceChange5mPct: priceChange5mPct,
		VolumeRatio:      volumeRatio,
		MomentumScore:    momentumScore,
		QuoteVolume24h:   t.QuoteVolume24h,
		ScannedAt:        time.Now(),
	}, nil
}
