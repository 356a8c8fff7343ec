// Package analyzer derives a MarketContext and optional trade Proposal from
// a symbol's multi-timeframe candle history.
package analyzer

import (
	"math"

	"tradecore/internal/indicators"
	"tradecore/internal/logging"
	"tradecore/internal/model"
)

// Config tunes the weighting and thresholds the analyzer applies.
type Config struct {
	Timeframes        []string // ordered base->higher, e.g. {"15m","1h","4h"}
	AlignmentWeights  map[string]float64
	ReferenceSymbol   string // e.g. BTCUSDT
	MinConfidence     float64
	ATRAverageLookback int
}

// DefaultConfig returns the analyzer's default tuning per the documented
// alignment weights and minimum-confidence default.
func DefaultConfig() Config {
	return Config{
		Timeframes: []string{"15m", "1h", "4h"},
		AlignmentWeights: map[string]float64{
			"4h":  0.50,
			"1h":  0.30,
			"15m": 0.20,
		},
		ReferenceSymbol:    "BTCUSDT",
		MinConfidence:      60,
		ATRAverageLookback: 50,
	}
}

// CandleSource supplies cached candle history; satisfied by *marketdata.Hub.
type CandleSource interface {
	Candles(symbol, timeframe string, limit int) []model.Candle
}

// Analyzer computes TimeframeViews, a MarketContext, and trade Proposals.
type Analyzer struct {
	cfg    Config
	source CandleSource
}

// New constructs an Analyzer reading candles from source.
func New(cfg Config, source CandleSource) *Analyzer {
	return &Analyzer{cfg: cfg, source: source}
}

// View computes the TimeframeView for one symbol and timeframe from cached
// candle history. Returns ok=false if there isn't enough history yet.
func (a *Analyzer) View(symbol, timeframe string) (model.TimeframeView, bool) {
	candles := a.source.Candles(symbol, timeframe, 250)
	if len(candles) < 60 {
		return model.TimeframeView{}, false
	}

	ema9 := indicators.CalculateEMA(candles, 9)
	ema21 := indicators.CalculateEMA(candles, 21)
	ema50 := indicators.CalculateEMA(candles, 50)
	rsi := indicators.CalculateRSI(candles, 14)
	macd := indicators.CalculateMACD(candles, 12, 26, 9)
	atr := indicators.CalculateATR(candles, 14)
	adx := indicators.CalculateADX(candles, 14)
	volRatio := indicators.VolumeRatio(candles, 20)

	close := candles[len(candles)-1].Close

	dir := classifyDirection(close, ema9, ema21)
	_, strength := indicators.ClassifyTrend(ema9, ema21, ema50, close)

	return model.TimeframeView{
		Symbol:         symbol,
		Timeframe:      timeframe,
		EMA9:           ema9,
		EMA21:          ema21,
		EMA50:          ema50,
		RSI14:          rsi,
		MACD:           model.MACD{Line: macd.MACD, Signal: macd.Signal, Hist: macd.Histogram},
		ATR14:          atr,
		ADX14:          adx,
		VolumeRatio:    volRatio,
		TrendDirection: dir,
		TrendStrength:  strength,
		Close:          close,
	}, true
}

// classifyDirection implements the exact UP/DOWN/SIDEWAYS rule: UP iff
// ema9>ema21 and close>ema9; DOWN iff ema9<ema21 and close<ema21; else
// SIDEWAYS.
func classifyDirection(close, ema9, ema21 float64) model.TrendDirection {
	switch {
	case ema9 > ema21 && close > ema9:
		return model.TrendUp
	case ema9 < ema21 && close < ema21:
		return model.TrendDown
	default:
		return model.TrendSideways
	}
}

// alignmentResult bundles the weighted-majority outcome with the bonus and
// penalty the confidence step applies.
type alignmentResult struct {
	score     float64
	dominant  model.TrendDirection
	bonus     float64
	penalty   float64
}

func computeAlignment(views map[string]model.TimeframeView, weights map[string]float64) alignmentResult {
	upWeight, downWeight, sidewaysWeight := 0.0, 0.0, 0.0
	agreeCount := 0
	total := 0
	for tf, w := range weights {
		v, ok := views[tf]
		if !ok {
			continue
		}
		total++
		switch v.TrendDirection {
		case model.TrendUp:
			upWeight += w
		case model.TrendDown:
			downWeight += w
		default:
			sidewaysWeight += w
		}
	}

	dominant := model.TrendSideways
	switch {
	case upWeight > downWeight && upWeight > sidewaysWeight:
		dominant = model.TrendUp
	case downWeight > upWeight && downWeight > sidewaysWeight:
		dominant = model.TrendDown
	}

	if dominant != model.TrendSideways {
		for tf := range weights {
			if v, ok := views[tf]; ok && v.TrendDirection == dominant {
				agreeCount++
			}
		}
	}

	var score float64
	switch {
	case agreeCount == total && total > 0 && dominant != model.TrendSideways:
		score = 100
	case agreeCount == 2:
		score = 70
	default:
		score = 40
	}

	bonus := 0.0
	if agreeCount == total && total > 0 && dominant != model.TrendSideways {
		bonus = 25
	}

	penalty := 0.0
	if v1h, ok1 := views["1h"]; ok1 {
		if v4h, ok4 := views["4h"]; ok4 {
			if v1h.TrendDirection != model.TrendSideways && v4h.TrendDirection != model.TrendSideways && v1h.TrendDirection != v4h.TrendDirection {
				penalty = 15
			}
		}
	}

	return alignmentResult{score: score, dominant: dominant, bonus: bonus, penalty: penalty}
}

// classifyRegime applies the documented tie-break order
// CHOPPY > SIDEWAYS > HIGH_VOL > LOW_VOL > TRENDING.
func classifyRegime(baseCandles []model.Candle, baseView model.TimeframeView, atrAverage float64) model.Regime {
	choppy := crossesEMA9MoreThan(baseCandles, baseView, 4) || baseView.ADX14 < 15
	if choppy {
		return model.RegimeChoppy
	}

	if withinBand(baseCandles, 20, 0.02) {
		return model.RegimeSideways
	}

	if atrAverage > 0 && baseView.ATR14 > 1.5*atrAverage {
		return model.RegimeHighVol
	}
	if atrAverage > 0 && baseView.ATR14 < 0.5*atrAverage {
		return model.RegimeLowVol
	}
	return model.RegimeTrending
}

func crossesEMA9MoreThan(candles []model.Candle, view model.TimeframeView, max int) bool {
	if len(candles) < 21 {
		return false
	}
	window := candles[len(candles)-20:]
	crosses := 0
	for i := 1; i < len(window); i++ {
		prevAbove := window[i-1].Close > view.EMA9
		curAbove := window[i].Close > view.EMA9
		if prevAbove != curAbove {
			crosses++
		}
	}
	return crosses > max
}

func withinBand(candles []model.Candle, lookback int, bandPct float64) bool {
	if len(candles) < lookback {
		return false
	}
	window := candles[len(candles)-lookback:]
	min, max := window[0].Close, window[0].Close
	for _, c := range window {
		if c.Close < min {
			min = c.Close
		}
		if c.Close > max {
			max = c.Close
		}
	}
	if min == 0 {
		return false
	}
	return (max-min)/min <= bandPct
}

func atrAverage(candles []model.Candle, lookback int) float64 {
	if len(candles) < lookback+1 {
		return 0
	}
	sum := 0.0
	n := 0
	for i := len(candles) - lookback; i < len(candles); i++ {
		window := candles[:i+1]
		if len(window) < 15 {
			continue
		}
		sum += indicators.CalculateATR(window, 14)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// indicatorScore combines EMA/RSI/MACD/volume/price-action signals into a
// 0-100 base confidence score before alignment bonus/penalty are applied.
func indicatorScore(v model.TimeframeView, side model.Side) float64 {
	trendScore := 0.0
	switch {
	case side == model.SideLong && v.TrendDirection == model.TrendUp:
		trendScore = 25
	case side == model.SideShort && v.TrendDirection == model.TrendDown:
		trendScore = 25
	}

	rsiScore := 0.0
	switch {
	case side == model.SideLong && v.RSI14 > 50 && v.RSI14 < 70:
		rsiScore = 20
	case side == model.SideShort && v.RSI14 < 50 && v.RSI14 > 30:
		rsiScore = 20
	case v.RSI14 > 70 || v.RSI14 < 30:
		rsiScore = 5
	}

	macdScore := 0.0
	switch {
	case side == model.SideLong && v.MACD.Hist > 0:
		macdScore = 20
	case side == model.SideShort && v.MACD.Hist < 0:
		macdScore = 20
	}

	volScore := 0.0
	if v.VolumeRatio >= 1.2 {
		volScore = 20
	} else if v.VolumeRatio >= 0.8 {
		volScore = 10
	}

	priceActionScore := 0.0
	switch v.TrendStrength {
	case model.StrengthStrong:
		priceActionScore = 15
	case model.StrengthModerate:
		priceActionScore = 8
	}

	return trendScore + rsiScore + macdScore + volScore + priceActionScore
}

// Analyze builds the MarketContext for symbol and, when conditions
// warrant, a Proposal.
func (a *Analyzer) Analyze(symbol string) (model.MarketContext, *model.Proposal) {
	views := make(map[string]model.TimeframeView)
	for _, tf := range a.cfg.Timeframes {
		if v, ok := a.View(symbol, tf); ok {
			views[tf] = v
		}
	}

	ctx := model.MarketContext{Symbol: symbol, Views: views}
	if len(views) == 0 {
		return ctx, nil
	}

	baseTf := a.cfg.Timeframes[0]
	baseView, haveBase := views[baseTf]
	baseCandles := a.source.Candles(symbol, baseTf, 250)

	align := computeAlignment(views, a.cfg.AlignmentWeights)
	ctx.AlignmentScore = align.score

	if haveBase {
		avg := atrAverage(baseCandles, a.cfg.ATRAverageLookback)
		ctx.Regime = classifyRegime(baseCandles, baseView, avg)
	}

	refView, haveRef := (model.TimeframeView{}), false
	if symbol != a.cfg.ReferenceSymbol {
		if rv, ok := a.View(a.cfg.ReferenceSymbol, "4h"); ok {
			refView, haveRef = rv, true
			ctx.ReferenceView = rv
		}
	}

	btcAdjustment := 0.0
	if haveRef {
		refAvg := atrAverage(a.source.Candles(a.cfg.ReferenceSymbol, "4h", 250), a.cfg.ATRAverageLookback)
		if align.dominant != model.TrendSideways && refView.TrendDirection != model.TrendSideways && refView.TrendDirection != align.dominant {
			btcAdjustment = -20
		}
		if refAvg > 0 && refView.ATR14 > 2*refAvg {
			ctx.PauseAltcoins = true
		}
	}
	ctx.BTCAdjustment = btcAdjustment

	// A "pause altcoins" veto from extreme BTC volatility blocks every new
	// proposal for non-reference symbols outright, regardless of confidence.
	if ctx.PauseAltcoins && symbol != a.cfg.ReferenceSymbol {
		return ctx, nil
	}

	if align.dominant == model.TrendSideways || !haveBase {
		return ctx, nil
	}

	side := model.SideLong
	if align.dominant == model.TrendDown {
		side = model.SideShort
	}

	base := indicatorScore(baseView, side)
	confidence := base + align.bonus - align.penalty + btcAdjustment
	confidence = math.Max(0, math.Min(100, confidence))

	if confidence < a.cfg.MinConfidence {
		return ctx, nil
	}

	analyzerLog := logging.Component("analyzer")
	analyzerLog.Debug().Msg("proposal generated")

	stopDistance := baseView.ATR14 * 1.5
	var stopLoss, takeProfit float64
	if side == model.SideLong {
		stopLoss = baseView.Close - stopDistance
		takeProfit = baseView.Close + stopDistance*2
	} else {
		stopLoss = baseView.Close + stopDistance
		takeProfit = baseView.Close - stopDistance*2
	}

	proposal := &model.Proposal{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: baseView.Close,
		Confidence: confidence,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		ATR:        baseView.ATR14,
		Context:    ctx,
	}
	return ctx, proposal
}
