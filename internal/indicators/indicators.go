// Package indicators computes the technical indicators the multi-timeframe
// analyzer consumes, using Wilder's recursive smoothing for RSI, ATR, and
// ADX rather than a simple rolling average.
package indicators

import (
	"math"

	"tradecore/internal/model"
)

// CalculateSMA returns the simple moving average of the last period closes.
func CalculateSMA(candles []model.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// CalculateEMA returns the exponential moving average over the full
// candle series, seeded with the SMA of the first period closes.
func CalculateEMA(candles []model.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	ema := CalculateSMA(candles[:period], period)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// emaSeries returns the EMA value at every index from period-1 onward,
// needed to compute a true MACD signal line (an EMA of the MACD line, not
// a single-point approximation).
func emaSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < period || period <= 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema
	for i := period; i < len(closes); i++ {
		ema = (closes[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}
	return out
}

// CalculateRSI computes Wilder's RSI(period) using recursive smoothing:
// avg_t = avg_{t-1} + (x_t - avg_{t-1}) / period, seeded by the simple
// average of the first `period` gains/losses.
func CalculateRSI(candles []model.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 50.0
	}

	gains := make([]float64, 0, len(candles)-1)
	losses := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = avgGain + (gains[i]-avgGain)/float64(period)
		avgLoss = avgLoss + (losses[i]-avgLoss)/float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds MACD(fast,slow,signal) outputs.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes the MACD line as EMA(fast)-EMA(slow) and the
// signal line as a true EMA(signalPeriod) of the MACD-line history, not a
// fixed-ratio approximation of the latest point.
func CalculateMACD(candles []model.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fastSeries := emaSeries(closes, fastPeriod)
	slowSeries := emaSeries(closes, slowPeriod)

	macdSeries := make([]float64, len(closes))
	for i := slowPeriod - 1; i < len(closes); i++ {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	macdHistory := macdSeries[slowPeriod-1:]
	signalSeries := emaSeries(macdHistory, signalPeriod)

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := signalSeries[len(signalSeries)-1]

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// CalculateATR computes Wilder's ATR(period): the Wilder-smoothed average
// of the true range series.
func CalculateATR(candles []model.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 0
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trueRanges = append(trueRanges, trueRange(candles[i], candles[i-1]))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = atr + (trueRanges[i]-atr)/float64(period)
	}
	return atr
}

func trueRange(cur, prev model.Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// CalculateADX computes Wilder's ADX(period) from the smoothed +DM/-DM and
// true range series, per Wilder's original directional movement system.
func CalculateADX(candles []model.Candle, period int) float64 {
	if len(candles) < 2*period+1 || period <= 0 {
		return 0
	}

	n := len(candles)
	plusDM := make([]float64, 0, n-1)
	minusDM := make([]float64, 0, n-1)
	tr := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		switch {
		case upMove > downMove && upMove > 0:
			plusDM = append(plusDM, upMove)
			minusDM = append(minusDM, 0)
		case downMove > upMove && downMove > 0:
			plusDM = append(plusDM, 0)
			minusDM = append(minusDM, downMove)
		default:
			plusDM = append(plusDM, 0)
			minusDM = append(minusDM, 0)
		}
		tr = append(tr, trueRange(candles[i], candles[i-1]))
	}

	smoothedPlusDM := wilderSmooth(plusDM, period)
	smoothedMinusDM := wilderSmooth(minusDM, period)
	smoothedTR := wilderSmooth(tr, period)

	dx := make([]float64, 0, len(smoothedTR))
	for i := range smoothedTR {
		if smoothedTR[i] == 0 {
			dx = append(dx, 0)
			continue
		}
		plusDI := 100 * smoothedPlusDM[i] / smoothedTR[i]
		minusDI := 100 * smoothedMinusDM[i] / smoothedTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(plusDI-minusDI)/sum)
	}

	if len(dx) < period {
		return 0
	}

	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dx[i]
	}
	adx /= float64(period)
	for i := period; i < len(dx); i++ {
		adx = adx + (dx[i]-adx)/float64(period)
	}
	return adx
}

// wilderSmooth applies Wilder's recursive smoothing, seeded with the simple
// sum of the first `period` values, to a raw series.
func wilderSmooth(series []float64, period int) []float64 {
	if len(series) < period {
		return nil
	}
	out := make([]float64, 0, len(series)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	out = append(out, sum)
	for i := period; i < len(series); i++ {
		sum = sum - (sum / float64(period)) + series[i]
		out = append(out, sum)
	}
	return out
}

// VolumeRatio returns the most recent candle's volume divided by the
// average volume of the preceding `period` candles.
func VolumeRatio(candles []model.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 1.0
	}
	last := candles[len(candles)-1]
	window := candles[len(candles)-1-period : len(candles)-1]
	sum := 0.0
	for _, c := range window {
		sum += c.Volume
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1.0
	}
	return last.Volume / avg
}

// ClassifyTrend derives a direction from EMA9/21/50 alignment and a
// strength from the EMA9/EMA21 spread relative to price, mirroring the
// teacher's EMA-stack trend classification but operating on the
// Wilder-correct indicator set.
func ClassifyTrend(ema9, ema21, ema50, price float64) (model.TrendDirection, model.TrendStrength) {
	var dir model.TrendDirection
	switch {
	case ema9 > ema21 && ema21 > ema50:
		dir = model.TrendUp
	case ema9 < ema21 && ema21 < ema50:
		dir = model.TrendDown
	default:
		dir = model.TrendSideways
	}

	if price == 0 {
		return dir, model.StrengthWeak
	}
	spread := math.Abs(ema9-ema21) / price * 100
	var strength model.TrendStrength
	switch {
	case spread > 1:
		strength = model.StrengthStrong
	case spread > 0.3:
		strength = model.StrengthModerate
	default:
		strength = model.StrengthWeak
	}
	return dir, strength
}
