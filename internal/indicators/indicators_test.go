package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

func candleSeries(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = model.Candle{
			OpenTime: t.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func TestCalculateRSI_AllGainsIsMax(t *testing.T) {
	closes := make([]float64, 20)
	price := 100.0
	for i := range closes {
		price += 1
		closes[i] = price
	}
	rsi := CalculateRSI(candleSeries(closes), 14)
	assert.Equal(t, 100.0, rsi)
}

func TestCalculateRSI_Neutral(t *testing.T) {
	closes := []float64{100, 101, 102}
	rsi := CalculateRSI(candleSeries(closes), 14)
	assert.Equal(t, 50.0, rsi, "insufficient history must return the neutral default")
}

func TestCalculateRSI_WilderSmoothingMatchesRecursiveFormula(t *testing.T) {
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28,
	}
	rsi := CalculateRSI(candleSeries(closes), 14)
	assert.InDelta(t, 70.53, rsi, 0.5)
}

func TestCalculateATR_NonNegative(t *testing.T) {
	closes := []float64{100, 102, 99, 105, 103, 107, 104, 110, 108, 112, 109, 115, 111, 118, 116}
	atr := CalculateATR(candleSeries(closes), 14)
	assert.GreaterOrEqual(t, atr, 0.0)
}

func TestCalculateADX_BoundedZeroToHundred(t *testing.T) {
	closes := make([]float64, 60)
	price := 100.0
	for i := range closes {
		price += 0.8
		closes[i] = price
	}
	adx := CalculateADX(candleSeries(closes), 14)
	assert.GreaterOrEqual(t, adx, 0.0)
	assert.LessOrEqual(t, adx, 100.0)
	// A strong, sustained uptrend should register meaningful directional strength.
	assert.Greater(t, adx, 20.0)
}

func TestCalculateMACD_SignalIsRealEMANotApproximation(t *testing.T) {
	closes := make([]float64, 60)
	price := 50.0
	for i := range closes {
		price += 0.3
		closes[i] = price
	}
	result := CalculateMACD(candleSeries(closes), 12, 26, 9)
	// For a steadily rising series, MACD line and signal should converge
	// closely (both trend upward), not sit at a fixed 0.8 ratio.
	assert.NotEqual(t, result.MACD*0.8, result.Signal)
	assert.InDelta(t, result.MACD, result.Signal, result.MACD*0.3+0.5)
}

func TestClassifyTrend(t *testing.T) {
	dir, strength := ClassifyTrend(110, 105, 100, 105)
	assert.Equal(t, model.TrendUp, dir)
	assert.Equal(t, model.StrengthStrong, strength)

	dir, _ = ClassifyTrend(100, 105, 110, 105)
	assert.Equal(t, model.TrendDown, dir)

	dir, _ = ClassifyTrend(100, 100.1, 99.9, 100)
	assert.Equal(t, model.TrendSideways, dir)
}

func TestClassifyTrend_StrengthThresholdsAreRelativeToPrice(t *testing.T) {
	// spread = |9|/30000*100 = 0.03% -> weak
	_, weak := ClassifyTrend(30009, 30000, 29990, 30000)
	assert.Equal(t, model.StrengthWeak, weak)

	// spread = |100|/30000*100 = 0.33% -> moderate
	_, moderate := ClassifyTrend(30100, 30000, 29990, 30000)
	assert.Equal(t, model.StrengthModerate, moderate)

	// spread = |400|/30000*100 = 1.33% -> strong
	_, strong := ClassifyTrend(30400, 30000, 29990, 30000)
	assert.Equal(t, model.StrengthStrong, strong)
}

func TestVolumeRatio_DefaultsToOneOnInsufficientHistory(t *testing.T) {
	closes := []float64{100, 101}
	ratio := VolumeRatio(candleSeries(closes), 20)
	assert.Equal(t, 1.0, ratio)
}
