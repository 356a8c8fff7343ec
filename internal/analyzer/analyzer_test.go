package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

type fakeSource struct {
	series map[string][]model.Candle
}

func (f *fakeSource) Candles(symbol, timeframe string, limit int) []model.Candle {
	data := f.series[symbol+":"+timeframe]
	if limit > 0 && len(data) > limit {
		return data[len(data)-limit:]
	}
	return data
}

func uptrendCandles(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		price += 1.0
		out[i] = model.Candle{
			OpenTime: t.Add(time.Duration(i) * time.Hour),
			Open:     price - 1,
			High:     price + 0.5,
			Low:      price - 1.5,
			Close:    price,
			Volume:   1000 + float64(i),
		}
	}
	return out
}

func TestAnalyze_StrongUptrendProducesLongProposal(t *testing.T) {
	src := &fakeSource{series: map[string][]model.Candle{
		"ETHUSDT:15m": uptrendCandles(250, 100),
		"ETHUSDT:1h":  uptrendCandles(250, 100),
		"ETHUSDT:4h":  uptrendCandles(250, 100),
		"BTCUSDT:4h":  uptrendCandles(250, 100),
	}}
	cfg := DefaultConfig()
	a := New(cfg, src)

	ctx, proposal := a.Analyze("ETHUSDT")
	assert.NotEmpty(t, ctx.Views)
	if assert.NotNil(t, proposal) {
		assert.Equal(t, model.SideLong, proposal.Side)
		assert.GreaterOrEqual(t, proposal.Confidence, cfg.MinConfidence)
		assert.LessOrEqual(t, proposal.Confidence, 100.0)
	}
}

func TestAnalyze_InsufficientHistoryYieldsNoProposal(t *testing.T) {
	src := &fakeSource{series: map[string][]model.Candle{
		"ETHUSDT:15m": uptrendCandles(10, 100),
	}}
	a := New(DefaultConfig(), src)
	_, proposal := a.Analyze("ETHUSDT")
	assert.Nil(t, proposal)
}

func TestComputeAlignment_AllAgreeGivesFullScoreAndBonus(t *testing.T) {
	views := map[string]model.TimeframeView{
		"4h":  {TrendDirection: model.TrendUp},
		"1h":  {TrendDirection: model.TrendUp},
		"15m": {TrendDirection: model.TrendUp},
	}
	weights := map[string]float64{"4h": 0.50, "1h": 0.30, "15m": 0.20}
	res := computeAlignment(views, weights)
	assert.Equal(t, 100.0, res.score)
	assert.Equal(t, 25.0, res.bonus)
	assert.Equal(t, model.TrendUp, res.dominant)
}

func TestComputeAlignment_OneHourContradictsFourHourPenalty(t *testing.T) {
	views := map[string]model.TimeframeView{
		"4h":  {TrendDirection: model.TrendUp},
		"1h":  {TrendDirection: model.TrendDown},
		"15m": {TrendDirection: model.TrendUp},
	}
	weights := map[string]float64{"4h": 0.50, "1h": 0.30, "15m": 0.20}
	res := computeAlignment(views, weights)
	assert.Equal(t, 15.0, res.penalty)
}

func TestClassifyDirection(t *testing.T) {
	assert.Equal(t, model.TrendUp, classifyDirection(105, 100, 95))
	assert.Equal(t, model.TrendDown, classifyDirection(90, 95, 100))
	assert.Equal(t, model.TrendSideways, classifyDirection(97, 100, 95))
}
