package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

type stubBlacklist struct{ symbols map[string]bool }

func (s stubBlacklist) IsBlacklisted(symbol string) bool { return s.symbols[symbol] }

type stubExposure struct{ allocated, exposure float64 }

func (s stubExposure) Allocation(engine string) (float64, float64, bool) {
	return s.allocated, s.exposure, true
}

type stubCorrelation struct{ count, cap int }

func (s stubCorrelation) GroupOpenCount(symbol string) (int, int) { return s.count, s.cap }

type stubRisk struct{ open bool }

func (s stubRisk) CanOpen() bool { return s.open }

func baseProposal() model.Proposal {
	return model.Proposal{
		Symbol:     "ETHUSDT",
		Side:       model.SideLong,
		EntryPrice: 100,
		Confidence: 75,
		Context: model.MarketContext{
			Regime: model.RegimeTrending,
			Views: map[string]model.TimeframeView{
				"15m": {RSI14: 55, VolumeRatio: 1.8, Close: 100},
			},
		},
	}
}

func candles(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Close: c}
	}
	return out
}

func newGate() *Gate {
	return New(DefaultConfig(),
		stubBlacklist{symbols: map[string]bool{}},
		stubExposure{allocated: 1000, exposure: 100},
		stubCorrelation{count: 0, cap: 2},
		stubRisk{open: true},
	)
}

func TestEvaluate_DeterministicAcrossRepeatedCalls(t *testing.T) {
	g := newGate()
	p := baseProposal()
	c := candles(100, 100.1, 100.2, 100.1, 100.3, 100.2)

	r1 := g.Evaluate("engineA", p, c, nil, nil)
	r2 := g.Evaluate("engineA", p, c, nil, nil)

	assert.Equal(t, r1, r2)
	assert.True(t, r1.Accepted)
}

func TestEvaluate_RejectsBlacklistedSymbol(t *testing.T) {
	g := New(DefaultConfig(), stubBlacklist{symbols: map[string]bool{"ETHUSDT": true}}, stubExposure{allocated: 1000}, stubCorrelation{}, stubRisk{open: true})
	r := g.Evaluate("engineA", baseProposal(), candles(100, 100, 100), nil, nil)
	assert.False(t, r.Accepted)
}

func TestEvaluate_RejectsChoppyRegimeWithNoBypass(t *testing.T) {
	g := newGate()
	p := baseProposal()
	p.Confidence = 99
	p.Context.Regime = model.RegimeChoppy
	r := g.Evaluate("engineA", p, candles(100, 100, 100), nil, nil)
	assert.False(t, r.Accepted)
}

func TestEvaluate_RejectsBelowRegimeAwareMinConfidence(t *testing.T) {
	g := newGate()
	p := baseProposal()
	p.Confidence = 55
	p.Context.Regime = model.RegimeHighVol
	r := g.Evaluate("engineA", p, candles(100, 100, 100), nil, nil)
	assert.False(t, r.Accepted, "HIGH_VOL requires the 65 threshold, not the 60 TRENDING threshold")
}

func TestEvaluate_RejectsLongAfterSharpDrop(t *testing.T) {
	g := newGate()
	p := baseProposal()
	r := g.Evaluate("engineA", p, candles(100, 99.9, 99.8, 99.7, 99.6, 99.5), nil, nil)
	assert.False(t, r.Accepted)
}

func TestEvaluate_MicroTimeframesBothContradictReject(t *testing.T) {
	g := newGate()
	p := baseProposal()
	down := model.TimeframeView{TrendDirection: model.TrendDown}
	r := g.Evaluate("engineA", p, candles(100, 100.1, 100.2, 100.1, 100.3, 100.2), &down, &down)
	assert.False(t, r.Accepted)
}

func TestEvaluate_RejectsOnGlobalRiskClosed(t *testing.T) {
	g := New(DefaultConfig(), stubBlacklist{symbols: map[string]bool{}}, stubExposure{allocated: 1000}, stubCorrelation{}, stubRisk{open: false})
	r := g.Evaluate("engineA", baseProposal(), candles(100, 100.1, 100.2, 100.1, 100.3, 100.2), nil, nil)
	assert.False(t, r.Accepted)
}

func TestEvaluate_CorrelationGroupCapReached(t *testing.T) {
	g := New(DefaultConfig(), stubBlacklist{symbols: map[string]bool{}}, stubExposure{allocated: 1000}, stubCorrelation{count: 2, cap: 2}, stubRisk{open: true})
	r := g.Evaluate("engineA", baseProposal(), candles(100, 100.1, 100.2, 100.1, 100.3, 100.2), nil, nil)
	assert.False(t, r.Accepted)
}
