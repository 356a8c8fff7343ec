package sizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

func TestSize_TierSelectsBaseSizePct(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 1.0, SymbolStats{}, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.Equal(t, 20.0, trade.SizePct)
	assert.Equal(t, 8, trade.Leverage)
}

func TestSize_BelowMinimumTierRejected(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 40, EntryPrice: 100, StopLoss: 98}
	_, ok := s.Size(p, 1.0, SymbolStats{}, 10000, model.RegimeTrending)
	assert.False(t, ok)
}

func TestSize_ClampedToMaxSizePct(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 2.0, SymbolStats{}, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.LessOrEqual(t, trade.SizePct, 25.0)
}

func TestSize_ClampedToMinSizePct(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 65, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 0.1, SymbolStats{}, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, trade.SizePct, 8.0)
}

func TestSize_HighVolHalvesLeverage(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 1.0, SymbolStats{}, 10000, model.RegimeHighVol)
	assert.True(t, ok)
	assert.Equal(t, 4, trade.Leverage)
}

func TestSize_ConsecutiveLossesHalveSizeAndLeverage(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 1.0, SymbolStats{ConsecutiveLosses: 2}, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.Equal(t, 10.0, trade.SizePct)
	assert.Equal(t, 4, trade.Leverage)
}

func TestSize_LeverageNeverExceedsHardCap(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 1.0, SymbolStats{}, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.LessOrEqual(t, trade.Leverage, 8)
}

func TestSize_KellyGuardCapsSizeAfterTenTrades(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	stats := SymbolStats{ClosedTrades: 12, WinRate: 0.45, RewardRiskRatio: 1.2}
	trade, ok := s.Size(p, 1.0, stats, 10000, model.RegimeTrending)
	assert.True(t, ok)
	assert.LessOrEqual(t, trade.SizePct, 20.0)
}

func TestSize_SizeUsdNeverExceedsAvailableCapital(t *testing.T) {
	s := New(DefaultConfig())
	p := model.Proposal{Confidence: 95, EntryPrice: 100, StopLoss: 98}
	trade, ok := s.Size(p, 1.0, SymbolStats{}, 500, model.RegimeTrending)
	assert.True(t, ok)
	assert.LessOrEqual(t, trade.SizeUsd, 500.0)
}
