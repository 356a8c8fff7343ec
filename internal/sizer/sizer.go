// Package sizer turns a gate-accepted Proposal into a fully sized
// AcceptedTrade: position size percentage, leverage, and dollar notional,
// grounded on the confidence-tier sizing and Kelly-guard approach.
package sizer

import (
	"math"

	"tradecore/internal/model"
)

const (
	defaultMinSizePct      = 8.0
	defaultMaxSizePct      = 25.0
	defaultMinLeverage     = 1
	defaultHardLeverageCap = 8
)

// Config bounds the position-size percentage and leverage the sizer will
// ever output, regardless of confidence tier or attenuation.
type Config struct {
	MinSizePct  float64
	MaxSizePct  float64
	MinLeverage int
	MaxLeverage int
}

// DefaultConfig returns the documented size/leverage bounds.
func DefaultConfig() Config {
	return Config{
		MinSizePct:  defaultMinSizePct,
		MaxSizePct:  defaultMaxSizePct,
		MinLeverage: defaultMinLeverage,
		MaxLeverage: defaultHardLeverageCap,
	}
}

// SymbolStats summarizes a symbol's recent closed-trade history, used for
// the Kelly guard and the consecutive-loss halving rule.
type SymbolStats struct {
	ClosedTrades       int
	WinRate            float64 // over last 20 closed trades
	RewardRiskRatio    float64
	ConsecutiveLosses  int
}

// Sizer computes size and leverage for accepted proposals.
type Sizer struct {
	cfg Config
}

// New returns a Sizer bounded by cfg.
func New(cfg Config) *Sizer { return &Sizer{cfg: cfg} }

// Size computes the sizePct/leverage/sizeUsd for a proposal that has
// already cleared the gate, given the gate's accumulated attenuation
// multiplier, the symbol's recent stats, and the capital available to the
// engine. Returns ok=false when the confidence is below the lowest sizing
// tier (60) or the resulting sizeUsd is not positive; a sizeUsd above
// availableUsd is capped to availableUsd rather than rejected.
func (s *Sizer) Size(p model.Proposal, attenuation float64, stats SymbolStats, availableUsd float64, regime model.Regime) (model.AcceptedTrade, bool) {
	sizePct := baseSizePctForTier(p.Confidence)
	if sizePct == 0 {
		return model.AcceptedTrade{}, false
	}

	sizePct *= attenuation

	if stats.ClosedTrades >= 10 {
		kelly := stats.WinRate - (1-stats.WinRate)/max(stats.RewardRiskRatio, 0.01)
		kellyPositive := math.Max(kelly, 0)
		factor := 0.15
		if stats.WinRate >= 0.40 {
			factor = 0.25
		}
		kellyCap := factor * kellyPositive * 100
		if sizePct > kellyCap {
			sizePct = kellyCap
		}
	}

	sizePct = clamp(sizePct, s.cfg.MinSizePct, s.cfg.MaxSizePct)

	leverage := leverageForTier(p.Confidence)
	if regime == model.RegimeHighVol || regime == model.RegimeChoppy {
		leverage = int(math.Round(float64(leverage) * 0.5))
	}
	if stats.ConsecutiveLosses >= 2 {
		sizePct /= 2
		leverage = int(math.Round(float64(leverage) / 2))
	}
	if leverage < s.cfg.MinLeverage {
		leverage = s.cfg.MinLeverage
	}
	if leverage > s.cfg.MaxLeverage {
		leverage = s.cfg.MaxLeverage
	}

	sizeUsd := availableUsd * sizePct / 100
	if sizeUsd > availableUsd {
		sizeUsd = availableUsd
	}
	if sizeUsd <= 0 {
		return model.AcceptedTrade{}, false
	}

	stopDistancePct := 0.0
	if p.EntryPrice != 0 {
		stopDistancePct = math.Abs(p.EntryPrice-p.StopLoss) / p.EntryPrice * 100
	}

	return model.AcceptedTrade{
		Proposal:               p,
		SizePct:                sizePct,
		SizeUsd:                sizeUsd,
		Leverage:               leverage,
		EffectiveStopLossPct:   stopDistancePct,
		EffectiveStopLossPrice: p.StopLoss,
	}, true
}

func baseSizePctForTier(confidence float64) float64 {
	switch {
	case confidence >= 90:
		return 20
	case confidence >= 80:
		return 18
	case confidence >= 70:
		return 15
	case confidence >= 60:
		return 12
	default:
		return 0
	}
}

func leverageForTier(confidence float64) int {
	switch {
	case confidence >= 90:
		return 8
	case confidence >= 80:
		return 6
	case confidence >= 70:
		return 5
	default:
		return 3
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
