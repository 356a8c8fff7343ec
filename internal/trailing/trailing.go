// Package trailing implements the Stop & Trailing Manager: initial
// ATR-based stop placement, the activation/trail state machine, partial
// take-profits, and emergency exit triggers. Adapted from the teacher's
// TrailingStopManager high-water-mark tracker, generalized to ATR-distance
// trailing and regime-adaptive activation thresholds.
package trailing

import (
	"math"
	"time"

	"tradecore/internal/model"
)

// Config tunes the regime-adaptive stop distances and trailing behavior.
type Config struct {
	AtrMultiplierByRegime   map[model.Regime]float64
	MinStopDistancePct      float64
	MaxStopDistancePct      float64
	MaxLossOfPositionPct    float64
	ActivationByRegime      map[model.Regime]float64
	DefaultActivationPct    float64
	TrailMultNormal         float64
	TrailMultTight          float64
	TightProfitThresholdPct float64
	TP1AtrMultiple          float64
	TP1Fraction             float64
	TP2AtrMultiple          float64
	TP2Fraction             float64
	EmergencyPositionLossPct  float64
	EmergencyPortfolioLossPct float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AtrMultiplierByRegime: map[model.Regime]float64{
			model.RegimeTrending: 2.5,
			model.RegimeHighVol:  3.0,
			model.RegimeLowVol:   2.0,
			model.RegimeSideways: 2.0,
		},
		MinStopDistancePct:   1.0,
		MaxStopDistancePct:   5.0,
		MaxLossOfPositionPct: 2.0,
		ActivationByRegime: map[model.Regime]float64{
			model.RegimeTrending: 2.5,
			model.RegimeSideways: 1.5,
		},
		DefaultActivationPct:      2.0,
		TrailMultNormal:           1.5,
		TrailMultTight:            1.0,
		TightProfitThresholdPct:   3.0,
		TP1AtrMultiple:            1.5,
		TP1Fraction:               0.30,
		TP2AtrMultiple:            2.5,
		TP2Fraction:               0.275,
		EmergencyPositionLossPct:  4.0,
		EmergencyPortfolioLossPct: 5.0,
	}
}

// InitialStop computes the entry stop price for a LONG or SHORT position.
// Returns ok=false for CHOPPY regime, which has no defined stop distance
// and must be treated as a rejected entry upstream.
func InitialStop(cfg Config, side model.Side, entry, atr float64, regime model.Regime) (stopPrice float64, ok bool) {
	if regime == model.RegimeChoppy {
		return 0, false
	}
	mult, present := cfg.AtrMultiplierByRegime[regime]
	if !present {
		mult = cfg.AtrMultiplierByRegime[model.RegimeTrending]
	}

	distance := mult * atr
	distancePct := clamp(distance/entry*100, cfg.MinStopDistancePct, cfg.MaxStopDistancePct)
	distance = entry * distancePct / 100

	if side == model.SideLong {
		return entry - distance, true
	}
	return entry + distance, true
}

// Manager applies the trailing rules to the positions passed to it; the
// per-position trailing state lives on the Position itself.
type Manager struct {
	cfg Config
}

// New returns a Manager using cfg.
func New(cfg Config) *Manager { return &Manager{cfg: cfg} }

// Update advances a Position's trailing state given the latest price and
// ATR, and returns any partial exits triggered this tick. It never
// decreases an already-set stop for a LONG, and never increases one for a
// SHORT (monotone trailing).
func (m *Manager) Update(pos *model.Position, currentPrice, atr float64, regime model.Regime, now time.Time) []model.PartialExit {
	var fresh []model.PartialExit

	profitPct := profitPercent(pos, currentPrice)

	if !pos.TrailingActive {
		activation := m.cfg.DefaultActivationPct
		if v, ok := m.cfg.ActivationByRegime[regime]; ok {
			activation = v
		}
		if profitPct >= activation {
			pos.TrailingActive = true
			pos.TrailingPeakPrice = currentPrice
		}
	}

	if pos.Side == model.SideLong {
		if currentPrice > pos.TrailingPeakPrice {
			pos.TrailingPeakPrice = currentPrice
		}
	} else {
		if pos.TrailingPeakPrice == 0 || currentPrice < pos.TrailingPeakPrice {
			pos.TrailingPeakPrice = currentPrice
		}
	}

	if pos.TrailingActive {
		trailMult := m.cfg.TrailMultNormal
		if pos.UseTightTrailing {
			trailMult = 0.5
		} else if profitPct >= m.cfg.TightProfitThresholdPct {
			trailMult = m.cfg.TrailMultTight
		}
		trailDistance := trailMult * atr

		if pos.Side == model.SideLong {
			newStop := pos.TrailingPeakPrice - trailDistance
			if newStop > pos.Stop {
				pos.Stop = newStop
			}
		} else {
			newStop := pos.TrailingPeakPrice + trailDistance
			if pos.Stop == 0 || newStop < pos.Stop {
				pos.Stop = newStop
			}
		}
	}

	rMultiple := currentRMultiple(pos, currentPrice)

	tp1Threshold := atr * m.cfg.TP1AtrMultiple
	tp2Threshold := atr * m.cfg.TP2AtrMultiple
	profitDistance := math.Abs(currentPrice - pos.EntryPrice)

	closedTP1, closedTP2 := hasPartial(pos, "TP1"), hasPartial(pos, "TP2")

	if !closedTP1 && favorableDistance(pos.Side, pos.EntryPrice, currentPrice) >= 0 && profitDistance >= tp1Threshold {
		exit := model.PartialExit{Timestamp: now, Fraction: m.cfg.TP1Fraction, Price: currentPrice, RMultiple: rMultiple, Reason: "TP1"}
		pos.PartialExits = append(pos.PartialExits, exit)
		pos.RemainingFraction -= m.cfg.TP1Fraction
		fresh = append(fresh, exit)
	}
	if !closedTP2 && favorableDistance(pos.Side, pos.EntryPrice, currentPrice) >= 0 && profitDistance >= tp2Threshold {
		exit := model.PartialExit{Timestamp: now, Fraction: m.cfg.TP2Fraction, Price: currentPrice, RMultiple: rMultiple, Reason: "TP2"}
		pos.PartialExits = append(pos.PartialExits, exit)
		pos.RemainingFraction -= m.cfg.TP2Fraction
		fresh = append(fresh, exit)
	}
	if pos.RemainingFraction < 0 {
		pos.RemainingFraction = 0
	}

	return fresh
}

// SizeShrinkFactor returns the fraction (<=1) a position's size must be
// scaled by so that a stop-out at stopDistancePct never loses more than
// MaxLossOfPositionPct of the position's value. The stop distance itself
// is never tightened to compensate; size is shrunk instead.
func (m *Manager) SizeShrinkFactor(stopDistancePct float64) float64 {
	if stopDistancePct <= m.cfg.MaxLossOfPositionPct || stopDistancePct <= 0 {
		return 1.0
	}
	return m.cfg.MaxLossOfPositionPct / stopDistancePct
}

// StopHit reports whether the current price has breached the position's
// stop.
func StopHit(pos model.Position, currentPrice float64) bool {
	if pos.Side == model.SideLong {
		return currentPrice <= pos.Stop
	}
	return currentPrice >= pos.Stop
}

// EmergencyPositionExit reports whether a single position's unrealized
// loss exceeds the configured emergency threshold.
func (m *Manager) EmergencyPositionExit(pos model.Position, currentPrice float64) bool {
	lossPct := -profitPercent(&pos, currentPrice)
	return lossPct >= m.cfg.EmergencyPositionLossPct
}

// EmergencyPortfolioExit reports whether the aggregate unrealized loss
// across all open positions exceeds the configured portfolio threshold.
func (m *Manager) EmergencyPortfolioExit(unrealizedLossPctOfPortfolio float64) bool {
	return unrealizedLossPctOfPortfolio >= m.cfg.EmergencyPortfolioLossPct
}

func profitPercent(pos *model.Position, currentPrice float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	if pos.Side == model.SideLong {
		return (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	return (pos.EntryPrice - currentPrice) / pos.EntryPrice * 100
}

func currentRMultiple(pos *model.Position, currentPrice float64) float64 {
	risk := math.Abs(pos.EntryPrice - pos.InitialStop)
	if risk == 0 {
		return 0
	}
	reward := currentPrice - pos.EntryPrice
	if pos.Side == model.SideShort {
		reward = pos.EntryPrice - currentPrice
	}
	return reward / risk
}

func favorableDistance(side model.Side, entry, current float64) float64 {
	if side == model.SideLong {
		return current - entry
	}
	return entry - current
}

func hasPartial(pos *model.Position, reason string) bool {
	for _, pe := range pos.PartialExits {
		if pe.Reason == reason {
			return true
		}
	}
	return false
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
