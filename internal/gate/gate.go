// Package gate implements the Signal Quality Gate: an ordered, deterministic
// chain of filters that Gate.Evaluate applies to a Proposal in turn. The
// chain's accumulated attenuation multiplier becomes the final size factor;
// any rejection aborts the chain immediately, mirroring the teacher's
// ValidateAll ordered-filter-chain pattern.
package gate

import (
	"fmt"

	"tradecore/internal/logging"
	"tradecore/internal/model"
)

// DecisionKind classifies a filter's verdict.
type DecisionKind int

const (
	DecisionPass DecisionKind = iota
	DecisionAttenuate
	DecisionReject
)

// Decision is a sum type for a single filter verdict (pass, attenuate or
// reject). Evaluate runs its filters inline and reports through Result; it
// does not produce Decision values.
type Decision struct {
	Kind       DecisionKind
	Multiplier float64
	Reason     string
}

// BlacklistChecker reports whether a symbol is currently blacklisted.
type BlacklistChecker interface {
	IsBlacklisted(symbol string) bool
}

// ExposureChecker reports the engine's current and allocated exposure.
type ExposureChecker interface {
	Allocation(engine string) (allocatedUsd, exposureUsd float64, ok bool)
}

// CorrelationChecker reports how many open positions exist in a symbol's
// correlation group.
type CorrelationChecker interface {
	GroupOpenCount(symbol string) (count int, cap int)
}

// RiskChecker reports whether the global risk monitor currently allows new
// entries.
type RiskChecker interface {
	CanOpen() bool
}

// Config tunes the gate's thresholds, all of which are documented defaults
// exposed for override per symbol/regime.
type Config struct {
	TrendingMinConfidence    float64
	OtherMinConfidence       float64
	AttenuatedConfidenceLow  float64
	AttenuatedConfidenceHigh float64
	MomentumLookback         int
	MomentumMoveThresholdPct float64
	RSIOverbought            float64
	RSIOversold              float64
	VolumeRatioFull          float64
	VolumeRatioPartial       float64
	VolumeRatioReject        float64
	VolumeBonusThreshold     float64
	CorrelationGroupCap      int
}

// DefaultConfig returns the gate's documented default thresholds.
func DefaultConfig() Config {
	return Config{
		TrendingMinConfidence:    60,
		OtherMinConfidence:       65,
		AttenuatedConfidenceLow:  50,
		AttenuatedConfidenceHigh: 70,
		MomentumLookback:         5,
		MomentumMoveThresholdPct: 0.3,
		RSIOverbought:            70,
		RSIOversold:              30,
		VolumeRatioFull:          1.5,
		VolumeRatioPartial:       1.0,
		VolumeRatioReject:        0.8,
		VolumeBonusThreshold:     2.5,
		CorrelationGroupCap:      2,
	}
}

// Gate runs the full ordered filter chain against a Proposal.
type Gate struct {
	cfg         Config
	blacklist   BlacklistChecker
	exposure    ExposureChecker
	correlation CorrelationChecker
	risk        RiskChecker
}

// New constructs a Gate wired to its collaborating components.
func New(cfg Config, blacklist BlacklistChecker, exposure ExposureChecker, correlation CorrelationChecker, risk RiskChecker) *Gate {
	return &Gate{cfg: cfg, blacklist: blacklist, exposure: exposure, correlation: correlation, risk: risk}
}

// Result is the gate's final verdict: either an AcceptedTrade-in-waiting
// (confidence adjusted, multiplier applied, useTightTrailing flagged) or a
// rejection reason.
type Result struct {
	Accepted         bool
	Proposal         model.Proposal
	Multiplier       float64
	UseTightTrailing bool
	RejectReason     string
}

// Evaluate runs symbol, proposal, baseCandles (base-timeframe window),
// micro-timeframe views (may be absent), and the candidate's engine name
// through the eleven ordered filters.
func (g *Gate) Evaluate(engine string, p model.Proposal, baseCandles []model.Candle, micro1m, micro5m *model.TimeframeView) Result {
	confidence := p.Confidence
	multiplier := 1.0
	useTightTrailing := false

	log := logging.Component("gate")
	logReject := func(reason string) {
		log.Info().Str("symbol", p.Symbol).Str("reason", reason).Msg("gate rejected proposal")
	}

	// 1. BlacklistFilter
	if g.blacklist != nil && g.blacklist.IsBlacklisted(p.Symbol) {
		reason := fmt.Sprintf("%s is blacklisted", p.Symbol)
		logReject(reason)
		return Result{Accepted: false, RejectReason: reason}
	}

	// 2. RegimeFilter
	if p.Context.Regime == model.RegimeChoppy || p.Context.Regime == model.RegimeSideways {
		reason := fmt.Sprintf("regime %s excluded, no bypass", p.Context.Regime)
		return Result{Accepted: false, RejectReason: reason}
	}

	// 3. ConfidenceFilter
	minConf := g.cfg.OtherMinConfidence
	if p.Context.Regime == model.RegimeTrending {
		minConf = g.cfg.TrendingMinConfidence
	}
	if confidence < minConf {
		return Result{Accepted: false, RejectReason: fmt.Sprintf("confidence %.1f below %s minimum %.1f", confidence, p.Context.Regime, minConf)}
	}
	if confidence >= g.cfg.AttenuatedConfidenceLow && confidence < g.cfg.AttenuatedConfidenceHigh {
		multiplier *= 0.5
	}

	// 4. DirectionAligner — side is already forced to the analyzer's
	// dominant direction upstream in Proposal construction; nothing to do
	// here beyond trusting p.Side.

	// 5. MomentumValidator
	if len(baseCandles) >= g.cfg.MomentumLookback+1 {
		window := baseCandles[len(baseCandles)-g.cfg.MomentumLookback:]
		moveFrom := window[0].Close
		moveTo := window[len(window)-1].Close
		if moveFrom != 0 {
			movePct := (moveTo - moveFrom) / moveFrom * 100
			if p.Side == model.SideLong && movePct < -g.cfg.MomentumMoveThresholdPct {
				return Result{Accepted: false, RejectReason: "LONG rejected: recent momentum fell more than threshold"}
			}
			if p.Side == model.SideShort && movePct > g.cfg.MomentumMoveThresholdPct {
				return Result{Accepted: false, RejectReason: "SHORT rejected: recent momentum rose more than threshold"}
			}
		}
	}
	if base15m, ok := p.Context.Views["15m"]; ok {
		if p.Side == model.SideLong && base15m.RSI14 > g.cfg.RSIOverbought {
			return Result{Accepted: false, RejectReason: "LONG rejected: 15m RSI overbought"}
		}
		if p.Side == model.SideShort && base15m.RSI14 < g.cfg.RSIOversold {
			return Result{Accepted: false, RejectReason: "SHORT rejected: 15m RSI oversold"}
		}
	}

	// 6. MicroAligner (optional)
	if micro1m != nil && micro5m != nil {
		match1m := micro1m.TrendDirection == trendForSide(p.Side)
		match5m := micro5m.TrendDirection == trendForSide(p.Side)
		switch {
		case match1m && match5m:
			confidence += 10
		case !match1m && !match5m:
			return Result{Accepted: false, RejectReason: "micro timeframes both contradict side"}
		}
	}

	// 7. VolumeConfirmer
	if base15m, ok := p.Context.Views["15m"]; ok {
		switch {
		case base15m.VolumeRatio < g.cfg.VolumeRatioReject:
			return Result{Accepted: false, RejectReason: "volume ratio below reject threshold"}
		case base15m.VolumeRatio < g.cfg.VolumeRatioFull:
			multiplier *= 0.6
		}
		if base15m.VolumeRatio > g.cfg.VolumeBonusThreshold {
			confidence += 10
		}
	}

	// 8. BreakoutDetector
	if base15m, ok := p.Context.Views["15m"]; ok {
		if p.Context.NearestResistance > 0 && base15m.Close > p.Context.NearestResistance && base15m.VolumeRatio >= g.cfg.VolumeRatioFull {
			confidence += 15
			useTightTrailing = true
		}
	}

	// 9. ExposureGate
	if g.exposure != nil {
		allocated, exposure, ok := g.exposure.Allocation(engine)
		if ok && exposure >= allocated {
			return Result{Accepted: false, RejectReason: "engine exposure would exceed allocated capital"}
		}
	}

	// 10. CorrelationGate
	if g.correlation != nil {
		count, cap := g.correlation.GroupOpenCount(p.Symbol)
		groupCap := g.cfg.CorrelationGroupCap
		if cap > 0 {
			groupCap = cap
		}
		if count > groupCap-1 {
			return Result{Accepted: false, RejectReason: "correlation group position cap reached"}
		}
	}

	// 11. GlobalRiskGate
	if g.risk != nil && !g.risk.CanOpen() {
		return Result{Accepted: false, RejectReason: "global risk monitor disallows new entries"}
	}

	p.Confidence = clamp(confidence, 0, 100)
	return Result{
		Accepted:         true,
		Proposal:         p,
		Multiplier:       multiplier,
		UseTightTrailing: useTightTrailing,
	}
}

func trendForSide(side model.Side) model.TrendDirection {
	if side == model.SideLong {
		return model.TrendUp
	}
	return model.TrendDown
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
