// Package risk implements the Global Risk Monitor: a circuit breaker that
// trips on daily loss or portfolio drawdown rather than on failure counts,
// adapted from the teacher's CircuitBreaker state machine and RiskManager
// drawdown check.
package risk

import (
	"sync"
	"time"

	"tradecore/internal/clock"
	"tradecore/internal/logging"
	"tradecore/internal/model"
)

// BreakerState mirrors the teacher's closed/open/half-open circuit breaker
// states, retargeted to loss/drawdown triggers instead of failure counts.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// Config tunes the monitor's trip thresholds and cooldown.
type Config struct {
	DailyLossLimitPct     float64
	MaxDrawdownPct        float64
	CircuitBreakerCooldown time.Duration
}

// DefaultConfig returns conservative defaults consistent with the
// documented scenarios (4% daily loss limit).
func DefaultConfig() Config {
	return Config{
		DailyLossLimitPct:      4.0,
		MaxDrawdownPct:         10.0,
		CircuitBreakerCooldown: 60 * time.Minute,
	}
}

// Monitor is the Global Risk Monitor: the single owner of RiskState,
// replacing the teacher's package-level singleton with an explicit,
// mutex-guarded component that engines hold a handle to.
type Monitor struct {
	cfg   Config
	clock clock.Clock
	mu    sync.RWMutex
	state model.RiskState
}

// New constructs a Monitor with its daily epoch anchored to the current
// UTC day.
func New(cfg Config, c clock.Clock) *Monitor {
	now := c.Now().UTC()
	return &Monitor{
		cfg:   cfg,
		clock: c,
		state: model.RiskState{DayEpoch: dayStart(now)},
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordRealizedPnl applies a closed trade's PnL to the daily total and
// updates the portfolio's peak value for drawdown tracking.
func (m *Monitor) RecordRealizedPnl(pnl, portfolioValue float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverIfNeeded()

	m.state.DailyPnl += pnl
	if portfolioValue > m.state.PeakPortfolioValue {
		m.state.PeakPortfolioValue = portfolioValue
	}
	m.evaluateTrip(portfolioValue)
}

// rolloverIfNeeded resets dailyPnl and clears the breaker at UTC midnight,
// leaving peakPortfolioValue untouched, per the day-rollover invariant.
func (m *Monitor) rolloverIfNeeded() {
	now := m.clock.Now().UTC()
	today := dayStart(now)
	if today.After(m.state.DayEpoch) {
		m.state.DayEpoch = today
		m.state.DailyPnl = 0
		m.state.CircuitBreakerActive = false
		riskLog := logging.Component("risk")
		riskLog.Info().Msg("daily risk counters reset at UTC rollover")
	}
}

func (m *Monitor) evaluateTrip(portfolioValue float64) {
	dailyLossPct := 0.0
	if portfolioValue > 0 {
		dailyLossPct = -m.state.DailyPnl / portfolioValue * 100
	}

	drawdownPct := 0.0
	if m.state.PeakPortfolioValue > 0 {
		drawdownPct = (m.state.PeakPortfolioValue - portfolioValue) / m.state.PeakPortfolioValue * 100
	}

	if dailyLossPct > m.cfg.DailyLossLimitPct || drawdownPct > m.cfg.MaxDrawdownPct {
		if !m.state.CircuitBreakerActive {
			riskLog := logging.Component("risk")
			riskLog.Warn().
				Float64("dailyLossPct", dailyLossPct).
				Float64("drawdownPct", drawdownPct).
				Msg("circuit breaker tripped")
		}
		m.state.CircuitBreakerActive = true
		m.state.CircuitBreakerUntil = m.clock.Now().Add(m.cfg.CircuitBreakerCooldown)
	}
}

// CanOpen reports whether new entries are currently permitted. Existing
// positions may still exit regardless of breaker state.
func (m *Monitor) CanOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverIfNeeded()

	if !m.state.CircuitBreakerActive {
		return true
	}
	if m.clock.Now().After(m.state.CircuitBreakerUntil) {
		m.state.CircuitBreakerActive = false
		return true
	}
	return false
}

// Snapshot returns a copy of the monitor's current state for status
// reporting.
func (m *Monitor) Snapshot() model.RiskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
