package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/clock"
)

func TestCanOpen_TripsOnDailyLossLimit(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := New(DefaultConfig(), fake)

	m.RecordRealizedPnl(-500, 10000) // -5% > 4% limit
	assert.False(t, m.CanOpen())
}

func TestCanOpen_ExitsAlwaysAllowedConceptually(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := New(DefaultConfig(), fake)
	m.RecordRealizedPnl(-500, 10000)
	assert.False(t, m.CanOpen())
	// Exits are gated separately by the position manager, not CanOpen;
	// the monitor only vetoes new entries.
}

func TestCanOpen_ClearsAfterCooldown(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := New(DefaultConfig(), fake)
	m.RecordRealizedPnl(-500, 10000)
	assert.False(t, m.CanOpen())

	fake.Advance(DefaultConfig().CircuitBreakerCooldown + time.Minute)
	assert.True(t, m.CanOpen())
}

func TestDayRollover_ResetsDailyPnlAndBreakerPreservesPeak(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 23, 50, 0, 0, time.UTC))
	m := New(DefaultConfig(), fake)
	m.RecordRealizedPnl(-500, 10000)
	assert.False(t, m.CanOpen())

	before := m.Snapshot()
	assert.Equal(t, 10000.0, before.PeakPortfolioValue)

	fake.Advance(20 * time.Minute) // crosses UTC midnight
	assert.True(t, m.CanOpen())

	after := m.Snapshot()
	assert.Equal(t, 0.0, after.DailyPnl)
	assert.False(t, after.CircuitBreakerActive)
	assert.Equal(t, 10000.0, after.PeakPortfolioValue, "peak portfolio value must be unchanged across rollover")
}

func TestCanOpen_NoTripUnderThreshold(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := New(DefaultConfig(), fake)
	m.RecordRealizedPnl(-100, 10000) // -1%, below 4% limit
	assert.True(t, m.CanOpen())
}
