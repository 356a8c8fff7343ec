package trailing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

func TestInitialStop_ChoppyRegimeRejected(t *testing.T) {
	_, ok := InitialStop(DefaultConfig(), model.SideLong, 100, 1, model.RegimeChoppy)
	assert.False(t, ok)
}

func TestInitialStop_BoundedToOneToFivePercent(t *testing.T) {
	stop, ok := InitialStop(DefaultConfig(), model.SideLong, 100, 10, model.RegimeTrending)
	assert.True(t, ok)
	distPct := (100 - stop) / 100 * 100
	assert.GreaterOrEqual(t, distPct, 1.0)
	assert.LessOrEqual(t, distPct, 5.0)
}

func TestUpdate_TrailingStopNeverDecreasesForLong(t *testing.T) {
	m := New(DefaultConfig())
	pos := &model.Position{
		Side:        model.SideLong,
		EntryPrice:  100,
		InitialStop: 98.5,
		Stop:        98.5,
	}

	prices := []float64{101, 103, 105, 104, 106}
	now := time.Now()
	var lastStop float64 = pos.Stop
	for _, price := range prices {
		m.Update(pos, price, 1.0, model.RegimeTrending, now)
		assert.GreaterOrEqual(t, pos.Stop, lastStop, "stop must never decrease")
		lastStop = pos.Stop
	}
}

func TestUpdate_TrailingStopNeverIncreasesForShort(t *testing.T) {
	m := New(DefaultConfig())
	pos := &model.Position{
		Side:        model.SideShort,
		EntryPrice:  100,
		InitialStop: 101.5,
		Stop:        101.5,
	}

	prices := []float64{99, 97, 95, 96, 94}
	now := time.Now()
	lastStop := pos.Stop
	for _, price := range prices {
		m.Update(pos, price, 1.0, model.RegimeTrending, now)
		assert.LessOrEqual(t, pos.Stop, lastStop, "stop must never increase for a short")
		lastStop = pos.Stop
	}
}

func TestUpdate_TP1AndTP2PartialExitsRecorded(t *testing.T) {
	m := New(DefaultConfig())
	pos := &model.Position{
		Side:              model.SideLong,
		EntryPrice:        100,
		InitialStop:       98,
		Stop:              98,
		RemainingFraction: 1.0,
	}
	now := time.Now()

	m.Update(pos, 101.6, 1.0, model.RegimeTrending, now) // atr*1.5 = 1.5
	assert.Len(t, pos.PartialExits, 1)

	m.Update(pos, 102.6, 1.0, model.RegimeTrending, now) // atr*2.5 = 2.5
	assert.Len(t, pos.PartialExits, 2)
	assert.Less(t, pos.RemainingFraction, 1.0)
}

func TestStopHit_LongTriggersAtOrBelowStop(t *testing.T) {
	pos := model.Position{Side: model.SideLong, Stop: 98}
	assert.True(t, StopHit(pos, 97.9))
	assert.False(t, StopHit(pos, 98.1))
}

func TestEmergencyPositionExit_TriggersAboveThreshold(t *testing.T) {
	m := New(DefaultConfig())
	pos := model.Position{Side: model.SideLong, EntryPrice: 100}
	assert.True(t, m.EmergencyPositionExit(pos, 95.5))
	assert.False(t, m.EmergencyPositionExit(pos, 97))
}
