package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/clock"
	"tradecore/internal/events"
	"tradecore/internal/model"
	"tradecore/internal/risk"
)

// fakeEngine is a minimal in-memory double satisfying the Engine interface,
// letting the supervision loop be exercised without a real BaseEngine.
type fakeEngine struct {
	mu         sync.Mutex
	name       string
	heartbeat  time.Time
	started    int
	stopped    int
	closedAll  int
	positions  []model.Position
	startErr   error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	return nil
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeEngine) Heartbeat() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeat
}

func (f *fakeEngine) setHeartbeat(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeat = t
}

func (f *fakeEngine) Health() model.EngineHealth { return model.EngineHealth{Name: f.name} }

func (f *fakeEngine) Positions() []model.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions
}

func (f *fakeEngine) EmergencyCloseAll(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedAll++
	f.positions = nil
}

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestStart_RejectsOverAllocatedCapital(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o := New(DefaultConfig(), fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	o.Register(&fakeEngine{name: "futures"}, 70, true)
	o.Register(&fakeEngine{name: "spot"}, 40, true)

	err := o.Start(context.Background())
	require.Error(t, err)
}

func TestStart_SpawnsEnabledEnginesOnly(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Hour
	o := New(cfg, fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	futures := &fakeEngine{name: "futures", heartbeat: fc.Now()}
	spot := &fakeEngine{name: "spot", heartbeat: fc.Now()}
	o.Register(futures, 60, true)
	o.Register(spot, 40, false)

	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	assert.Equal(t, 1, futures.startCount())
	assert.Equal(t, 0, spot.startCount())
}

func TestMonitorTick_RestartsEngineWithStaleHeartbeat(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Hour // drive monitorTick manually, not via ticker
	cfg.Health.RestartAfter = 10 * time.Second
	cfg.RestartBackoff = 0
	o := New(cfg, fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	futures := &fakeEngine{name: "futures", heartbeat: fc.Now()}
	o.Register(futures, 100, true)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	assert.Equal(t, 1, futures.startCount())

	// Heartbeat never advances; fast-forward the clock past RestartAfter.
	fc.Advance(time.Minute)
	o.monitorTick(context.Background())

	assert.Equal(t, 1, futures.stopCount())
	assert.Equal(t, 2, futures.startCount())
}

func TestMonitorTick_MarksEngineErrorOnceRestartBudgetExhausted(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Hour
	cfg.Health.RestartAfter = 10 * time.Second
	cfg.Health.MaxRestartAttempts = 1
	cfg.RestartBackoff = 0
	o := New(cfg, fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	futures := &fakeEngine{name: "futures", heartbeat: fc.Now()}
	o.Register(futures, 100, true)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	fc.Advance(time.Minute)
	o.monitorTick(context.Background()) // consumes the one allowed restart
	fc.Advance(time.Minute)
	o.monitorTick(context.Background()) // budget now exhausted

	assert.Equal(t, model.EngineError, o.Health()["futures"].Status)
}

func TestEngineIsolation_OneEngineCrashDoesNotAffectAnother(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Hour
	cfg.Health.RestartAfter = 10 * time.Second
	cfg.RestartBackoff = 0
	o := New(cfg, fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	stale := &fakeEngine{name: "futures", heartbeat: fc.Now()}
	healthy := &fakeEngine{name: "spot", heartbeat: fc.Now()}
	o.Register(stale, 50, true)
	o.Register(healthy, 50, true)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	fc.Advance(time.Minute)
	healthy.setHeartbeat(fc.Now())
	o.monitorTick(context.Background())

	assert.Equal(t, 2, stale.startCount(), "stale engine should have been restarted")
	assert.Equal(t, 1, healthy.startCount(), "healthy engine should be untouched")
	assert.Equal(t, 0, healthy.stopCount())
}

func TestCircuitBreakerTrip_FlattensEveryEngine(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Hour
	riskCfg := risk.DefaultConfig()
	riskCfg.MaxDrawdownPct = 1
	riskMonitor := risk.New(riskCfg, fc)
	o := New(cfg, fc, events.NewBus(), riskMonitor, nil, func() float64 { return 10000 })

	futures := &fakeEngine{name: "futures", heartbeat: fc.Now(), positions: []model.Position{{Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 1}}}
	o.Register(futures, 100, true)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	// Record a large realized loss against a small portfolio to trip the
	// daily-loss breaker deterministically.
	riskMonitor.RecordRealizedPnl(-5000, 10000)

	o.monitorTick(context.Background())

	assert.Equal(t, 1, futures.closedAll)
	assert.Empty(t, futures.Positions())
}

func TestStop_DrainsWithoutDeadlock(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.MonitorInterval = time.Millisecond
	cfg.ShutdownGracePeriod = time.Second
	o := New(cfg, fc, events.NewBus(), nil, nil, func() float64 { return 10000 })

	e := &fakeEngine{name: "futures", heartbeat: fc.Now()}
	o.Register(e, 100, true)
	require.NoError(t, o.Start(context.Background()))

	time.Sleep(10 * time.Millisecond)
	o.Stop()

	assert.Equal(t, 1, e.stopCount())
}
