package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/analyzer"
	"tradecore/internal/binance"
	"tradecore/internal/blacklist"
	"tradecore/internal/clock"
	"tradecore/internal/events"
	"tradecore/internal/gate"
	"tradecore/internal/marketdata"
	"tradecore/internal/model"
	"tradecore/internal/risk"
	"tradecore/internal/scanner"
	"tradecore/internal/sizer"
	"tradecore/internal/trailing"
)

type fakeJournal struct {
	mu      sync.Mutex
	records []model.TradeRecord
}

func (f *fakeJournal) Append(ctx context.Context, rec model.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeJournal) SymbolStats(ctx context.Context, symbol string, lookback int) (int, float64, float64, error) {
	return 0, 0, 0, nil
}

func (f *fakeJournal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeExposure struct {
	allocated, exposure float64
}

func (f *fakeExposure) Allocation(engine string) (float64, float64, bool) {
	return f.allocated, f.exposure, true
}

type fakeCorrelation struct{}

func (fakeCorrelation) GroupOpenCount(symbol string) (int, int) { return 0, 10 }

func flatCandlesAt(n int, price, vol float64) []model.Candle {
	candles := make([]model.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = model.Candle{OpenTime: base.Add(time.Duration(i) * 15 * time.Minute), Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: vol}
	}
	return candles
}

func newTestDeps(t *testing.T, fakeClock *clock.Fake) (Dependencies, *fakeJournal, *events.Bus) {
	hub := marketdata.NewHub(time.Hour, time.Hour)
	for _, tf := range []string{"15m", "1h", "4h"} {
		for _, c := range flatCandlesAt(70, 100, 1000) {
			hub.UpdateCandle("BTCUSDT", tf, c)
		}
	}
	hub.UpdateTicker(model.Ticker{Symbol: "BTCUSDT", Last: 100})

	bl := blacklist.New(blacklist.Config{Enabled: false})
	bus := events.NewBus()
	riskMonitor := risk.New(risk.DefaultConfig(), fakeClock)
	g := gate.New(gate.DefaultConfig(), bl, &fakeExposure{allocated: 10000, exposure: 0}, fakeCorrelation{}, riskMonitor)
	sz := sizer.New(sizer.DefaultConfig())
	tr := trailing.New(trailing.DefaultConfig())
	an := analyzer.New(analyzer.DefaultConfig(), hub)
	journal := &fakeJournal{}
	mock := binance.NewMockClient()

	scanCfg := scanner.DefaultConfig()
	scanCfg.CacheTTL = 0
	scanCfg.WorkerCount = 2
	sc := scanner.New(mock, mock, bl, scanCfg)

	deps := Dependencies{
		Hub:          hub,
		Scanner:      sc,
		Analyzer:     an,
		Gate:         g,
		Sizer:        sz,
		Trailing:     tr,
		TrailingCfg:  trailing.DefaultConfig(),
		Risk:         riskMonitor,
		Journal:      journal,
		Bus:          bus,
		Blacklist:    bl,
		Exposure:     &fakeExposure{allocated: 10000, exposure: 0},
		Client:       mock,
		Clock:        fakeClock,
		PortfolioUsd: func() float64 { return 10000 },
	}
	return deps, journal, bus
}

func testConfig() Config {
	cfg := DefaultConfig("test")
	cfg.TickTimeout = time.Second
	cfg.MonitorInterval = time.Millisecond
	cfg.ScanInterval = time.Millisecond
	return cfg
}

func TestCheckPendingConfirmations_ConfirmsWithinTolerance(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, _, _ := newTestDeps(t, fc)
	e := New(testConfig(), deps)

	e.openPendingEntry(model.AcceptedTrade{
		Proposal: model.Proposal{Symbol: "BTCUSDT", Side: model.SideLong, EntryPrice: 100, ATR: 1},
		SizeUsd:  1000,
		Leverage: 3,
	}, 95)

	fc.Advance(time.Hour)
	e.checkPendingConfirmations(context.Background())

	assert.Equal(t, 1, e.openCount())
	assert.Equal(t, 0, e.pendingCount())
}

func TestCheckPendingConfirmations_CancelsOnAdverseMove(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, _, _ := newTestDeps(t, fc)
	deps.Hub.UpdateTicker(model.Ticker{Symbol: "BTCUSDT", Last: 99})
	e := New(testConfig(), deps)

	e.openPendingEntry(model.AcceptedTrade{
		Proposal: model.Proposal{Symbol: "BTCUSDT", Side: model.SideLong, EntryPrice: 100, ATR: 1},
		SizeUsd:  1000,
		Leverage: 3,
	}, 95)

	fc.Advance(time.Hour)
	e.checkPendingConfirmations(context.Background())

	assert.Equal(t, 0, e.openCount())
	assert.Equal(t, 0, e.pendingCount())
}

func TestClosePosition_StopHitJournalsAndBlacklists(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, fj, _ := newTestDeps(t, fc)
	e := New(testConfig(), deps)

	pos := &model.Position{
		Symbol: "BTCUSDT", Engine: "test", Side: model.SideLong,
		EntryPrice: 100, Quantity: 1, InitialStop: 95, Stop: 95,
		RemainingFraction: 1, EntryTime: fc.Now(), Status: model.StatusOpen,
	}
	e.mu.Lock()
	e.positions["BTCUSDT"] = pos
	e.mu.Unlock()

	e.closePosition(context.Background(), pos, 94, "STOP_HIT")

	assert.Equal(t, model.StatusClosed, pos.Status)
	assert.Equal(t, 1, fj.count())
	assert.Equal(t, 0, e.openCount())
	assert.True(t, deps.Blacklist.IsBlacklisted("BTCUSDT"), "stopped-out symbol should be blacklisted")
}

func TestMonitorTick_ReconcilesExternallyClosedPosition(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, fj, _ := newTestDeps(t, fc)

	mock := deps.Client.(*binance.MockClient)
	mock.SeedTicker(model.Ticker{Symbol: "BTCUSDT", Last: 100})

	e := New(testConfig(), deps)
	pos := &model.Position{
		Symbol: "BTCUSDT", Engine: "test", Side: model.SideLong,
		EntryPrice: 100, Quantity: 1, InitialStop: 50, Stop: 50,
		RemainingFraction: 1, EntryTime: fc.Now(), Status: model.StatusOpen,
	}
	e.mu.Lock()
	e.positions["BTCUSDT"] = pos
	e.mu.Unlock()

	// MockClient reports no open positions for BTCUSDT (never filled), so
	// the monitor tick should treat this as an external close.
	e.monitorTick(context.Background())

	assert.Equal(t, 0, e.openCount())
	require.Equal(t, 1, fj.count())
	assert.Equal(t, "EXTERNAL_CLOSE", fj.records[0].ExitReason)
}

func TestStartStop_DrainsCleanlyWithoutDeadlock(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, _, _ := newTestDeps(t, fc)
	e := New(testConfig(), deps)

	require.NoError(t, e.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	assert.Equal(t, model.EngineStopped, e.Health().Status)
}

func TestHeartbeat_AdvancesOnEachTick(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	deps, _, _ := newTestDeps(t, fc)
	e := New(testConfig(), deps)

	before := e.Heartbeat()
	e.monitorTick(context.Background())
	assert.True(t, e.Heartbeat().Equal(fc.Now()) || e.Heartbeat().After(before))
}
