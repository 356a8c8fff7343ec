// Package orchestrator is the unified supervisor that owns every trading
// engine's lifecycle: it validates capital allocation before anything
// starts, restarts engines whose heartbeat goes stale, and trips a
// portfolio-wide circuit breaker that force-closes every open position
// across every engine. Grounded on kinetic_empire.unified.orchestrator's
// register/start/stop/monitor shape and internal/bot/bot.go's goroutine +
// stopChan + sync.WaitGroup idiom for graceful shutdown.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"tradecore/internal/clock"
	"tradecore/internal/correlation"
	"tradecore/internal/events"
	"tradecore/internal/logging"
	"tradecore/internal/model"
	"tradecore/internal/risk"
)

// Engine is the subset of BaseEngine's surface the orchestrator supervises.
// FuturesEngine and SpotEngine satisfy it by embedding *BaseEngine.
type Engine interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	Heartbeat() time.Time
	Health() model.EngineHealth
	Positions() []model.Position
	EmergencyCloseAll(ctx context.Context)
}

// Config controls the orchestrator's supervision cadence and shutdown
// behavior.
type Config struct {
	Health              HealthConfig
	MonitorInterval     time.Duration
	RestartBackoff      time.Duration
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns production-sane supervision intervals.
func DefaultConfig() Config {
	return Config{
		Health:              DefaultHealthConfig(),
		MonitorInterval:     1 * time.Second,
		RestartBackoff:      5 * time.Second,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

type registration struct {
	engine     Engine
	capitalPct float64
	enabled    bool
}

// Orchestrator owns every registered engine, the shared capital allocator,
// the heartbeat health monitor, and the global risk monitor that can order
// every engine to flatten on a circuit-breaker trip.
type Orchestrator struct {
	cfg          Config
	clock        clock.Clock
	bus          *events.Bus
	allocator    *CapitalAllocator
	health       *HealthMonitor
	risk         *risk.Monitor
	corr         *correlation.Tracker
	portfolioUsd func() float64

	mu      sync.RWMutex
	engines map[string]*registration
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	subbed  bool
}

// New constructs an Orchestrator. portfolioUsd reports the current total
// account value across every engine, used both for capital allocation and
// for feeding the global risk monitor. corrTracker, when non-nil, is
// refreshed every monitor tick with the live aggregate open-symbol list so
// the correlation gate observes real group concentration; pass nil to
// disable correlation tracking entirely.
func New(cfg Config, c clock.Clock, bus *events.Bus, riskMonitor *risk.Monitor, corrTracker *correlation.Tracker, portfolioUsd func() float64) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		clock:        c,
		bus:          bus,
		allocator:    NewCapitalAllocator(),
		health:       NewHealthMonitor(cfg.Health),
		risk:         riskMonitor,
		corr:         corrTracker,
		portfolioUsd: portfolioUsd,
		engines:      make(map[string]*registration),
	}
}

// Allocator exposes the capital allocator so callers can build an
// ExposureView for each engine's gate/sizer before registering it.
func (o *Orchestrator) Allocator() *CapitalAllocator { return o.allocator }

// Register adds an engine under orchestrator supervision with its
// configured capital share. Must be called before Start.
func (o *Orchestrator) Register(e Engine, capitalPct float64, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.engines[e.Name()] = &registration{engine: e, capitalPct: capitalPct, enabled: enabled}
	o.allocator.Register(e.Name(), capitalPct, enabled)
	o.health.Register(e.Name())
}

// Start validates the total capital allocation, spawns every enabled
// engine, and launches the background supervision loop. It returns
// immediately; supervision runs until Stop is called. Per the capital
// budget invariant, Start fails without spawning anything when the
// enabled engines' capitalPct sums to more than 100%.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.allocator.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.stopCh = make(chan struct{})
	regs := make([]*registration, 0, len(o.engines))
	for _, r := range o.engines {
		regs = append(regs, r)
	}
	o.mu.Unlock()

	o.subscribeRealizedPnl()

	log := logging.Component("orchestrator")
	for _, r := range regs {
		if !r.enabled {
			log.Info().Str("engine", r.engine.Name()).Msg("engine disabled, not spawning")
			continue
		}
		o.spawnEngine(ctx, r.engine)
	}

	o.wg.Add(1)
	go o.monitorLoop(ctx)

	return nil
}

// spawnEngine starts one engine and records its health transition. A
// startup error is recorded but never fatal to the orchestrator itself —
// the supervision loop will attempt restarts per the health config.
func (o *Orchestrator) spawnEngine(ctx context.Context, e Engine) {
	o.health.RecordStart(e.Name(), o.clock.Now())
	if err := e.Start(ctx); err != nil {
		o.health.RecordError(e.Name(), err.Error())
		o.bus.PublishError(e.Name(), "engine failed to start", err)
		return
	}
	o.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{"engine": e.Name()}})
}

// subscribeRealizedPnl feeds every TRADE_CLOSED event's realized P&L into
// the global risk monitor so the portfolio-wide circuit breaker reacts to
// losses from any engine, not just its own. The events.Bus offers no
// unsubscribe, so this is only ever wired once per Orchestrator lifetime.
func (o *Orchestrator) subscribeRealizedPnl() {
	if o.risk == nil || o.subbed {
		return
	}
	o.subbed = true
	o.bus.Subscribe(events.EventTradeClosed, func(ev events.Event) {
		pnl, _ := ev.Data["pnl"].(float64)
		total := 0.0
		if o.portfolioUsd != nil {
			total = o.portfolioUsd()
		}
		o.risk.RecordRealizedPnl(pnl, total)
	})
}

// monitorLoop is the supervision heartbeat: every MonitorInterval it syncs
// each engine's heartbeat into the health monitor, restarts any engine
// whose heartbeat has gone stale, and checks the global risk monitor for a
// circuit-breaker trip that should flatten every book.
func (o *Orchestrator) monitorLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.monitorTick(ctx)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) monitorTick(ctx context.Context) {
	o.mu.RLock()
	regs := make([]*registration, 0, len(o.engines))
	for _, r := range o.engines {
		regs = append(regs, r)
	}
	o.mu.RUnlock()

	log := logging.Component("orchestrator")

	for _, r := range regs {
		if !r.enabled {
			continue
		}
		o.health.SyncHeartbeat(r.engine.Name(), r.engine.Heartbeat())
		o.allocator.UpdateExposure(r.engine.Name(), exposureOf(r.engine.Positions()))
	}

	for _, name := range o.health.CheckStale(o.clock.Now()) {
		if !o.health.CanRestart(name) {
			log.Error().Str("engine", name).Msg("heartbeat stale, restart budget exhausted, leaving engine down")
			o.health.MarkRestartsExhausted(name)
			continue
		}
		o.restartEngine(ctx, name)
	}

	if o.corr != nil {
		o.corr.SetOpenSymbols(openSymbols(regs))
	}

	if o.risk != nil && !o.risk.CanOpen() {
		o.tripCircuitBreaker(ctx)
	}
}

func openSymbols(regs []*registration) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range regs {
		for _, p := range r.engine.Positions() {
			if _, ok := seen[p.Symbol]; ok {
				continue
			}
			seen[p.Symbol] = struct{}{}
			out = append(out, p.Symbol)
		}
	}
	return out
}

func exposureOf(positions []model.Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.EntryPrice * p.Quantity
	}
	return total
}

// restartEngine stops and re-starts a stale engine, applying the
// configured backoff and counting the attempt against its restart budget.
func (o *Orchestrator) restartEngine(ctx context.Context, name string) {
	o.mu.RLock()
	r, ok := o.engines[name]
	o.mu.RUnlock()
	if !ok {
		return
	}

	log := logging.Component("orchestrator")
	log.Warn().Str("engine", name).Msg("heartbeat stale, restarting engine")

	r.engine.Stop()
	o.health.RecordRestart(name)
	time.Sleep(o.cfg.RestartBackoff)

	o.mu.RLock()
	stopped := o.stopCh
	o.mu.RUnlock()
	select {
	case <-stopped:
		return
	default:
	}

	o.spawnEngine(ctx, r.engine)
	o.bus.PublishEngineRestarted(name, o.health.Health(name).RestartCount)
}

// tripCircuitBreaker force-closes every open position on every registered
// engine. Called once the global risk monitor reports CanOpen() == false;
// it is safe to call repeatedly since closing an already-flat engine is a
// no-op.
func (o *Orchestrator) tripCircuitBreaker(ctx context.Context) {
	o.mu.RLock()
	regs := make([]*registration, 0, len(o.engines))
	for _, r := range o.engines {
		regs = append(regs, r)
	}
	o.mu.RUnlock()

	log := logging.Component("orchestrator")
	log.Error().Msg("circuit breaker active, flattening every engine")
	o.bus.Publish(events.Event{Type: events.EventCircuitBreakerTrip})

	for _, r := range regs {
		if !r.enabled {
			continue
		}
		r.engine.EmergencyCloseAll(ctx)
	}
}

// Stop signals every registered engine to shut down, waits up to
// ShutdownGracePeriod for the supervision loop to drain, and returns once
// every engine has stopped (or the grace period elapses).
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	stopCh := o.stopCh
	regs := make([]*registration, 0, len(o.engines))
	for _, r := range o.engines {
		regs = append(regs, r)
	}
	o.mu.Unlock()

	close(stopCh)

	for _, r := range regs {
		r.engine.Stop()
		o.health.RecordStop(r.engine.Name())
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(o.cfg.ShutdownGracePeriod):
		logging.Component("orchestrator").Warn().Msg("supervision loop did not drain within grace period")
	}
}

// Health returns the supervised health snapshot of every registered
// engine, keyed by engine name — the status-API's primary data source.
func (o *Orchestrator) Health() map[string]model.EngineHealth {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]model.EngineHealth, len(o.engines))
	for name := range o.engines {
		out[name] = o.health.Health(name)
	}
	return out
}

// Positions returns every open position across every registered engine.
func (o *Orchestrator) Positions() []model.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []model.Position
	for _, r := range o.engines {
		out = append(out, r.engine.Positions()...)
	}
	return out
}

// RiskSnapshot reports the global risk monitor's current state, or the
// zero value when no risk monitor was configured.
func (o *Orchestrator) RiskSnapshot() model.RiskState {
	if o.risk == nil {
		return model.RiskState{}
	}
	return o.risk.Snapshot()
}
