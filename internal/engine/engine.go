// Package engine is the Position Lifecycle Manager: it runs a symbol
// scan loop and a position monitor loop for one trading strategy
// ("futures" or "spot"), wiring the scanner, analyzer, gate, sizer, and
// trailing manager into open/monitor/close decisions and journaling every
// completed trade.
//
// Adapted from the teacher's internal/autopilot/futures_controller.go
// runLoop/evaluateMarket/evaluateSymbol/monitorPositions two-ticker
// structure and internal/bot/bot.go's equivalent spot-engine loop; both
// variants here embed the same BaseEngine skeleton rather than duplicating
// the loop plumbing per engine kind.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"tradecore/internal/analyzer"
	"tradecore/internal/apperrors"
	"tradecore/internal/binance"
	"tradecore/internal/blacklist"
	"tradecore/internal/clock"
	"tradecore/internal/events"
	"tradecore/internal/gate"
	"tradecore/internal/logging"
	"tradecore/internal/marketdata"
	"tradecore/internal/model"
	"tradecore/internal/orders"
	"tradecore/internal/risk"
	"tradecore/internal/scanner"
	"tradecore/internal/sizer"
	"tradecore/internal/trailing"
)

const (
	// orderRejectionCooldown is the short cool-down applied to a symbol
	// after an order rejection that does not reach the blacklist threshold.
	orderRejectionCooldown = 2 * time.Minute
	// orderRejectionBlacklistThreshold is the per-symbol rejection count at
	// which a symbol escalates from a short cool-down to a full blacklist.
	// The count carries over between scan cycles and is reset only when it
	// reaches the threshold; rejections are not grouped by cycle.
	orderRejectionBlacklistThreshold = 2
	// orderRejectionBlacklistDuration is how long a symbol is blacklisted
	// once it crosses orderRejectionBlacklistThreshold.
	orderRejectionBlacklistDuration = 15 * time.Minute
)

// ExposureChecker reports an engine's allocated and currently-used capital.
// Satisfied by the capital allocator; the same interface the gate's
// ExposureGate filter consumes.
type ExposureChecker interface {
	Allocation(engine string) (allocatedUsd, exposureUsd float64, ok bool)
}

// JournalWriter is the append-only trade journal surface the engine needs;
// satisfied by *journal.Journal, and by an in-memory fake in tests so the
// engine's close-position path never requires a live Postgres connection.
type JournalWriter interface {
	Append(ctx context.Context, rec model.TradeRecord) error
	SymbolStats(ctx context.Context, symbol string, lookback int) (closedTrades int, winRate, rewardRiskRatio float64, err error)
}

// Dependencies bundles every collaborator a BaseEngine needs. Shared
// components (risk monitor, blacklist, data hub, journal, event bus,
// exposure view, exchange client) are constructed once in main and handed
// to every engine instance; each engine gets its own Scanner, Analyzer,
// Gate, Sizer and Trailing manager.
type Dependencies struct {
	Hub          *marketdata.Hub
	Scanner      *scanner.Scanner
	Analyzer     *analyzer.Analyzer
	Gate         *gate.Gate
	Sizer        *sizer.Sizer
	Trailing     *trailing.Manager
	TrailingCfg  trailing.Config
	Risk         *risk.Monitor
	Journal      JournalWriter
	Bus          *events.Bus
	Blacklist    *blacklist.Store
	Exposure     ExposureChecker
	Client       binance.Client
	Clock        clock.Clock
	PortfolioUsd func() float64
}

// BaseEngine runs the scan and monitor loops shared by every engine kind.
type BaseEngine struct {
	cfg  Config
	deps Dependencies

	mu                sync.RWMutex
	positions         map[string]*model.Position
	pending           map[string]*pendingEntry
	consecutiveLosses map[string]int
	orderRejections   map[string]int

	symbolLocksMu sync.RWMutex
	symbolLocks   map[string]*sync.Mutex

	hbMu          sync.RWMutex
	lastHeartbeat time.Time
	lastError     string
	status        model.EngineStatus

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type pendingEntry struct {
	position   *model.Position
	deadline   time.Time
	entryPrice float64
}

// New constructs a BaseEngine. It does not start the loops.
func New(cfg Config, deps Dependencies) *BaseEngine {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &BaseEngine{
		cfg:               cfg,
		deps:              deps,
		positions:         make(map[string]*model.Position),
		pending:           make(map[string]*pendingEntry),
		consecutiveLosses: make(map[string]int),
		orderRejections:   make(map[string]int),
		symbolLocks:       make(map[string]*sync.Mutex),
		status:            model.EngineStopped,
	}
}

// Name returns the engine's configured name, used as its allocator and
// journal key.
func (e *BaseEngine) Name() string { return e.cfg.Name }

// Start launches the scan and monitor loops as background goroutines. It
// returns immediately; call Stop to drain and terminate.
func (e *BaseEngine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.stopCh != nil {
		return apperrors.New(apperrors.KindConfigInvalid, fmt.Sprintf("engine %s already started", e.cfg.Name))
	}
	e.stopCh = make(chan struct{})
	e.setStatus(model.EngineRunning)
	e.heartbeat()

	e.wg.Add(2)
	go e.scanLoop(ctx)
	go e.monitorLoop(ctx)

	logging.Component("engine").Info().Str("engine", e.cfg.Name).Msg("engine started")
	return nil
}

// Stop signals both loops to exit after their current tick and waits for
// them to drain, up to the engine's tick timeout per loop.
func (e *BaseEngine) Stop() {
	e.runMu.Lock()
	stopCh := e.stopCh
	e.stopCh = nil
	e.runMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	e.wg.Wait()
	e.setStatus(model.EngineStopped)
	logging.Component("engine").Info().Str("engine", e.cfg.Name).Msg("engine stopped")
}

// Heartbeat returns the last time either loop began a tick, or the time
// the engine started if no tick has begun since.
func (e *BaseEngine) Heartbeat() time.Time {
	e.hbMu.RLock()
	defer e.hbMu.RUnlock()
	return e.lastHeartbeat
}

// Health reports the supervisor-facing snapshot of this engine's state.
func (e *BaseEngine) Health() model.EngineHealth {
	e.hbMu.RLock()
	defer e.hbMu.RUnlock()
	return model.EngineHealth{
		Name:          e.cfg.Name,
		Status:        e.status,
		LastHeartbeat: e.lastHeartbeat,
		LastError:     e.lastError,
	}
}

func (e *BaseEngine) heartbeat() {
	e.hbMu.Lock()
	e.lastHeartbeat = e.deps.Clock.Now()
	e.hbMu.Unlock()
}

func (e *BaseEngine) setStatus(s model.EngineStatus) {
	e.hbMu.Lock()
	e.status = s
	e.hbMu.Unlock()
}

func (e *BaseEngine) recordError(err error) {
	e.hbMu.Lock()
	e.lastError = err.Error()
	e.hbMu.Unlock()
	e.deps.Bus.PublishError(e.cfg.Name, "tick failed", err)
}

// recoverPanic converts a panic in a loop tick into a logged EngineCrash
// error, recorded as the engine's last error, rather than letting it tear
// down the process. The loop then continues with its next tick, so a
// recovered panic does not stop the heartbeat and does not by itself
// trigger a restart by the orchestrator's health supervisor.
func (e *BaseEngine) recoverPanic(loop string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s loop: %v", loop, r)
		logging.Component("engine").Error().Str("engine", e.cfg.Name).Err(err).Msg("recovered panic")
		e.recordError(apperrors.Wrap(apperrors.KindEngineCrash, "engine loop panicked", err))
	}
}

func (e *BaseEngine) symbolLock(symbol string) *sync.Mutex {
	e.symbolLocksMu.RLock()
	l, ok := e.symbolLocks[symbol]
	e.symbolLocksMu.RUnlock()
	if ok {
		return l
	}

	e.symbolLocksMu.Lock()
	defer e.symbolLocksMu.Unlock()
	if l, ok := e.symbolLocks[symbol]; ok {
		return l
	}
	l = &sync.Mutex{}
	e.symbolLocks[symbol] = l
	return l
}

// --- scan loop ---

func (e *BaseEngine) scanLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanTick(ctx)
		}
	}
}

func (e *BaseEngine) scanTick(ctx context.Context) {
	defer e.recoverPanic("scan")
	e.heartbeat()

	tctx, cancel := context.WithTimeout(ctx, e.cfg.TickTimeout)
	defer cancel()

	e.checkPendingConfirmations(tctx)

	if !e.deps.Risk.CanOpen() {
		return
	}
	if e.openCount() >= e.cfg.MaxPositions {
		return
	}

	result, err := e.deps.Scanner.Scan(tctx)
	if err != nil {
		e.recordError(fmt.Errorf("scan: %w", err))
		return
	}

	for _, candidate := range result.Candidates {
		select {
		case <-tctx.Done():
			return
		default:
		}
		if e.openCount()+e.pendingCount() >= e.cfg.MaxPositions {
			return
		}
		if e.hasPosition(candidate.Symbol) || e.hasPending(candidate.Symbol) {
			continue
		}
		if e.deps.Blacklist != nil && e.deps.Blacklist.IsBlacklisted(candidate.Symbol) {
			continue
		}
		e.evaluateSymbol(tctx, candidate.Symbol)
	}
}

func (e *BaseEngine) evaluateSymbol(ctx context.Context, symbol string) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	marketCtx, proposal := e.deps.Analyzer.Analyze(symbol)
	if proposal == nil {
		return
	}

	baseCandles := e.deps.Hub.Candles(symbol, e.cfg.BaseTimeframe, 250)

	var micro1m, micro5m *model.TimeframeView
	if v, ok := e.deps.Analyzer.View(symbol, "1m"); ok {
		micro1m = &v
	}
	if v, ok := e.deps.Analyzer.View(symbol, "5m"); ok {
		micro5m = &v
	}

	decision := e.deps.Gate.Evaluate(e.cfg.Name, *proposal, baseCandles, micro1m, micro5m)
	if !decision.Accepted {
		e.deps.Bus.PublishSignalRejected(symbol, decision.RejectReason)
		return
	}

	stats := e.symbolStats(ctx, symbol)

	availableUsd := 0.0
	if e.deps.Exposure != nil {
		if allocated, exposureUsd, ok := e.deps.Exposure.Allocation(e.cfg.Name); ok {
			availableUsd = allocated - exposureUsd
			if availableUsd < 0 {
				availableUsd = 0
			}
		}
	}

	accepted, ok := e.deps.Sizer.Size(decision.Proposal, decision.Multiplier, stats, availableUsd, marketCtx.Regime)
	if !ok {
		return
	}
	accepted.UseTightTrailing = decision.UseTightTrailing

	stopPrice, ok := trailing.InitialStop(e.deps.TrailingCfg, accepted.Side, accepted.EntryPrice, accepted.ATR, marketCtx.Regime)
	if !ok {
		return
	}

	stopDistancePct := 0.0
	if accepted.EntryPrice != 0 {
		stopDistancePct = math.Abs(accepted.EntryPrice-stopPrice) / accepted.EntryPrice * 100
	}
	if shrink := e.deps.Trailing.SizeShrinkFactor(stopDistancePct); shrink < 1.0 {
		accepted.SizeUsd *= shrink
		accepted.SizePct *= shrink
	}

	e.openPendingEntry(accepted, stopPrice)
}

func (e *BaseEngine) symbolStats(ctx context.Context, symbol string) sizer.SymbolStats {
	stats := sizer.SymbolStats{}
	if e.deps.Journal != nil {
		if closed, winRate, rr, err := e.deps.Journal.SymbolStats(ctx, symbol, 20); err == nil {
			stats.ClosedTrades = closed
			stats.WinRate = winRate
			stats.RewardRiskRatio = rr
		}
	}
	e.mu.RLock()
	stats.ConsecutiveLosses = e.consecutiveLosses[symbol]
	e.mu.RUnlock()
	return stats
}

func (e *BaseEngine) openPendingEntry(trade model.AcceptedTrade, stopPrice float64) {
	clientOrderID := orders.NewClientOrderID(e.cfg.Name)

	quantity := 0.0
	if trade.EntryPrice != 0 {
		quantity = trade.SizeUsd / trade.EntryPrice
	}

	pos := &model.Position{
		Symbol:            trade.Symbol,
		Engine:            e.cfg.Name,
		Side:              trade.Side,
		EntryPrice:        trade.EntryPrice,
		Quantity:          quantity,
		Leverage:          trade.Leverage,
		InitialStop:       stopPrice,
		Stop:              stopPrice,
		TakeProfit:        trade.TakeProfit,
		RemainingFraction: 1,
		EntryTime:         e.deps.Clock.Now(),
		Confidence:        trade.Confidence,
		Status:            model.StatusPendingConfirm,
		UseTightTrailing:  trade.UseTightTrailing,
		ClientOrderID:     clientOrderID,
	}

	deadline := e.deps.Clock.Now().Add(time.Duration(e.cfg.ConfirmationCandles) * e.cfg.ConfirmationTimeframe)

	e.mu.Lock()
	e.pending[trade.Symbol] = &pendingEntry{position: pos, deadline: deadline, entryPrice: trade.EntryPrice}
	e.mu.Unlock()
}

// checkPendingConfirmations resolves entries whose confirmation window has
// elapsed: confirmed entries are placed on the exchange, cancelled entries
// are dropped with no journal entry.
func (e *BaseEngine) checkPendingConfirmations(ctx context.Context) {
	now := e.deps.Clock.Now()

	e.mu.RLock()
	due := make([]*pendingEntry, 0)
	for _, p := range e.pending {
		if !now.Before(p.deadline) {
			due = append(due, p)
		}
	}
	e.mu.RUnlock()

	for _, p := range due {
		e.resolvePendingEntry(ctx, p)
	}
}

func (e *BaseEngine) resolvePendingEntry(ctx context.Context, p *pendingEntry) {
	lock := e.symbolLock(p.position.Symbol)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, p.position.Symbol)
		e.mu.Unlock()
	}()

	ticker, ok := e.deps.Hub.Ticker(p.position.Symbol)
	currentPrice := p.entryPrice
	if ok {
		currentPrice = ticker.Last
	}

	adverseMovePct := adverseMovePercent(p.position.Side, p.entryPrice, currentPrice)
	if adverseMovePct >= e.cfg.AdverseMovePctCancel {
		_ = orders.Transition(p.position, model.StatusCancelled)
		logging.Component("engine").Info().
			Str("engine", e.cfg.Name).Str("symbol", p.position.Symbol).
			Float64("adverse_move_pct", adverseMovePct).
			Msg("cancelled pending entry: adverse move exceeded threshold")
		return
	}

	side := binance.OrderSideBuy
	if p.position.Side == model.SideShort {
		side = binance.OrderSideSell
	}

	if err := e.deps.Client.SetLeverage(ctx, p.position.Symbol, p.position.Leverage); err != nil {
		logging.Component("engine").Warn().Err(err).Str("symbol", p.position.Symbol).Msg("set leverage failed, continuing with exchange default")
	}

	result, err := e.deps.Client.PlaceMarketOrder(ctx, p.position.Symbol, side, p.position.Quantity, p.position.ClientOrderID)
	if err != nil {
		_ = orders.Transition(p.position, model.StatusCancelled)
		e.recordError(fmt.Errorf("confirm entry %s: %w", p.position.Symbol, err))
		e.handleOrderRejection(ctx, p.position.Symbol, err)
		return
	}
	if result.AvgPrice > 0 {
		p.position.EntryPrice = result.AvgPrice
	}
	if result.FilledQty > 0 {
		p.position.Quantity = result.FilledQty
	}

	if err := orders.Transition(p.position, model.StatusOpen); err != nil {
		e.recordError(err)
		return
	}

	e.placeProtectiveStop(ctx, p.position)

	e.mu.Lock()
	e.positions[p.position.Symbol] = p.position
	e.mu.Unlock()

	e.deps.Bus.PublishTradeOpened(p.position.Symbol, string(p.position.Side), p.position.EntryPrice, p.position.Quantity)
}

// handleOrderRejection tracks order-placement failures per symbol and
// escalates a short cool-down into a full blacklist once a symbol reaches
// orderRejectionBlacklistThreshold rejections, counted across scan cycles.
func (e *BaseEngine) handleOrderRejection(ctx context.Context, symbol string, cause error) {
	if e.deps.Blacklist == nil {
		return
	}

	e.mu.Lock()
	e.orderRejections[symbol]++
	count := e.orderRejections[symbol]
	if count >= orderRejectionBlacklistThreshold {
		e.orderRejections[symbol] = 0
	}
	e.mu.Unlock()

	reason := fmt.Sprintf("order rejected: %v", cause)
	dur := orderRejectionCooldown
	if count >= orderRejectionBlacklistThreshold {
		dur = orderRejectionBlacklistDuration
	}
	if err := e.deps.Blacklist.Add(ctx, symbol, dur, reason); err != nil {
		logging.Component("engine").Warn().Err(err).Str("symbol", symbol).Msg("blacklist add failed")
	}
}

func (e *BaseEngine) placeProtectiveStop(ctx context.Context, pos *model.Position) {
	exitSide := binance.OrderSideSell
	if pos.Side == model.SideShort {
		exitSide = binance.OrderSideBuy
	}
	if _, err := e.deps.Client.PlaceStopMarket(ctx, pos.Symbol, pos.Stop, exitSide, pos.Quantity); err != nil {
		logging.Component("engine").Warn().Err(err).Str("symbol", pos.Symbol).Msg("protective stop order failed, relying on software monitor")
	}
}

func adverseMovePercent(side model.Side, entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == model.SideLong {
		return (entry - current) / entry * 100
	}
	return (current - entry) / entry * 100
}

// --- monitor loop ---

func (e *BaseEngine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.monitorTick(ctx)
		}
	}
}

func (e *BaseEngine) monitorTick(ctx context.Context) {
	defer e.recoverPanic("monitor")
	e.heartbeat()

	tctx, cancel := context.WithTimeout(ctx, e.cfg.TickTimeout)
	defer cancel()

	positions := e.snapshotPositions()
	if len(positions) == 0 {
		return
	}

	exchangePositions, err := e.deps.Client.FetchPositions(tctx)
	exchangeBySymbol := make(map[string]binance.ExchangePosition, len(exchangePositions))
	if err == nil {
		for _, ep := range exchangePositions {
			exchangeBySymbol[ep.Symbol] = ep
		}
	} else {
		e.recordError(fmt.Errorf("fetch positions for reconciliation: %w", err))
	}

	var totalUnrealized, totalNotional float64

	for _, pos := range positions {
		ticker, ok := e.deps.Hub.Ticker(pos.Symbol)
		if !ok {
			continue
		}
		price := ticker.Last

		marketCtx, _ := e.deps.Analyzer.Analyze(pos.Symbol)
		atr := 0.0
		if v, ok := marketCtx.Views[e.cfg.BaseTimeframe]; ok {
			atr = v.ATR14
		}

		exits := e.deps.Trailing.Update(pos, price, atr, marketCtx.Regime, e.deps.Clock.Now())
		for _, ex := range exits {
			logging.Component("engine").Info().Str("symbol", pos.Symbol).Str("reason", ex.Reason).
				Float64("fraction", ex.Fraction).Float64("r_multiple", ex.RMultiple).Msg("partial take-profit")
			_ = orders.Transition(pos, model.StatusPartialExited)
		}

		if trailing.StopHit(*pos, price) {
			e.closePosition(tctx, pos, price, "STOP_HIT")
			continue
		}
		if e.deps.Trailing.EmergencyPositionExit(*pos, price) {
			e.closePosition(tctx, pos, price, "EMERGENCY_POSITION_EXIT")
			continue
		}

		if ep, ok := exchangeBySymbol[pos.Symbol]; err == nil && (!ok || ep.PositionAmt == 0) {
			e.closePosition(tctx, pos, price, "EXTERNAL_CLOSE")
			continue
		}

		totalUnrealized += unrealizedPnl(pos, price)
		totalNotional += pos.EntryPrice * pos.Quantity
	}

	if totalNotional > 0 {
		lossPct := -totalUnrealized / totalNotional * 100
		if lossPct > 0 && e.deps.Trailing.EmergencyPortfolioExit(lossPct) {
			e.emergencyCloseAll(tctx)
		}
	}
}

func unrealizedPnl(pos *model.Position, price float64) float64 {
	if pos.Side == model.SideLong {
		return (price - pos.EntryPrice) * pos.Quantity
	}
	return (pos.EntryPrice - price) * pos.Quantity
}

// EmergencyCloseAll force-closes every open position, bypassing the normal
// stop/trailing exit path. The orchestrator calls this on every registered
// engine when its global circuit breaker trips.
func (e *BaseEngine) EmergencyCloseAll(ctx context.Context) {
	e.emergencyCloseAll(ctx)
}

func (e *BaseEngine) emergencyCloseAll(ctx context.Context) {
	for _, pos := range e.snapshotPositions() {
		ticker, ok := e.deps.Hub.Ticker(pos.Symbol)
		price := pos.EntryPrice
		if ok {
			price = ticker.Last
		}
		e.closePosition(ctx, pos, price, "EMERGENCY_PORTFOLIO_EXIT")
	}
}

func (e *BaseEngine) closePosition(ctx context.Context, pos *model.Position, exitPrice float64, reason string) {
	lock := e.symbolLock(pos.Symbol)
	lock.Lock()
	defer lock.Unlock()

	nextStatus := model.StatusClosed
	if reason == "EMERGENCY_POSITION_EXIT" || reason == "EMERGENCY_PORTFOLIO_EXIT" {
		nextStatus = model.StatusEmergencyClosed
	}
	if err := orders.Transition(pos, nextStatus); err != nil {
		e.recordError(err)
		return
	}

	if reason != "EXTERNAL_CLOSE" {
		if err := e.deps.Client.CloseAllPositions(ctx, pos.Symbol); err != nil {
			logging.Component("engine").Warn().Err(err).Str("symbol", pos.Symbol).Msg("close-on-exchange failed, journaling software view regardless")
		}
	}

	record := orders.ToTradeRecord(*pos, exitPrice, e.deps.Clock.Now(), reason)
	if e.deps.Journal != nil {
		if err := e.deps.Journal.Append(ctx, record); err != nil {
			e.recordError(fmt.Errorf("journal append: %w", err))
		}
	}

	portfolioUsd := 0.0
	if e.deps.PortfolioUsd != nil {
		portfolioUsd = e.deps.PortfolioUsd()
	}
	if e.deps.Risk != nil {
		e.deps.Risk.RecordRealizedPnl(record.RealizedPnl, portfolioUsd)
	}

	e.mu.Lock()
	if record.RealizedPnl < 0 {
		e.consecutiveLosses[pos.Symbol]++
	} else {
		e.consecutiveLosses[pos.Symbol] = 0
	}
	delete(e.positions, pos.Symbol)
	e.mu.Unlock()

	if reason == "STOP_HIT" && e.deps.Blacklist != nil {
		dur := time.Duration(e.cfg.BlacklistDurationMinutes) * time.Minute
		if err := e.deps.Blacklist.Add(ctx, pos.Symbol, dur, "stopped out"); err != nil {
			logging.Component("engine").Warn().Err(err).Str("symbol", pos.Symbol).Msg("blacklist add failed")
		}
	}

	e.deps.Bus.PublishTradeClosed(pos.Symbol, pos.EntryPrice, exitPrice, pos.Quantity, record.RealizedPnl, reason)
}

// --- accessors ---

func (e *BaseEngine) hasPosition(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.positions[symbol]
	return ok
}

func (e *BaseEngine) hasPending(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.pending[symbol]
	return ok
}

func (e *BaseEngine) openCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.positions)
}

func (e *BaseEngine) pendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}

func (e *BaseEngine) snapshotPositions() []*model.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}

// Positions returns a snapshot of every open or partially-exited position,
// for the status API.
func (e *BaseEngine) Positions() []model.Position {
	snapshot := e.snapshotPositions()
	out := make([]model.Position, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, *p)
	}
	return out
}
