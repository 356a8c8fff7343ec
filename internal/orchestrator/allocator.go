package orchestrator

import (
	"fmt"
	"sync"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// allocationSpec is the configured share of capital one engine may draw on.
type allocationSpec struct {
	capitalPct float64
	enabled    bool
}

// CapitalAllocator distributes the total portfolio value between registered
// engines by percentage, tracks each engine's current exposure, and rejects
// configurations that would over-allocate the book. Disabled engines'
// shares are spread over the enabled engines in proportion to each one's
// capitalPct (all of it to a single remaining enabled engine), mirroring
// kinetic_empire.unified.capital_allocator's reallocation rule.
type CapitalAllocator struct {
	mu       sync.RWMutex
	specs    map[string]allocationSpec
	exposure map[string]float64
}

// NewCapitalAllocator constructs an empty allocator; engines are added via
// Register before Validate/Allocation are meaningful.
func NewCapitalAllocator() *CapitalAllocator {
	return &CapitalAllocator{
		specs:    make(map[string]allocationSpec),
		exposure: make(map[string]float64),
	}
}

// Register records an engine's configured capital share.
func (a *CapitalAllocator) Register(engine string, capitalPct float64, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.specs[engine] = allocationSpec{capitalPct: capitalPct, enabled: enabled}
}

// Validate ensures the sum of every enabled engine's capitalPct does not
// exceed 100%. Orchestrator.Start calls this before spawning any engine.
func (a *CapitalAllocator) Validate() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := 0.0
	for _, s := range a.specs {
		if s.enabled {
			total += s.capitalPct
		}
	}
	if total > 100.0 {
		return apperrors.New(apperrors.KindAllocationOverflow,
			fmt.Sprintf("total capital allocation %.2f%% exceeds 100%%", total))
	}
	return nil
}

// effectivePct returns engine's share after reallocating disabled engines'
// capital: a single enabled engine receives 100%; otherwise each enabled
// engine gains a part of the disabled capital proportional to its own
// capitalPct.
func (a *CapitalAllocator) effectivePct(engine string) float64 {
	spec, ok := a.specs[engine]
	if !ok || !spec.enabled || spec.capitalPct == 0 {
		return 0
	}

	enabledCount := 0
	enabledPct, disabledPct := 0.0, 0.0
	for _, s := range a.specs {
		if s.enabled {
			enabledCount++
			enabledPct += s.capitalPct
		} else {
			disabledPct += s.capitalPct
		}
	}
	if enabledCount == 1 {
		return 100.0
	}
	return spec.capitalPct + disabledPct*spec.capitalPct/enabledPct
}

// Allocation reports engine's allocated and currently-exposed capital in
// USD, given the current total portfolio value. Satisfies both
// engine.ExposureChecker and gate.ExposureChecker.
func (a *CapitalAllocator) Allocation(engine string, totalPortfolioUsd float64) model.EngineAllocation {
	a.mu.RLock()
	defer a.mu.RUnlock()

	pct := a.effectivePct(engine)
	allocatedUsd := totalPortfolioUsd * (pct / 100.0)
	return model.EngineAllocation{
		EngineName:         engine,
		AllocatedPct:       pct,
		AllocatedUsd:       allocatedUsd,
		CurrentExposureUsd: a.exposure[engine],
	}
}

// ExposureView adapts a CapitalAllocator to the narrow Allocation(engine)
// signature that engine.ExposureChecker and gate.ExposureChecker consume,
// by pinning in the live portfolio-value function the allocator itself
// doesn't know about.
type ExposureView struct {
	Allocator    *CapitalAllocator
	PortfolioUsd func() float64
}

// Allocation satisfies engine.ExposureChecker / gate.ExposureChecker.
func (v *ExposureView) Allocation(engine string) (allocatedUsd, exposureUsd float64, ok bool) {
	total := 0.0
	if v.PortfolioUsd != nil {
		total = v.PortfolioUsd()
	}
	alloc := v.Allocator.Allocation(engine, total)
	return alloc.AllocatedUsd, alloc.CurrentExposureUsd, true
}

// UpdateExposure records engine's current notional exposure in USD, as
// reported by its open positions.
func (a *CapitalAllocator) UpdateExposure(engine string, exposureUsd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exposure[engine] = exposureUsd
}

// TotalExposure sums exposure across every registered engine.
func (a *CapitalAllocator) TotalExposure() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := 0.0
	for _, v := range a.exposure {
		total += v
	}
	return total
}
