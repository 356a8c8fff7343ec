package orchestrator

import (
	"sync"
	"time"

	"tradecore/internal/model"
)

// HealthConfig controls the heartbeat staleness thresholds the supervisor
// acts on, grounded on kinetic_empire.unified.health_monitor's warning/
// restart second counts.
type HealthConfig struct {
	WarningAfter       time.Duration
	RestartAfter       time.Duration
	MaxRestartAttempts int
}

// DefaultHealthConfig matches the teacher's heartbeat cadence: a monitor
// tick every few seconds, a generous multiple of that before declaring an
// engine dead.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		WarningAfter:       60 * time.Second,
		RestartAfter:       300 * time.Second,
		MaxRestartAttempts: 3,
	}
}

type engineHealth struct {
	status       model.EngineStatus
	lastHeartbeat time.Time
	restartCount int
	lastError    string
	startedAt    time.Time
}

// HealthMonitor tracks each registered engine's heartbeat and decides when
// a stale engine needs restarting, per SPEC_FULL.md's heartbeat-timeout
// restart property.
type HealthMonitor struct {
	cfg HealthConfig
	mu  sync.Mutex
	h   map[string]*engineHealth
}

// NewHealthMonitor constructs a HealthMonitor with the given thresholds.
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	return &HealthMonitor{cfg: cfg, h: make(map[string]*engineHealth)}
}

func (m *HealthMonitor) get(name string) *engineHealth {
	h, ok := m.h[name]
	if !ok {
		h = &engineHealth{status: model.EngineStopped}
		m.h[name] = h
	}
	return h
}

// Register adds engine to the monitor in the STOPPED state.
func (m *HealthMonitor) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(name)
}

// RecordStart marks engine as running, resets its last error, and starts
// its heartbeat clock at now.
func (m *HealthMonitor) RecordStart(name string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	h.status = model.EngineRunning
	h.startedAt = now
	h.lastHeartbeat = now
	h.lastError = ""
}

// RecordStop marks engine as stopped.
func (m *HealthMonitor) RecordStop(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(name).status = model.EngineStopped
}

// RecordError marks engine as errored and remembers the message.
func (m *HealthMonitor) RecordError(name, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	h.status = model.EngineError
	h.lastError = message
}

// RecordRestart increments engine's restart count and marks it restarting.
func (m *HealthMonitor) RecordRestart(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	h.restartCount++
	h.status = model.EngineRestarting
}

// SyncHeartbeat records the latest heartbeat timestamp observed from the
// engine itself (BaseEngine.Heartbeat()).
func (m *HealthMonitor) SyncHeartbeat(name string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	if t.After(h.lastHeartbeat) {
		h.lastHeartbeat = t
	}
	if h.status != model.EngineStopped {
		h.status = model.EngineRunning
	}
}

// CheckStale returns the names of running engines whose heartbeat has
// exceeded the restart threshold as of now.
func (m *HealthMonitor) CheckStale(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	for name, h := range m.h {
		if h.status == model.EngineStopped {
			continue
		}
		if now.Sub(h.lastHeartbeat) >= m.cfg.RestartAfter {
			stale = append(stale, name)
		}
	}
	return stale
}

// CanRestart reports whether engine hasn't exceeded its restart budget.
func (m *HealthMonitor) CanRestart(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(name).restartCount < m.cfg.MaxRestartAttempts
}

// MarkRestartsExhausted transitions engine to ERROR and leaves it there;
// called once its restart budget is spent so the engine is not retried
// again and the status API reports the dead state accurately.
func (m *HealthMonitor) MarkRestartsExhausted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	h.status = model.EngineError
	h.lastError = "restart budget exhausted, engine left stopped"
}

// Health returns engine's current supervised health snapshot.
func (m *HealthMonitor) Health(name string) model.EngineHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.get(name)
	return model.EngineHealth{
		Name:          name,
		Status:        h.status,
		LastHeartbeat: h.lastHeartbeat,
		RestartCount:  h.restartCount,
		LastError:     h.lastError,
	}
}

// Summary returns every registered engine's status keyed by name.
func (m *HealthMonitor) Summary() map[string]model.EngineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.EngineStatus, len(m.h))
	for name, h := range m.h {
		out[name] = h.status
	}
	return out
}
