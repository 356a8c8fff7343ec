package engine

import "time"

// Config tunes one engine's cadence, capital, and symbol universe. Field
// names mirror the per-engine configuration surface documented for the
// orchestrator's allocator.
type Config struct {
	Name                     string
	Enabled                  bool
	CapitalPct               float64
	MaxPositions             int
	ScanInterval             time.Duration
	MonitorInterval          time.Duration
	ConfirmationCandles      int
	ConfirmationTimeframe    time.Duration
	AdverseMovePctCancel     float64
	BlacklistDurationMinutes int
	TickTimeout              time.Duration
	Watchlist                []string
	BaseTimeframe            string
}

// DefaultConfig returns the documented scan/monitor cadence and
// confirmation-window defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                     name,
		Enabled:                  true,
		CapitalPct:               20,
		MaxPositions:             3,
		ScanInterval:             45 * time.Second,
		MonitorInterval:          5 * time.Second,
		ConfirmationCandles:      1,
		ConfirmationTimeframe:    time.Minute,
		AdverseMovePctCancel:     0.4,
		BlacklistDurationMinutes: 60,
		TickTimeout:              10 * time.Second,
		BaseTimeframe:            "15m",
	}
}
