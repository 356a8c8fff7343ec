package scanner

import "time"

// Candidate is a symbol ranked by the momentum scan, ready to be handed
// to the Multi-Timeframe Analyzer.
type Candidate struct {
	Symbol            string    `json:"symbol"`
	PriceChange5mPct  float64   `json:"price_change_5m_pct"`
	VolumeRatio       float64   `json:"volume_ratio"`
	MomentumScore     float64   `json:"momentum_score"`
	QuoteVolume24h    float64   `json:"quote_volume_24h"`
	ScannedAt         time.Time `json:"scanned_at"`
}

// Result aggregates one scan cycle's ranked candidates.
type Result struct {
	ScanID         string      `json:"scan_id"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int         `json:"symbols_scanned"`
	Candidates     []Candidate `json:"candidates"`
}

// Config controls scan cadence, concurrency, and output size.
type Config struct {
	Enabled        bool
	ScanInterval   time.Duration
	WorkerCount    int
	TopN           int
	MinVolumeUsd   float64
	CacheTTL       time.Duration
	BlacklistGlobs []string
}

// DefaultConfig mirrors §4.4's defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ScanInterval: 45 * time.Second,
		WorkerCount:  8,
		TopN:         20,
		MinVolumeUsd: 10_000_000,
		CacheTTL:     20 * time.Second,
	}
}

type cachedResult struct {
	result    *Result
	expiresAt time.Time
}
