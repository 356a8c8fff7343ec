package engine

// SpotEngine runs the unleveraged spot strategy. Leverage is pinned to 1×
// at the sizer/gate layer via configuration; the loop mechanics are
// otherwise identical to FuturesEngine, both sharing BaseEngine.
type SpotEngine struct {
	*BaseEngine
}

// NewSpotEngine constructs a spot engine with cfg.Name defaulted to "spot"
// when unset.
func NewSpotEngine(cfg Config, deps Dependencies) *SpotEngine {
	if cfg.Name == "" {
		cfg.Name = "spot"
	}
	return &SpotEngine{BaseEngine: New(cfg, deps)}
}
