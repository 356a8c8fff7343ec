package engine

// FuturesEngine runs the leveraged perpetual-futures strategy. It is a
// thin specialization of BaseEngine: the scan/monitor loop logic, gate,
// sizer, and trailing behavior are identical across engine kinds, so only
// the defaulted configuration differs.
type FuturesEngine struct {
	*BaseEngine
}

// NewFuturesEngine constructs a futures engine with cfg.Name defaulted to
// "futures" when unset.
func NewFuturesEngine(cfg Config, deps Dependencies) *FuturesEngine {
	if cfg.Name == "" {
		cfg.Name = "futures"
	}
	return &FuturesEngine{BaseEngine: New(cfg, deps)}
}
