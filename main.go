package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradecore/config"
	"tradecore/internal/analyzer"
	"tradecore/internal/binance"
	"tradecore/internal/blacklist"
	"tradecore/internal/clock"
	"tradecore/internal/correlation"
	"tradecore/internal/engine"
	"tradecore/internal/events"
	"tradecore/internal/gate"
	"tradecore/internal/journal"
	"tradecore/internal/logging"
	"tradecore/internal/marketdata"
	"tradecore/internal/model"
	"tradecore/internal/orchestrator"
	"tradecore/internal/risk"
	"tradecore/internal/scanner"
	"tradecore/internal/sizer"
	"tradecore/internal/statusapi"
	"tradecore/internal/trailing"
	"tradecore/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logging.Init(logging.Config{
		Level:       cfg.Logging.Level,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
	})
	logger := logging.Component("main")
	logger.Info().Msg("starting tradecore")

	credentials, err := resolveCredentials(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve exchange credentials")
	}

	client := binance.NewFuturesClient(credentials.APIKey, credentials.SecretKey, credentials.Testnet)

	hub := marketdata.NewHub(2*time.Minute, 10*time.Second)
	bl := blacklist.New(blacklist.Config{
		Enabled:  cfg.Blacklist.Enabled,
		Address:  cfg.Blacklist.Address,
		Password: cfg.Blacklist.Password,
		DB:       cfg.Blacklist.DB,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	journalWriter := connectJournal(ctx, cfg)

	bus := events.NewBus()
	realClock := clock.Real{}
	riskMonitor := risk.New(riskConfigFrom(cfg.Risk), realClock)
	corrTracker := correlation.NewTracker(correlation.DefaultGroups())

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Health.WarningAfter = time.Duration(cfg.Orchestrator.HeartbeatWarningSeconds) * time.Second
	orchCfg.Health.RestartAfter = time.Duration(cfg.Orchestrator.HeartbeatRestartSeconds) * time.Second
	orchCfg.Health.MaxRestartAttempts = cfg.Orchestrator.MaxRestartAttempts
	orchCfg.MonitorInterval = time.Duration(cfg.Orchestrator.MonitorIntervalSeconds) * time.Second
	orchCfg.RestartBackoff = time.Duration(cfg.Orchestrator.RestartBackoffSeconds) * time.Second
	orchCfg.ShutdownGracePeriod = time.Duration(cfg.Orchestrator.ShutdownGraceSeconds) * time.Second

	var portfolioUsd = func() float64 { return 10000 } // TODO: source from exchange account equity once wired

	orch := orchestrator.New(orchCfg, realClock, bus, riskMonitor, corrTracker, portfolioUsd)
	exposure := &orchestrator.ExposureView{Allocator: orch.Allocator(), PortfolioUsd: portfolioUsd}

	if cfg.Futures.Enabled {
		fe := buildEngine("futures", cfg.Futures, client, hub, bl, journalWriter, bus, riskMonitor, corrTracker, exposure, realClock, portfolioUsd)
		orch.Register(fe, cfg.Futures.CapitalPct, cfg.Futures.Enabled)
	}
	if cfg.Spot.Enabled {
		se := buildEngine("spot", cfg.Spot, client, hub, bl, journalWriter, bus, riskMonitor, corrTracker, exposure, realClock, portfolioUsd)
		orch.Register(se, cfg.Spot.CapitalPct, cfg.Spot.Enabled)
	}

	if err := orch.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	var statusServer *statusapi.Server
	if cfg.StatusAPI.Enabled {
		statusServer = statusapi.NewServer(statusapi.Config{
			Port:           cfg.StatusAPI.Port,
			Host:           cfg.StatusAPI.Host,
			ProductionMode: cfg.StatusAPI.ProductionMode,
		}, orch)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error().Err(err).Msg("status server exited")
			}
		}()
	}

	logger.Info().Msg("tradecore running, waiting for shutdown signal")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining")

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("status server shutdown error")
		}
		shutdownCancel()
	}

	orch.Stop()
	logger.Info().Msg("tradecore stopped")
}

// resolveCredentials sources exchange credentials from Vault when enabled,
// falling back to the locally-configured key pair for development runs.
func resolveCredentials(cfg *config.Config) (vault.Credentials, error) {
	provider, err := vault.NewProvider(vault.Config{
		Enabled:    cfg.Vault.Enabled,
		Address:    cfg.Vault.Address,
		Token:      cfg.Vault.Token,
		MountPath:  cfg.Vault.MountPath,
		SecretPath: cfg.Vault.SecretPath,
		TLSEnabled: cfg.Vault.TLSEnabled,
		CACert:     cfg.Vault.CACert,
	})
	if err != nil {
		return vault.Credentials{}, err
	}

	if !cfg.Vault.Enabled {
		provider.SetCredentials(vault.Credentials{
			APIKey:    cfg.Vault.APIKey,
			SecretKey: cfg.Vault.SecretKey,
			Testnet:   cfg.Vault.Testnet,
		})
	}

	return provider.Credentials(context.Background())
}

// noopJournal discards every record. Used when Postgres is unreachable at
// startup so the engine still runs, just without trade history
// persistence, matching the teacher's tolerance for a degraded startup.
type noopJournal struct{}

func (noopJournal) Append(ctx context.Context, rec model.TradeRecord) error { return nil }
func (noopJournal) SymbolStats(ctx context.Context, symbol string, lookback int) (int, float64, float64, error) {
	return 0, 0, 0, nil
}

// connectJournal connects to Postgres and returns a ready JournalWriter. A
// connection failure is logged but non-fatal.
func connectJournal(ctx context.Context, cfg *config.Config) engine.JournalWriter {
	log := logging.Component("main")
	db, err := journal.Connect(ctx, journal.Config{
		Host:     cfg.Journal.Host,
		Port:     cfg.Journal.Port,
		User:     cfg.Journal.User,
		Password: cfg.Journal.Password,
		Database: cfg.Journal.Database,
		SSLMode:  cfg.Journal.SSLMode,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to trade journal database, continuing without persistence")
		return noopJournal{}
	}
	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to migrate trade journal schema")
	}
	return journal.New(db)
}

// buildEngine wires one engine's full dependency graph: its own scanner,
// analyzer, sizer, trailing manager, and signal quality gate, sharing the
// market data hub, blacklist, journal, risk monitor, and correlation
// tracker across every engine.
func buildEngine(
	name string,
	ecfg config.EngineConfig,
	client binance.Client,
	hub *marketdata.Hub,
	bl *blacklist.Store,
	journalWriter engine.JournalWriter,
	bus *events.Bus,
	riskMonitor *risk.Monitor,
	corrTracker *correlation.Tracker,
	exposure *orchestrator.ExposureView,
	clk clock.Clock,
	portfolioUsd func() float64,
) orchestrator.Engine {
	confirmTimeframe, err := time.ParseDuration(ecfg.ConfirmationTimeframe)
	if err != nil {
		confirmTimeframe = time.Minute
	}

	engineCfg := engine.Config{
		Name:                     name,
		Enabled:                  ecfg.Enabled,
		CapitalPct:               ecfg.CapitalPct,
		MaxPositions:             ecfg.MaxPositions,
		ScanInterval:             time.Duration(ecfg.ScanIntervalSeconds) * time.Second,
		MonitorInterval:          time.Duration(ecfg.MonitorIntervalSeconds) * time.Second,
		ConfirmationCandles:      ecfg.ConfirmationCandles,
		ConfirmationTimeframe:    confirmTimeframe,
		AdverseMovePctCancel:     ecfg.AdverseMovePctCancel,
		BlacklistDurationMinutes: ecfg.BlacklistDurationMinutes,
		TickTimeout:              10 * time.Second,
		Watchlist:                ecfg.Watchlist,
		BaseTimeframe:            valueOrDefault(ecfg.BaseTimeframe, "15m"),
	}

	scannerCfg := scanner.DefaultConfig()
	sc := scanner.New(client, client, bl, scannerCfg)
	an := analyzer.New(analyzer.DefaultConfig(), hub)
	gt := gate.New(gateConfigFrom(ecfg), bl, exposure, corrTracker, riskMonitor)
	sz := sizer.New(sizerConfigFrom(ecfg))
	trailingCfg := trailingConfigFrom(ecfg)
	tr := trailing.New(trailingCfg)

	deps := engine.Dependencies{
		Hub:          hub,
		Scanner:      sc,
		Analyzer:     an,
		Gate:         gt,
		Sizer:        sz,
		Trailing:     tr,
		TrailingCfg:  trailingCfg,
		Risk:         riskMonitor,
		Journal:      journalWriter,
		Bus:          bus,
		Blacklist:    bl,
		Exposure:     exposure,
		Client:       client,
		Clock:        clk,
		PortfolioUsd: portfolioUsd,
	}

	if name == "spot" {
		return engine.NewSpotEngine(engineCfg, deps)
	}
	return engine.NewFuturesEngine(engineCfg, deps)
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// riskConfigFrom builds the global risk monitor's config from the loaded
// configuration, falling back to risk.DefaultConfig's values field-by-field
// for anything left at its zero value.
func riskConfigFrom(rcfg config.RiskConfig) risk.Config {
	cfg := risk.DefaultConfig()
	if rcfg.DailyLossLimitPct != 0 {
		cfg.DailyLossLimitPct = rcfg.DailyLossLimitPct
	}
	if rcfg.MaxDrawdownPct != 0 {
		cfg.MaxDrawdownPct = rcfg.MaxDrawdownPct
	}
	if rcfg.CircuitBreakerCooldownMinutes != 0 {
		cfg.CircuitBreakerCooldown = time.Duration(rcfg.CircuitBreakerCooldownMinutes) * time.Minute
	}
	return cfg
}

// gateConfigFrom builds one engine's signal quality gate config, overriding
// gate.DefaultConfig's confidence floors from the engine's own configured
// values when set.
func gateConfigFrom(ecfg config.EngineConfig) gate.Config {
	cfg := gate.DefaultConfig()
	if ecfg.MinConfidenceTrending != 0 {
		cfg.TrendingMinConfidence = ecfg.MinConfidenceTrending
	}
	if ecfg.MinConfidenceSideways != 0 {
		cfg.OtherMinConfidence = ecfg.MinConfidenceSideways
	}
	return cfg
}

// sizerConfigFrom builds one engine's position-sizing bounds, overriding
// sizer.DefaultConfig's size/leverage range from the engine's own
// configured values when set.
func sizerConfigFrom(ecfg config.EngineConfig) sizer.Config {
	cfg := sizer.DefaultConfig()
	if ecfg.SizePctMin != 0 {
		cfg.MinSizePct = ecfg.SizePctMin
	}
	if ecfg.SizePctMax != 0 {
		cfg.MaxSizePct = ecfg.SizePctMax
	}
	if ecfg.LeverageMin != 0 {
		cfg.MinLeverage = ecfg.LeverageMin
	}
	if ecfg.LeverageMax != 0 {
		cfg.MaxLeverage = ecfg.LeverageMax
	}
	return cfg
}

// trailingConfigFrom builds one engine's stop/trailing config. AtrMultiplier
// and TrailingActivationPct, when configured, override only the TRENDING
// regime's ATR multiplier and the default (non-regime-specific) activation
// threshold — the common-case knobs an operator tunes — leaving the other
// per-regime entries at their documented defaults.
func trailingConfigFrom(ecfg config.EngineConfig) trailing.Config {
	cfg := trailing.DefaultConfig()
	if ecfg.AtrMultiplier != 0 {
		cfg.AtrMultiplierByRegime[model.RegimeTrending] = ecfg.AtrMultiplier
	}
	if ecfg.TrailingActivationPct != 0 {
		cfg.DefaultActivationPct = ecfg.TrailingActivationPct
		cfg.ActivationByRegime[model.RegimeTrending] = ecfg.TrailingActivationPct
	}
	return cfg
}
