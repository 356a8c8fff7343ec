// Package config loads this engine's configuration from an optional
// config.json file with environment-variable overrides taking precedence,
// the same two-layer approach the teacher's config.Load uses — trimmed
// from its 20-odd SaaS sub-configs down to what a single-operator unified
// trading engine actually consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Vault        VaultConfig        `json:"vault"`
	Journal      JournalConfig      `json:"journal"`
	Blacklist    BlacklistConfig    `json:"blacklist"`
	StatusAPI    StatusAPIConfig    `json:"status_api"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Risk         RiskConfig         `json:"risk"`
	Futures      EngineConfig       `json:"futures"`
	Spot         EngineConfig       `json:"spot"`
}

// RiskConfig tunes the global risk monitor's circuit-breaker thresholds.
type RiskConfig struct {
	DailyLossLimitPct            float64 `json:"daily_loss_limit_pct"`
	MaxDrawdownPct                float64 `json:"max_drawdown_pct"`
	CircuitBreakerCooldownMinutes int     `json:"circuit_breaker_cooldown_minutes"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string `json:"level"`       // debug, info, warn, error
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// VaultConfig controls how exchange API credentials are sourced.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
	// APIKey/SecretKey/Testnet are only read when Vault is disabled, as a
	// local-development fallback seeded directly via SetCredentials.
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"testnet"`
}

// JournalConfig holds the Postgres connection parameters for the trade
// journal.
type JournalConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// BlacklistConfig holds the Redis connection parameters for the shared
// symbol blacklist.
type BlacklistConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StatusAPIConfig controls the read-only status HTTP endpoint.
type StatusAPIConfig struct {
	Enabled        bool   `json:"enabled"`
	Port           int    `json:"port"`
	Host           string `json:"host"`
	ProductionMode bool   `json:"production_mode"`
}

// OrchestratorConfig tunes the supervisor's heartbeat thresholds and
// shutdown behavior.
type OrchestratorConfig struct {
	HeartbeatWarningSeconds int `json:"heartbeat_warning_seconds"`
	HeartbeatRestartSeconds int `json:"heartbeat_restart_seconds"`
	MaxRestartAttempts      int `json:"max_restart_attempts"`
	MonitorIntervalSeconds  int `json:"monitor_interval_seconds"`
	RestartBackoffSeconds   int `json:"restart_backoff_seconds"`
	ShutdownGraceSeconds    int `json:"shutdown_grace_seconds"`
}

// EngineConfig is one trading engine's (futures or spot) configuration:
// whether it runs, its capital share, its scan/monitor cadence, and its
// confidence/sizing/leverage/stop tuning. Zero-valued numeric fields fall
// back to the consuming package's own documented defaults (see
// buildEngine's override wiring in main.go), so a config.json that only
// sets the fields it cares about behaves identically to no override at
// all.
type EngineConfig struct {
	Enabled                  bool     `json:"enabled"`
	CapitalPct               float64  `json:"capital_pct"`
	MaxPositions             int      `json:"max_positions"`
	ScanIntervalSeconds      int      `json:"scan_interval_seconds"`
	MonitorIntervalSeconds   int      `json:"monitor_interval_seconds"`
	ConfirmationCandles      int      `json:"confirmation_candles"`
	ConfirmationTimeframe    string   `json:"confirmation_timeframe"`
	AdverseMovePctCancel     float64  `json:"adverse_move_pct_cancel"`
	BlacklistDurationMinutes int      `json:"blacklist_duration_minutes"`
	Watchlist                []string `json:"watchlist"`
	BaseTimeframe            string   `json:"base_timeframe"`

	MinConfidenceTrending float64 `json:"min_confidence_trending"`
	MinConfidenceSideways float64 `json:"min_confidence_sideways"`
	SizePctMin            float64 `json:"size_pct_min"`
	SizePctMax            float64 `json:"size_pct_max"`
	LeverageMin           int     `json:"leverage_min"`
	LeverageMax           int     `json:"leverage_max"`
	AtrMultiplier         float64 `json:"atr_multiplier"`
	TrailingActivationPct float64 `json:"trailing_activation_pct"`
}

// Load reads config.json if present, then applies environment overrides on
// top. Missing config.json is not an error — env vars and defaults cover
// it, matching the teacher's graceful fallback to an empty base config.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaultConfig()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", JSONFormat: true},
		Orchestrator: OrchestratorConfig{
			HeartbeatWarningSeconds: 60,
			HeartbeatRestartSeconds: 300,
			MaxRestartAttempts:      3,
			MonitorIntervalSeconds:  1,
			RestartBackoffSeconds:   5,
			ShutdownGraceSeconds:    30,
		},
		Risk: RiskConfig{
			DailyLossLimitPct:             4.0,
			MaxDrawdownPct:                10.0,
			CircuitBreakerCooldownMinutes: 60,
		},
		Futures: EngineConfig{
			Enabled: true, CapitalPct: 60, MaxPositions: 3,
			ScanIntervalSeconds: 45, MonitorIntervalSeconds: 5,
			ConfirmationCandles: 1, ConfirmationTimeframe: "1m",
			AdverseMovePctCancel: 0.4, BlacklistDurationMinutes: 60,
			BaseTimeframe: "15m",
		},
		Spot: EngineConfig{
			Enabled: true, CapitalPct: 40, MaxPositions: 3,
			ScanIntervalSeconds: 45, MonitorIntervalSeconds: 5,
			ConfirmationCandles: 1, ConfirmationTimeframe: "1m",
			AdverseMovePctCancel: 0.4, BlacklistDurationMinutes: 60,
			BaseTimeframe: "15m",
			LeverageMin: 1, LeverageMax: 1,
		},
		StatusAPI: StatusAPIConfig{Enabled: true, Port: 8088, Host: "0.0.0.0"},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := defaultConfig()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
// BINANCE_API_KEY/BINANCE_SECRET_KEY are only consulted as the local Vault
// fallback — never logged, never round-tripped through config.json.
func applyEnvOverrides(cfg *Config) {
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
	cfg.Logging.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.Logging.IncludeFile)

	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", valueOr(cfg.Vault.MountPath, "secret"))
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", valueOr(cfg.Vault.SecretPath, "tradecore/api-keys"))
	cfg.Vault.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.Vault.APIKey)
	cfg.Vault.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.Vault.SecretKey)
	cfg.Vault.Testnet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.Vault.Testnet)

	cfg.Journal.Host = getEnvOrDefault("DB_HOST", valueOr(cfg.Journal.Host, "localhost"))
	cfg.Journal.Port = getEnvIntOrDefault("DB_PORT", valueOrInt(cfg.Journal.Port, 5432))
	cfg.Journal.User = getEnvOrDefault("DB_USER", valueOr(cfg.Journal.User, "tradecore"))
	cfg.Journal.Password = getEnvOrDefault("DB_PASSWORD", cfg.Journal.Password)
	cfg.Journal.Database = getEnvOrDefault("DB_NAME", valueOr(cfg.Journal.Database, "tradecore"))
	cfg.Journal.SSLMode = getEnvOrDefault("DB_SSLMODE", valueOr(cfg.Journal.SSLMode, "disable"))

	cfg.Blacklist.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Blacklist.Enabled)
	cfg.Blacklist.Address = getEnvOrDefault("REDIS_ADDRESS", valueOr(cfg.Blacklist.Address, "localhost:6379"))
	cfg.Blacklist.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Blacklist.Password)
	cfg.Blacklist.DB = getEnvIntOrDefault("REDIS_DB", cfg.Blacklist.DB)

	cfg.StatusAPI.Enabled = getEnvBoolOrDefault("STATUS_API_ENABLED", cfg.StatusAPI.Enabled)
	cfg.StatusAPI.Port = getEnvIntOrDefault("STATUS_API_PORT", valueOrInt(cfg.StatusAPI.Port, 8088))
	cfg.StatusAPI.Host = getEnvOrDefault("STATUS_API_HOST", valueOr(cfg.StatusAPI.Host, "0.0.0.0"))

	cfg.Risk.DailyLossLimitPct = getEnvFloatOrDefault("RISK_DAILY_LOSS_LIMIT_PCT", cfg.Risk.DailyLossLimitPct)
	cfg.Risk.MaxDrawdownPct = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PCT", cfg.Risk.MaxDrawdownPct)
	cfg.Risk.CircuitBreakerCooldownMinutes = getEnvIntOrDefault("RISK_CIRCUIT_BREAKER_COOLDOWN_MINUTES", cfg.Risk.CircuitBreakerCooldownMinutes)

	cfg.Futures.Enabled = getEnvBoolOrDefault("FUTURES_ENABLED", cfg.Futures.Enabled)
	cfg.Futures.CapitalPct = getEnvFloatOrDefault("FUTURES_CAPITAL_PCT", cfg.Futures.CapitalPct)
	cfg.Futures.MinConfidenceTrending = getEnvFloatOrDefault("FUTURES_MIN_CONFIDENCE_TRENDING", cfg.Futures.MinConfidenceTrending)
	cfg.Futures.MinConfidenceSideways = getEnvFloatOrDefault("FUTURES_MIN_CONFIDENCE_SIDEWAYS", cfg.Futures.MinConfidenceSideways)
	cfg.Futures.SizePctMin = getEnvFloatOrDefault("FUTURES_SIZE_PCT_MIN", cfg.Futures.SizePctMin)
	cfg.Futures.SizePctMax = getEnvFloatOrDefault("FUTURES_SIZE_PCT_MAX", cfg.Futures.SizePctMax)
	cfg.Futures.LeverageMin = getEnvIntOrDefault("FUTURES_LEVERAGE_MIN", cfg.Futures.LeverageMin)
	cfg.Futures.LeverageMax = getEnvIntOrDefault("FUTURES_LEVERAGE_MAX", cfg.Futures.LeverageMax)
	cfg.Futures.AtrMultiplier = getEnvFloatOrDefault("FUTURES_ATR_MULTIPLIER", cfg.Futures.AtrMultiplier)
	cfg.Futures.TrailingActivationPct = getEnvFloatOrDefault("FUTURES_TRAILING_ACTIVATION_PCT", cfg.Futures.TrailingActivationPct)

	cfg.Spot.Enabled = getEnvBoolOrDefault("SPOT_ENABLED", cfg.Spot.Enabled)
	cfg.Spot.CapitalPct = getEnvFloatOrDefault("SPOT_CAPITAL_PCT", cfg.Spot.CapitalPct)
	cfg.Spot.MinConfidenceTrending = getEnvFloatOrDefault("SPOT_MIN_CONFIDENCE_TRENDING", cfg.Spot.MinConfidenceTrending)
	cfg.Spot.MinConfidenceSideways = getEnvFloatOrDefault("SPOT_MIN_CONFIDENCE_SIDEWAYS", cfg.Spot.MinConfidenceSideways)
	cfg.Spot.SizePctMin = getEnvFloatOrDefault("SPOT_SIZE_PCT_MIN", cfg.Spot.SizePctMin)
	cfg.Spot.SizePctMax = getEnvFloatOrDefault("SPOT_SIZE_PCT_MAX", cfg.Spot.SizePctMax)
	cfg.Spot.LeverageMin = getEnvIntOrDefault("SPOT_LEVERAGE_MIN", cfg.Spot.LeverageMin)
	cfg.Spot.LeverageMax = getEnvIntOrDefault("SPOT_LEVERAGE_MAX", cfg.Spot.LeverageMax)
	cfg.Spot.AtrMultiplier = getEnvFloatOrDefault("SPOT_ATR_MULTIPLIER", cfg.Spot.AtrMultiplier)
	cfg.Spot.TrailingActivationPct = getEnvFloatOrDefault("SPOT_TRAILING_ACTIVATION_PCT", cfg.Spot.TrailingActivationPct)
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func valueOrInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
