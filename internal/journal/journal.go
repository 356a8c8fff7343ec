// Package journal is the append-only Trade Journal: the durable record of
// every completed trade, ordered by completion time. Adapted from the
// teacher's pgx-backed Repository/DB pair, trimmed from its multi-tenant
// trades table down to the single-operator schema this engine needs.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tradecore/internal/logging"
	"tradecore/internal/model"
)

// Config holds the Postgres connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DB wraps the connection pool backing the journal.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens and verifies the connection pool, per the teacher's
// NewDB bring-up sequence.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create journal connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	logging.Component("journal").Info().Str("database", cfg.Database).Msg("connected to trade journal")
	return &DB{Pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Migrate creates the trade_records table if it does not already exist.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trade_records (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			engine VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			leverage INTEGER NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			exit_reason VARCHAR(40) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_trade_records_exit_time ON trade_records (exit_time);
		CREATE INDEX IF NOT EXISTS idx_trade_records_symbol ON trade_records (symbol);
	`)
	if err != nil {
		return fmt.Errorf("migrate trade_records: %w", err)
	}
	return nil
}

// Journal is the append-only trade record store.
type Journal struct {
	db *DB
}

// New constructs a Journal over an already-connected DB.
func New(db *DB) *Journal {
	return &Journal{db: db}
}

// Append records a completed trade. Writes are append-only; the journal
// never updates or deletes a record once written.
func (j *Journal) Append(ctx context.Context, rec model.TradeRecord) error {
	_, err := j.db.Pool.Exec(ctx, `
		INSERT INTO trade_records
			(symbol, engine, side, entry_time, exit_time, entry_price, exit_price, quantity, leverage, realized_pnl, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.Symbol, rec.Engine, string(rec.Side), rec.EntryTime, rec.ExitTime,
		rec.EntryPrice, rec.ExitPrice, rec.Quantity, rec.Leverage, rec.RealizedPnl, rec.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("append trade record: %w", err)
	}
	return nil
}

// Recent returns the most recently completed trades, ordered by exit time
// descending, per the documented ordering guarantee.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	rows, err := j.db.Pool.Query(ctx, `
		SELECT symbol, engine, side, entry_time, exit_time, entry_price, exit_price, quantity, leverage, realized_pnl, exit_reason
		FROM trade_records
		ORDER BY exit_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trade records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// BySymbol returns completed trades for symbol, most recent first.
func (j *Journal) BySymbol(ctx context.Context, symbol string, limit int) ([]model.TradeRecord, error) {
	rows, err := j.db.Pool.Query(ctx, `
		SELECT symbol, engine, side, entry_time, exit_time, entry_price, exit_price, quantity, leverage, realized_pnl, exit_reason
		FROM trade_records
		WHERE symbol = $1
		ORDER BY exit_time DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade records by symbol: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRecords(rows rowScanner) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var rec model.TradeRecord
		var side string
		if err := rows.Scan(
			&rec.Symbol, &rec.Engine, &side, &rec.EntryTime, &rec.ExitTime,
			&rec.EntryPrice, &rec.ExitPrice, &rec.Quantity, &rec.Leverage, &rec.RealizedPnl, &rec.ExitReason,
		); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		rec.Side = model.Side(side)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SymbolStats computes the rolling win-rate/reward-risk statistics the
// Position Sizer's Kelly guard consumes, derived from journaled history.
func (j *Journal) SymbolStats(ctx context.Context, symbol string, lookback int) (closedTrades int, winRate, rewardRiskRatio float64, err error) {
	records, err := j.BySymbol(ctx, symbol, lookback)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, 0, nil
	}

	var wins, losses int
	var grossWin, grossLoss float64
	for _, r := range records {
		if r.IsWinner() {
			wins++
			grossWin += r.RealizedPnl
		} else {
			losses++
			grossLoss += -r.RealizedPnl
		}
	}

	closedTrades = len(records)
	winRate = float64(wins) / float64(closedTrades)

	avgWin := 0.0
	if wins > 0 {
		avgWin = grossWin / float64(wins)
	}
	avgLoss := 0.0
	if losses > 0 {
		avgLoss = grossLoss / float64(losses)
	}
	if avgLoss > 0 {
		rewardRiskRatio = avgWin / avgLoss
	}
	return closedTrades, winRate, rewardRiskRatio, nil
}
