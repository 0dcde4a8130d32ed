package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/sim"
	"github.com/amirphl/intraday-backtest/internal/strategy"
)

// Postgres stores candles and trade records in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(connStr string, maxOpen, maxIdle int) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT             NOT NULL,
			timeframe  TEXT             NOT NULL,
			timestamp  TIMESTAMPTZ      NOT NULL,
			open       DOUBLE PRECISION NOT NULL,
			high       DOUBLE PRECISION NOT NULL,
			low        DOUBLE PRECISION NOT NULL,
			close      DOUBLE PRECISION NOT NULL,
			volume     DOUBLE PRECISION NOT NULL,
			turnover   DOUBLE PRECISION NOT NULL DEFAULT 0,
			source     TEXT             NOT NULL DEFAULT '',
			PRIMARY KEY (symbol, timeframe, timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_candles_tf_ts ON candles (timeframe, timestamp);

		CREATE TABLE IF NOT EXISTS trades (
			id          BIGSERIAL PRIMARY KEY,
			symbol      TEXT             NOT NULL,
			direction   SMALLINT         NOT NULL,
			entry_time  TIMESTAMPTZ      NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_time   TIMESTAMPTZ      NOT NULL,
			exit_price  DOUBLE PRECISION NOT NULL,
			exit_type   TEXT             NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			pnl         DOUBLE PRECISION NOT NULL,
			"return"    DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades (exit_time);
	`)
	return err
}

func (p *Postgres) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, turnover, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume,
			turnover = EXCLUDED.turnover, source = EXCLUDED.source
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for i := range candles {
		c := &candles[i]
		if err := c.Validate(); err != nil {
			tx.Rollback()
			return fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, c.Timeframe, c.Timestamp.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover, c.Source,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candles: %w", err)
	}
	return nil
}

func (p *Postgres) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume, turnover, source
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp
	`, symbol, timeframe, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func (p *Postgres) GetAllCandles(ctx context.Context, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume, turnover, source
		FROM candles
		WHERE timeframe = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp, symbol
	`, timeframe, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]candle.Candle, error) {
	var out []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.Timestamp,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Turnover, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSymbols(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func (p *Postgres) SaveTrades(ctx context.Context, trades []sim.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (symbol, direction, entry_time, entry_price, exit_time, exit_price, exit_type, quantity, pnl, "return")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.Symbol, int8(t.Direction), t.EntryTime.UTC(), t.EntryPrice,
			t.ExitTime.UTC(), t.ExitPrice, string(t.ExitType), t.Quantity, t.PnL, t.Return,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trades: %w", err)
	}
	return nil
}

func (p *Postgres) GetTrades(ctx context.Context, start, end time.Time) ([]sim.TradeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT symbol, direction, entry_time, entry_price, exit_time, exit_price, exit_type, quantity, pnl, "return"
		FROM trades
		WHERE exit_time >= $1 AND exit_time < $2
		ORDER BY exit_time
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []sim.TradeRecord
	for rows.Next() {
		var t sim.TradeRecord
		var dir int64
		var exitType string
		if err := rows.Scan(&t.Symbol, &dir, &t.EntryTime, &t.EntryPrice,
			&t.ExitTime, &t.ExitPrice, &exitType, &t.Quantity, &t.PnL, &t.Return); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Direction = strategy.Direction(dir)
		t.ExitType = sim.ExitType(exitType)
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }
