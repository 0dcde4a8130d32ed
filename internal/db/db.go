// Package db
package db

import (
	"context"
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/sim"
)

// Storage is the interface for all persistent storage used by the engine:
// historical 1-minute candles in, closed-trade records out.
type Storage interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	// GetCandles returns candles for one symbol ordered by timestamp,
	// with start inclusive and end exclusive.
	GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
	// GetAllCandles returns candles across all symbols ordered by
	// timestamp, then symbol.
	GetAllCandles(ctx context.Context, timeframe string, start, end time.Time) ([]candle.Candle, error)
	GetSymbols(ctx context.Context) ([]string, error)

	SaveTrades(ctx context.Context, trades []sim.TradeRecord) error
	GetTrades(ctx context.Context, start, end time.Time) ([]sim.TradeRecord, error)

	Close() error
}
