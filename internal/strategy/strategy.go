// Package strategy
package strategy

import (
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
)

type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Intent is a pending stop-order intent emitted by a detector on a completed
// signal candle. It lives for at most one trading day: the execution layer
// either fills it on a later 1-minute candle or discards it at session end.
type Intent struct {
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Trigger      float64   `json:"trigger"`
	SignalTime   time.Time `json:"signal_time"`   // start of the signal candle
	CreatedAt    time.Time `json:"created_at"`    // minute that completed the signal candle
	EarliestFill time.Time `json:"earliest_fill"` // first minute the trigger may be tested
}

// Detector evaluates entry conditions over the completed-candle streams of a
// single instrument-day.
type Detector interface {
	Name() string
	Symbol() string

	// OnMinute records a raw 1-minute candle. Minute candles only feed the
	// short-entry trigger window; they never touch indicator state.
	OnMinute(c candle.Candle)

	// OnTrendCandle consumes a completed trend-timeframe (60m) candle.
	OnTrendCandle(c candle.Candle)

	// OnSignalCandle consumes a completed signal-timeframe (10m) candle and
	// returns at most one intent. completedAt is the timestamp of the
	// 1-minute candle that completed it.
	OnSignalCandle(c candle.Candle, completedAt time.Time) *Intent

	// WarmupPeriod returns the number of signal candles needed before the
	// detector can emit intents at all.
	WarmupPeriod() int
}
