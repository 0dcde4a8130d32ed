// Package sim
package sim

import (
	"errors"
	"fmt"
)

// ErrCapitalExhausted is returned once capital is zero or negative; position
// sizing is undefined past that point and the run must stop.
var ErrCapitalExhausted = errors.New("capital exhausted")

// Ledger tracks the single capital scalar for a simulation run. Quantity for
// a new trade is read from capital at the moment of fill, and realized PnL is
// applied immediately on close, so consecutive trades compound. All access is
// strictly sequential; the engine never sizes two fills off the same capital
// snapshot.
type Ledger struct {
	initial float64
	capital float64

	riskFrac float64 // fraction of capital risked per trade
	stopFrac float64 // stop distance as a fraction of entry price
}

// NewLedger creates a ledger. riskPercent and stopLossPercent are expressed
// in percent (0.5 means 0.5%).
func NewLedger(initialCapital, riskPercent, stopLossPercent float64) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %.2f: %w", initialCapital, ErrCapitalExhausted)
	}
	if riskPercent <= 0 || stopLossPercent <= 0 {
		return nil, errors.New("risk percent and stop loss percent must be positive")
	}
	return &Ledger{
		initial:  initialCapital,
		capital:  initialCapital,
		riskFrac: riskPercent / 100.0,
		stopFrac: stopLossPercent / 100.0,
	}, nil
}

// Size returns the quantity for a trade entered at entryPrice:
//
//	qty = (capital * riskFrac) / (entryPrice * stopFrac)
//
// With riskFrac == stopFrac the risk term cancels and this is exactly
// capital/entryPrice.
func (l *Ledger) Size(entryPrice float64) (float64, error) {
	if l.capital <= 0 {
		return 0, fmt.Errorf("cannot size trade with capital %.2f: %w", l.capital, ErrCapitalExhausted)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %.4f", entryPrice)
	}
	riskAmount := l.capital * l.riskFrac
	riskPerUnit := entryPrice * l.stopFrac
	return riskAmount / riskPerUnit, nil
}

// Realize applies a closed trade's PnL and returns the new capital.
func (l *Ledger) Realize(pnl float64) float64 {
	l.capital += pnl
	return l.capital
}

func (l *Ledger) Capital() float64 { return l.capital }
func (l *Ledger) Initial() float64 { return l.initial }
