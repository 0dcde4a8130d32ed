package sim

import (
	"math"
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/strategy"
)

type ExitType string

const (
	ExitTarget     ExitType = "Target"
	ExitStopLoss   ExitType = "StopLoss"
	ExitTrailingSL ExitType = "TrailingSL"
	ExitEOD        ExitType = "EOD_SquareOff"
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateOpen
)

// Params are the exit-rule parameters, expressed as fractions of entry price
// (0.005 means 0.5%).
type Params struct {
	StopLossFrac   float64
	TakeProfitFrac float64
	TrailTrigger   float64 // favorable move that activates trailing
	TrailStep      float64 // trailing distance behind the best price
}

func DefaultParams() Params {
	return Params{
		StopLossFrac:   0.005,
		TakeProfitFrac: 0.02,
		TrailTrigger:   0.005,
		TrailStep:      0.0075,
	}
}

// Position is an open trade being advanced minute by minute.
type Position struct {
	Symbol         string
	Direction      strategy.Direction
	EntryPrice     float64
	EntryTime      time.Time
	Quantity       float64
	StopLoss       float64
	TakeProfit     float64
	TrailActive    bool
	TrailStop      float64
	BestPrice      float64 // best favorable price since entry
	CapitalAtEntry float64
}

// TradeRecord is the immutable result of one closed trade.
type TradeRecord struct {
	Symbol     string             `json:"symbol"`
	Direction  strategy.Direction `json:"direction"`
	EntryTime  time.Time          `json:"entry_time"`
	EntryPrice float64            `json:"entry_price"`
	ExitTime   time.Time          `json:"exit_time"`
	ExitPrice  float64            `json:"exit_price"`
	ExitType   ExitType           `json:"exit_type"`
	Quantity   float64            `json:"quantity"`
	PnL        float64            `json:"pnl"`
	Return     float64            `json:"return"` // PnL / capital at entry
}

// Simulator is the per-instrument execution state machine
// (Idle -> PendingOrder -> Open -> Idle). It consumes raw 1-minute candles,
// resolves stop-order fills including gap-through-trigger opens, manages the
// open-position lifecycle, and emits one TradeRecord per close.
type Simulator struct {
	symbol string
	params Params
	ledger *Ledger

	state  State
	intent *strategy.Intent
	pos    *Position
}

func NewSimulator(symbol string, params Params, ledger *Ledger) *Simulator {
	return &Simulator{symbol: symbol, params: params, ledger: ledger}
}

func (s *Simulator) State() State        { return s.state }
func (s *Simulator) Position() *Position { return s.pos }

// SubmitIntent accepts a pending order intent. Intents are ignored while a
// pending order or an open position exists for the instrument.
func (s *Simulator) SubmitIntent(it *strategy.Intent) bool {
	if s.state != StateIdle || it == nil {
		return false
	}
	s.intent = it
	s.state = StatePending
	return true
}

// OnMinute advances the state machine with the next 1-minute candle. It
// returns a TradeRecord when the candle closed a position. The only error is
// capital exhaustion, which is fatal to the run.
func (s *Simulator) OnMinute(c candle.Candle) (*TradeRecord, error) {
	switch s.state {
	case StatePending:
		return nil, s.tryFill(c)
	case StateOpen:
		return s.updateOpen(c), nil
	default:
		return nil, nil
	}
}

// tryFill resolves the pending stop order against the candle. Fill price is
// the trigger, unless the candle's open has already gapped past the trigger
// in the trade's direction: a level the market jumped over is never granted.
func (s *Simulator) tryFill(c candle.Candle) error {
	it := s.intent
	if c.Timestamp.Before(it.EarliestFill) {
		return nil
	}

	var fill float64
	switch it.Direction {
	case strategy.Long:
		if c.High < it.Trigger {
			return nil
		}
		fill = it.Trigger
		if c.Open > it.Trigger {
			fill = c.Open
		}
	case strategy.Short:
		if c.Low > it.Trigger {
			return nil
		}
		fill = it.Trigger
		if c.Open < it.Trigger {
			fill = c.Open
		}
	default:
		return nil
	}

	qty, err := s.ledger.Size(fill)
	if err != nil {
		return err
	}

	pos := &Position{
		Symbol:         s.symbol,
		Direction:      it.Direction,
		EntryPrice:     fill,
		EntryTime:      c.Timestamp,
		Quantity:       qty,
		BestPrice:      fill,
		CapitalAtEntry: s.ledger.Capital(),
	}
	if it.Direction == strategy.Long {
		pos.StopLoss = fill * (1 - s.params.StopLossFrac)
		pos.TakeProfit = fill * (1 + s.params.TakeProfitFrac)
	} else {
		pos.StopLoss = fill * (1 + s.params.StopLossFrac)
		pos.TakeProfit = fill * (1 - s.params.TakeProfitFrac)
	}

	s.pos = pos
	s.intent = nil
	s.state = StateOpen
	return nil
}

// updateOpen advances an open position by one minute: ratchet the trailing
// state, then test exit levels against the candle's range.
//
// When a single candle spans both the take-profit and an adverse level, the
// level nearer the candle's open is deemed touched first (deterministic
// synthetic intrabar path); ties go to the adverse exit.
func (s *Simulator) updateOpen(c candle.Candle) *TradeRecord {
	pos := s.pos
	long := pos.Direction == strategy.Long

	if long {
		if c.High > pos.BestPrice {
			pos.BestPrice = c.High
		}
		if !pos.TrailActive && pos.BestPrice >= pos.EntryPrice*(1+s.params.TrailTrigger) {
			pos.TrailActive = true
			pos.TrailStop = pos.BestPrice * (1 - s.params.TrailStep)
		} else if pos.TrailActive {
			if proposed := pos.BestPrice * (1 - s.params.TrailStep); proposed > pos.TrailStop {
				pos.TrailStop = proposed
			}
		}
	} else {
		if c.Low < pos.BestPrice {
			pos.BestPrice = c.Low
		}
		if !pos.TrailActive && pos.BestPrice <= pos.EntryPrice*(1-s.params.TrailTrigger) {
			pos.TrailActive = true
			pos.TrailStop = pos.BestPrice * (1 + s.params.TrailStep)
		} else if pos.TrailActive {
			if proposed := pos.BestPrice * (1 + s.params.TrailStep); proposed < pos.TrailStop {
				pos.TrailStop = proposed
			}
		}
	}

	var tpTouched bool
	var advTouched bool
	var advLevel float64
	var advType ExitType

	if long {
		tpTouched = c.High >= pos.TakeProfit
		if pos.TrailActive && c.Low <= pos.TrailStop {
			advTouched, advLevel, advType = true, pos.TrailStop, ExitTrailingSL
		} else if c.Low <= pos.StopLoss {
			advTouched, advLevel, advType = true, pos.StopLoss, ExitStopLoss
		}
	} else {
		tpTouched = c.Low <= pos.TakeProfit
		if pos.TrailActive && c.High >= pos.TrailStop {
			advTouched, advLevel, advType = true, pos.TrailStop, ExitTrailingSL
		} else if c.High >= pos.StopLoss {
			advTouched, advLevel, advType = true, pos.StopLoss, ExitStopLoss
		}
	}

	switch {
	case tpTouched && advTouched:
		if math.Abs(c.Open-advLevel) <= math.Abs(pos.TakeProfit-c.Open) {
			return s.close(c.Timestamp, advLevel, advType)
		}
		return s.close(c.Timestamp, pos.TakeProfit, ExitTarget)
	case tpTouched:
		return s.close(c.Timestamp, pos.TakeProfit, ExitTarget)
	case advTouched:
		return s.close(c.Timestamp, advLevel, advType)
	}
	return nil
}

// SquareOff force-closes any open position at the last available price and
// discards any pending intent. Called once at session end; no position ever
// carries overnight.
func (s *Simulator) SquareOff(ts time.Time, lastPrice float64) *TradeRecord {
	s.ExpirePending()
	if s.state != StateOpen {
		return nil
	}
	return s.close(ts, lastPrice, ExitEOD)
}

// ExpirePending discards a pending intent that was never filled.
func (s *Simulator) ExpirePending() {
	if s.state == StatePending {
		s.intent = nil
		s.state = StateIdle
	}
}

func (s *Simulator) close(ts time.Time, exitPrice float64, exitType ExitType) *TradeRecord {
	pos := s.pos

	var pnl float64
	if pos.Direction == strategy.Long {
		pnl = (exitPrice - pos.EntryPrice) * pos.Quantity
	} else {
		pnl = (pos.EntryPrice - exitPrice) * pos.Quantity
	}
	s.ledger.Realize(pnl)

	rec := &TradeRecord{
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitTime:   ts,
		ExitPrice:  exitPrice,
		ExitType:   exitType,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		Return:     pnl / pos.CapitalAtEntry,
	}

	s.pos = nil
	s.state = StateIdle
	return rec
}
