package strategy

import (
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/indicator"
)

const (
	shortTriggerLookback = 5
	signalCandleMinutes  = 10
)

// TrendMomentum is the multi-timeframe trend/momentum detector:
//
//   - Long: EMA(3) crosses strictly above EMA(10) on the signal candle,
//     RSI(14) > 60, and the signal close is above EMA(50) of the trend
//     timeframe. Trigger is the signal candle's high.
//   - Short: EMA(3) crosses strictly below EMA(10), RSI(14) < 30, close below
//     EMA(50). Trigger is the lowest low of the five 1-minute candles that
//     precede the signal candle's start; the signal candle's own minutes are
//     never part of the window.
//
// No intent is emitted before the first trend candle completes: every value
// the detector gates on reflects only candles that have fully closed.
type TrendMomentum struct {
	symbol string

	emaFast *indicator.EMA
	emaSlow *indicator.EMA
	rsi     *indicator.WilderRSI
	emaTrnd *indicator.EMA

	rsiLong  float64
	rsiShort float64

	trendValue float64
	trendReady bool

	prevFast float64
	prevSlow float64
	havePrev bool

	// recent minute (timestamp, low) pairs for the short trigger window
	minutes []minuteLow
}

type minuteLow struct {
	ts  time.Time
	low float64
}

func NewTrendMomentum(symbol string) *TrendMomentum {
	return &TrendMomentum{
		symbol:   symbol,
		emaFast:  indicator.NewEMA(3),
		emaSlow:  indicator.NewEMA(10),
		rsi:      indicator.NewWilderRSI(14),
		emaTrnd:  indicator.NewEMA(50),
		rsiLong:  60,
		rsiShort: 30,
	}
}

func (s *TrendMomentum) Name() string   { return "Trend Momentum" }
func (s *TrendMomentum) Symbol() string { return s.symbol }

// WarmupPeriod reports the RSI requirement; trend-candle gating is stricter
// in practice and enforced separately.
func (s *TrendMomentum) WarmupPeriod() int { return s.rsi.Period() + 1 }

func (s *TrendMomentum) OnMinute(c candle.Candle) {
	s.minutes = append(s.minutes, minuteLow{ts: c.Timestamp, low: c.Low})
	// By the time a signal candle completes, all of its own minutes have
	// been recorded here, so history must span the candle plus the trigger
	// window behind it.
	cutoff := c.Timestamp.Add(-(signalCandleMinutes + shortTriggerLookback) * time.Minute)
	for len(s.minutes) > 0 && s.minutes[0].ts.Before(cutoff) {
		s.minutes = s.minutes[1:]
	}
}

func (s *TrendMomentum) OnTrendCandle(c candle.Candle) {
	s.trendValue = s.emaTrnd.Update(c.Close)
	s.trendReady = true
}

func (s *TrendMomentum) OnSignalCandle(c candle.Candle, completedAt time.Time) *Intent {
	fast := s.emaFast.Update(c.Close)
	slow := s.emaSlow.Update(c.Close)
	s.rsi.Update(c.Close)

	prevFast, prevSlow, havePrev := s.prevFast, s.prevSlow, s.havePrev
	s.prevFast, s.prevSlow, s.havePrev = fast, slow, true

	// Trading is suppressed entirely until the first trend candle has fully
	// closed and the momentum oscillator is defined.
	if !s.trendReady || !havePrev {
		return nil
	}
	rsiVal, ok := s.rsi.Value()
	if !ok {
		return nil
	}

	crossedUp := prevFast <= prevSlow && fast > slow
	crossedDown := prevFast >= prevSlow && fast < slow

	if crossedUp && rsiVal > s.rsiLong && c.Close > s.trendValue {
		return &Intent{
			Symbol:       s.symbol,
			Direction:    Long,
			Trigger:      c.High,
			SignalTime:   c.Timestamp,
			CreatedAt:    completedAt,
			EarliestFill: completedAt.Add(time.Minute),
		}
	}

	if crossedDown && rsiVal < s.rsiShort && c.Close < s.trendValue {
		trigger, ok := s.lowestLowBefore(c.Timestamp)
		if !ok {
			// No prior minutes exist in the session; there is no price to
			// anchor the stop order to, so the signal is dropped.
			return nil
		}
		return &Intent{
			Symbol:       s.symbol,
			Direction:    Short,
			Trigger:      trigger,
			SignalTime:   c.Timestamp,
			CreatedAt:    completedAt,
			EarliestFill: completedAt.Add(time.Minute),
		}
	}

	return nil
}

// lowestLowBefore returns the minimum low over the minutes in
// [barStart-5m, barStart-1m]. When fewer than five prior minutes exist in the
// session, whatever is available is used.
func (s *TrendMomentum) lowestLowBefore(barStart time.Time) (float64, bool) {
	windowStart := barStart.Add(-shortTriggerLookback * time.Minute)
	low := 0.0
	found := false
	for _, m := range s.minutes {
		if m.ts.Before(windowStart) || !m.ts.Before(barStart) {
			continue
		}
		if !found || m.low < low {
			low = m.low
			found = true
		}
	}
	return low, found
}
