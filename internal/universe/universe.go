// Package universe
package universe

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/intraday-backtest/internal/candle"
)

// Selector picks the day's tradable instruments from the opening minutes.
type Selector interface {
	Select(oneMinCandles []candle.Candle) []string
}

// TurnoverSelector ranks instruments by total traded turnover inside the
// opening selection window (09:15-09:25 inclusive) and keeps the top N.
// Turnover sums use decimal arithmetic so the ranking never depends on
// float accumulation order; ties break by symbol for a deterministic list.
type TurnoverSelector struct {
	WindowStart time.Time
	WindowEnd   time.Time // inclusive
	TopN        int
}

func NewTurnoverSelector(windowStart, windowEnd time.Time, topN int) *TurnoverSelector {
	return &TurnoverSelector{WindowStart: windowStart, WindowEnd: windowEnd, TopN: topN}
}

func (s *TurnoverSelector) Select(oneMinCandles []candle.Candle) []string {
	totals := make(map[string]decimal.Decimal)

	for _, c := range oneMinCandles {
		if c.Timestamp.Before(s.WindowStart) || c.Timestamp.After(s.WindowEnd) {
			continue
		}
		t := turnover(c)
		totals[c.Symbol] = totals[c.Symbol].Add(t)
	}

	type ranked struct {
		symbol   string
		turnover decimal.Decimal
	}
	rankings := make([]ranked, 0, len(totals))
	for sym, t := range totals {
		rankings = append(rankings, ranked{symbol: sym, turnover: t})
	}

	sort.Slice(rankings, func(i, j int) bool {
		cmp := rankings[i].turnover.Cmp(rankings[j].turnover)
		if cmp != 0 {
			return cmp > 0
		}
		return rankings[i].symbol < rankings[j].symbol
	})

	n := s.TopN
	if n > len(rankings) {
		n = len(rankings)
	}
	selected := make([]string, 0, n)
	for _, r := range rankings[:n] {
		selected = append(selected, r.symbol)
	}
	return selected
}

// turnover prefers the candle's own turnover field; when the feed does not
// carry one, close*volume stands in for it.
func turnover(c candle.Candle) decimal.Decimal {
	if c.Turnover > 0 {
		return decimal.NewFromFloat(c.Turnover)
	}
	return decimal.NewFromFloat(c.Close).Mul(decimal.NewFromFloat(c.Volume))
}
