package backtest

import (
	"log"
	"math"

	"github.com/amirphl/intraday-backtest/internal/sim"
)

// Summary is the portfolio-level aggregation over the trade log. Portfolio
// equity is the cumulative product of (1 + per-trade return), matching the
// compounding ledger.
type Summary struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	LongTrades  int     `json:"long_trades"`
	ShortTrades int     `json:"short_trades"`
	WinRate     float64 `json:"win_rate"`
	TotalReturn float64 `json:"total_return"` // fraction, e.g. 0.12 for +12%
	MaxDrawdown float64 `json:"max_drawdown"` // fraction, <= 0
	Sharpe      float64 `json:"sharpe"`       // annualized over per-trade returns

	ExitCounts map[sim.ExitType]int `json:"exit_counts"`
}

// ComputeSummary aggregates closed trades, assumed ordered by exit time.
func ComputeSummary(trades []sim.TradeRecord) Summary {
	s := Summary{ExitCounts: make(map[sim.ExitType]int)}
	if len(trades) == 0 {
		return s
	}

	equity := 1.0
	peak := 1.0
	var meanRet, m2 float64

	for i, t := range trades {
		s.Trades++
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if t.Direction > 0 {
			s.LongTrades++
		} else {
			s.ShortTrades++
		}
		s.ExitCounts[t.ExitType]++

		equity *= 1 + t.Return
		if equity > peak {
			peak = equity
		}
		if dd := equity/peak - 1; dd < s.MaxDrawdown {
			s.MaxDrawdown = dd
		}

		// Welford's running mean/variance over per-trade returns
		delta := t.Return - meanRet
		meanRet += delta / float64(i+1)
		m2 += delta * (t.Return - meanRet)
	}

	s.WinRate = float64(s.Wins) / float64(s.Trades)
	s.TotalReturn = equity - 1

	std := math.Sqrt(m2 / float64(s.Trades))
	if std > 0 {
		s.Sharpe = meanRet / std * math.Sqrt(252)
	}
	return s
}

// PrintSummary writes the run summary to the standard logger.
func PrintSummary(r *Results) {
	s := r.Summary
	log.Printf("Backtest Results:")
	log.Printf("  Days=%d (skipped=%d), Trades=%d (Long=%d, Short=%d)",
		r.DaysProcessed, r.DaysSkipped, s.Trades, s.LongTrades, s.ShortTrades)
	log.Printf("  Capital: %.2f -> %.2f", r.InitialCapital, r.FinalCapital)
	log.Printf("  TotalReturn=%.2f%%, WinRate=%.2f%%, MaxDrawdown=%.2f%%, Sharpe=%.2f",
		s.TotalReturn*100, s.WinRate*100, s.MaxDrawdown*100, s.Sharpe)
	log.Printf("  Exits: Target=%d, StopLoss=%d, TrailingSL=%d, EOD=%d",
		s.ExitCounts[sim.ExitTarget], s.ExitCounts[sim.ExitStopLoss],
		s.ExitCounts[sim.ExitTrailingSL], s.ExitCounts[sim.ExitEOD])
}
