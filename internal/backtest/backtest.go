// Package backtest
package backtest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/config"
	"github.com/amirphl/intraday-backtest/internal/db"
	"github.com/amirphl/intraday-backtest/internal/journal"
	"github.com/amirphl/intraday-backtest/internal/sim"
	"github.com/amirphl/intraday-backtest/internal/strategy"
	"github.com/amirphl/intraday-backtest/internal/universe"
)

// Results holds the outcome of a full simulation run.
type Results struct {
	Trades         []sim.TradeRecord
	DaysProcessed  int
	DaysSkipped    int
	InitialCapital float64
	FinalCapital   float64
	Summary        Summary
}

// instrument bundles the per-symbol runtime advanced in lockstep: bar
// aggregation, the signal detector, and the execution state machine.
type instrument struct {
	detector  strategy.Detector
	simulator *sim.Simulator
	aggSignal *candle.SessionAggregator
	aggTrend  *candle.SessionAggregator

	bars      map[time.Time]candle.Candle
	lastBarAt time.Time
	lastPrice float64
	hasPrice  bool
}

// Run executes the backtest over every session day in [cfg.From, cfg.To).
// One ledger is carried across days, so realized PnL compounds into the
// sizing of every later trade. The only fatal simulation error is capital
// exhaustion.
func Run(ctx context.Context, cfg config.Config, storage db.Storage, tradeLog journal.Writer) (*Results, error) {
	candles, err := storage.GetAllCandles(ctx, "1m", cfg.From, cfg.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no 1m candles in [%s, %s)", cfg.From.Format("2006-01-02"), cfg.To.Format("2006-01-02"))
	}

	days := groupByDay(candles)
	dayKeys := make([]time.Time, 0, len(days))
	for d := range days {
		dayKeys = append(dayKeys, d)
	}
	sort.Slice(dayKeys, func(i, j int) bool { return dayKeys[i].Before(dayKeys[j]) })

	ledger, err := sim.NewLedger(cfg.BaseCapital, cfg.RiskPercent, cfg.StopLossPercent)
	if err != nil {
		return nil, err
	}
	params := sim.Params{
		StopLossFrac:   cfg.StopLossPercent / 100.0,
		TakeProfitFrac: cfg.TakeProfitPercent / 100.0,
		TrailTrigger:   cfg.TrailTriggerPercent / 100.0,
		TrailStep:      cfg.TrailStepPercent / 100.0,
	}

	results := &Results{InitialCapital: ledger.Initial()}

	for _, day := range dayKeys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		trades, err := runDay(cfg, params, ledger, day, days[day])
		if err != nil {
			return nil, fmt.Errorf("day %s: %w", day.Format("2006-01-02"), err)
		}
		if trades == nil {
			results.DaysSkipped++
			continue
		}
		results.DaysProcessed++

		for _, t := range trades {
			if tradeLog != nil {
				if err := tradeLog.WriteTrade(t); err != nil {
					return nil, fmt.Errorf("failed to journal trade: %w", err)
				}
			}
		}
		if err := storage.SaveTrades(ctx, trades); err != nil {
			return nil, fmt.Errorf("failed to persist trades: %w", err)
		}
		results.Trades = append(results.Trades, trades...)
	}

	results.FinalCapital = ledger.Capital()
	results.Summary = ComputeSummary(results.Trades)
	return results, nil
}

// runDay simulates one session day. It returns nil trades (and nil error)
// when the day is skipped for lack of a universe.
func runDay(cfg config.Config, params sim.Params, ledger *sim.Ledger, day time.Time, dayCandles []candle.Candle) ([]sim.TradeRecord, error) {
	sessionOpen := cfg.SessionOpenFor(day)
	sessionClose := cfg.SessionCloseFor(day)

	selector := universe.NewTurnoverSelector(sessionOpen, cfg.SelectionEndFor(day), cfg.UniverseSize)
	symbols := selector.Select(dayCandles)
	if len(symbols) == 0 {
		log.Printf("Backtest | Skipping %s: empty universe", day.Format("2006-01-02"))
		return nil, nil
	}

	instruments := make(map[string]*instrument, len(symbols))
	for _, sym := range symbols {
		aggSignal, err := candle.NewSessionAggregator(sym, cfg.SignalTimeframe, sessionOpen)
		if err != nil {
			return nil, err
		}
		aggTrend, err := candle.NewSessionAggregator(sym, cfg.TrendTimeframe, sessionOpen)
		if err != nil {
			return nil, err
		}
		instruments[sym] = &instrument{
			detector:  strategy.NewTrendMomentum(sym),
			simulator: sim.NewSimulator(sym, params, ledger),
			aggSignal: aggSignal,
			aggTrend:  aggTrend,
			bars:      make(map[time.Time]candle.Candle),
		}
	}
	for _, c := range dayCandles {
		inst, ok := instruments[c.Symbol]
		if !ok || c.Timestamp.Before(sessionOpen) || !c.Timestamp.Before(sessionClose) {
			continue
		}
		inst.bars[c.Timestamp.Truncate(time.Minute)] = c
	}

	trades := make([]sim.TradeRecord, 0)

	// All instruments advance minute by minute in lockstep, so capital
	// reads and writes are strictly serialized across fills and closes.
	for ts := sessionOpen; ts.Before(sessionClose); ts = ts.Add(time.Minute) {
		for _, sym := range symbols {
			inst := instruments[sym]
			bar, ok := inst.bars[ts]
			if !ok {
				// Missing minute: the instrument sits this one out.
				continue
			}

			rec, err := inst.simulator.OnMinute(bar)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				trades = append(trades, *rec)
			}

			inst.detector.OnMinute(bar)

			// Signal-timeframe completion is handled before the trend
			// timeframe: a signal candle closing in the same minute as the
			// first trend candle must not see it, which keeps every signal
			// strictly after the first trend close.
			completed, err := inst.aggSignal.Add(bar)
			if err != nil {
				log.Printf("Backtest | %s: signal aggregation error at %s: %v", sym, ts, err)
				continue
			}
			for _, sc := range completed {
				intent := inst.detector.OnSignalCandle(sc, bar.Timestamp)
				if intent != nil {
					inst.simulator.SubmitIntent(intent)
				}
			}

			trendCompleted, err := inst.aggTrend.Add(bar)
			if err != nil {
				log.Printf("Backtest | %s: trend aggregation error at %s: %v", sym, ts, err)
				continue
			}
			for _, tc := range trendCompleted {
				inst.detector.OnTrendCandle(tc)
			}

			inst.lastPrice = bar.Close
			inst.lastBarAt = bar.Timestamp
			inst.hasPrice = true
		}
	}

	// Session end: pendings expire, open positions are squared off at the
	// last traded price.
	for _, sym := range symbols {
		inst := instruments[sym]
		if !inst.hasPrice {
			inst.simulator.ExpirePending()
			continue
		}
		if rec := inst.simulator.SquareOff(inst.lastBarAt, inst.lastPrice); rec != nil {
			trades = append(trades, *rec)
		}
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExitTime.Before(trades[j].ExitTime)
	})
	return trades, nil
}

func groupByDay(candles []candle.Candle) map[time.Time][]candle.Candle {
	days := make(map[time.Time][]candle.Candle)
	for _, c := range candles {
		d := time.Date(c.Timestamp.Year(), c.Timestamp.Month(), c.Timestamp.Day(), 0, 0, 0, 0, c.Timestamp.Location())
		days[d] = append(days[d], c)
	}
	return days
}
