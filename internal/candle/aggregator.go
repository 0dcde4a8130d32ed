package candle

import (
	"fmt"
	"time"

	"github.com/amirphl/intraday-backtest/internal/tfutils"
)

// SessionAggregator folds an ordered stream of 1-minute candles for one
// instrument-day into non-overlapping higher-timeframe candles. Buckets are
// aligned to the session open, not to the wall clock, so a 09:15 session
// produces 10-minute buckets 09:15-09:24, 09:25-09:34 and so on.
//
// A derived candle is emitted the instant its last constituent minute is
// consumed, or when a later bucket's first minute arrives (the bucket can no
// longer grow). Until then the bucket is in progress and never exposed.
// Missing minutes contribute no data; they never abort aggregation.
type SessionAggregator struct {
	symbol      string
	timeframe   string
	dur         time.Duration
	sessionOpen time.Time

	cur        *Candle // in-progress bucket, nil when empty
	bucket     time.Time
	lastMinute time.Time
}

// NewSessionAggregator creates an aggregator for one instrument-day.
// sessionOpen is the first minute of the trading session.
func NewSessionAggregator(symbol, timeframe string, sessionOpen time.Time) (*SessionAggregator, error) {
	dur, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %s: %w", timeframe, err)
	}
	if dur <= time.Minute {
		return nil, fmt.Errorf("target timeframe %s must be larger than 1m", timeframe)
	}
	return &SessionAggregator{
		symbol:      symbol,
		timeframe:   timeframe,
		dur:         dur,
		sessionOpen: sessionOpen,
	}, nil
}

// bucketStart maps a minute timestamp to its session-aligned bucket start.
func (a *SessionAggregator) bucketStart(ts time.Time) time.Time {
	off := ts.Sub(a.sessionOpen)
	return a.sessionOpen.Add(off - off%a.dur)
}

// Add consumes the next 1-minute candle and returns any candles that became
// complete as a result. Timestamps must be strictly increasing.
func (a *SessionAggregator) Add(c Candle) ([]Candle, error) {
	if c.Timeframe != "1m" {
		return nil, fmt.Errorf("aggregator expects 1m candles, got %s", c.Timeframe)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candle: %w", err)
	}
	if c.Symbol != a.symbol {
		return nil, fmt.Errorf("candle symbol %s does not match aggregator symbol %s", c.Symbol, a.symbol)
	}
	if c.Timestamp.Before(a.sessionOpen) {
		return nil, fmt.Errorf("candle at %s precedes session open %s", c.Timestamp, a.sessionOpen)
	}
	if !a.lastMinute.IsZero() && !c.Timestamp.After(a.lastMinute) {
		return nil, fmt.Errorf("candle timestamps must be strictly increasing: got %s after %s", c.Timestamp, a.lastMinute)
	}
	a.lastMinute = c.Timestamp

	var completed []Candle

	bucket := a.bucketStart(c.Timestamp)
	if a.cur != nil && !bucket.Equal(a.bucket) {
		// A minute from a later bucket arrived; the in-progress candle
		// cannot grow anymore and is complete as-is.
		completed = append(completed, *a.cur)
		a.cur = nil
	}

	if a.cur == nil {
		a.bucket = bucket
		a.cur = &Candle{
			Timestamp: bucket,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Turnover:  c.Turnover,
			Symbol:    a.symbol,
			Timeframe: a.timeframe,
			Source:    "constructed",
		}
	} else {
		if c.High > a.cur.High {
			a.cur.High = c.High
		}
		if c.Low < a.cur.Low {
			a.cur.Low = c.Low
		}
		a.cur.Close = c.Close
		a.cur.Volume += c.Volume
		a.cur.Turnover += c.Turnover
	}

	// Last constituent minute of the bucket closes the candle immediately.
	if c.Timestamp.Equal(bucket.Add(a.dur - time.Minute)) {
		completed = append(completed, *a.cur)
		a.cur = nil
	}

	return completed, nil
}

// Flush returns the in-progress candle, if any, and resets the aggregator.
// Intended for end-of-stream draining only; a flushed candle was never marked
// complete and must not feed indicator state.
func (a *SessionAggregator) Flush() *Candle {
	if a.cur == nil {
		return nil
	}
	c := *a.cur
	a.cur = nil
	return &c
}
