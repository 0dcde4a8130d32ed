package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/strategy"
)

var base = time.Date(2024, 1, 2, 11, 45, 0, 0, time.UTC)

func bar(min int, o, h, l, c float64) candle.Candle {
	return candle.Candle{
		Timestamp: base.Add(time.Duration(min) * time.Minute),
		Open:      o, High: h, Low: l, Close: c,
		Volume:    100,
		Symbol:    "RELIANCE",
		Timeframe: "1m",
		Source:    "test",
	}
}

func newTestSim(t *testing.T) (*Simulator, *Ledger) {
	t.Helper()
	ledger, err := NewLedger(1_000_000, 0.5, 0.5)
	require.NoError(t, err)
	return NewSimulator("RELIANCE", DefaultParams(), ledger), ledger
}

func intent(dir strategy.Direction, trigger float64, earliestMin int) *strategy.Intent {
	return &strategy.Intent{
		Symbol:       "RELIANCE",
		Direction:    dir,
		Trigger:      trigger,
		SignalTime:   base.Add(-10 * time.Minute),
		CreatedAt:    base.Add(time.Duration(earliestMin-1) * time.Minute),
		EarliestFill: base.Add(time.Duration(earliestMin) * time.Minute),
	}
}

// openLong drives the simulator into an open long at exactly 100.
func openLong(t *testing.T, s *Simulator) {
	t.Helper()
	require.True(t, s.SubmitIntent(intent(strategy.Long, 100, 0)))
	rec, err := s.OnMinute(bar(0, 100, 100.5, 99.8, 100.2))
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Equal(t, StateOpen, s.State())
	require.Equal(t, 100.0, s.Position().EntryPrice)
}

func TestFillAtTrigger(t *testing.T) {
	s, ledger := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 0)))
	assert.Equal(t, StatePending, s.State())

	rec, err := s.OnMinute(bar(0, 103.8, 104.5, 103.5, 104.2))
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Equal(t, StateOpen, s.State())

	pos := s.Position()
	assert.Equal(t, 104.0, pos.EntryPrice, "touched trigger fills at the trigger")
	assert.InDelta(t, 1_000_000.0/104, pos.Quantity, 1e-9)
	assert.InDelta(t, 104*0.995, pos.StopLoss, 1e-9)
	assert.InDelta(t, 104*1.02, pos.TakeProfit, 1e-9)
	assert.Equal(t, ledger.Capital(), pos.CapitalAtEntry)
	assert.False(t, pos.TrailActive)
}

func TestGapFillAtOpen(t *testing.T) {
	s, _ := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 0)))

	// The market opened above the trigger; the jumped-over level is never
	// granted.
	rec, err := s.OnMinute(bar(0, 106, 107, 105.5, 106.2))
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Equal(t, StateOpen, s.State())
	assert.Equal(t, 106.0, s.Position().EntryPrice)
	assert.InDelta(t, 1_000_000.0/106, s.Position().Quantity, 1e-9)
}

func TestShortFills(t *testing.T) {
	t.Run("fill at trigger", func(t *testing.T) {
		s, _ := newTestSim(t)
		require.True(t, s.SubmitIntent(intent(strategy.Short, 95, 0)))
		_, err := s.OnMinute(bar(0, 95.2, 95.3, 94.8, 95))
		require.NoError(t, err)
		require.Equal(t, StateOpen, s.State())
		assert.Equal(t, 95.0, s.Position().EntryPrice)
	})

	t.Run("gap below fills at open", func(t *testing.T) {
		s, _ := newTestSim(t)
		require.True(t, s.SubmitIntent(intent(strategy.Short, 95, 0)))
		_, err := s.OnMinute(bar(0, 94, 94.2, 93.5, 93.8))
		require.NoError(t, err)
		require.Equal(t, StateOpen, s.State())
		assert.Equal(t, 94.0, s.Position().EntryPrice)
	})

	t.Run("no touch stays pending", func(t *testing.T) {
		s, _ := newTestSim(t)
		require.True(t, s.SubmitIntent(intent(strategy.Short, 95, 0)))
		_, err := s.OnMinute(bar(0, 96, 96.5, 95.5, 96))
		require.NoError(t, err)
		assert.Equal(t, StatePending, s.State())
	})
}

func TestEarliestFillRespected(t *testing.T) {
	s, _ := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 1)))

	// The trigger trades in the signal candle's own completing minute, one
	// minute before fills are allowed.
	rec, err := s.OnMinute(bar(0, 103.9, 104.8, 103.5, 104.5))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, StatePending, s.State())

	_, err = s.OnMinute(bar(1, 104.1, 104.6, 103.8, 104.3))
	require.NoError(t, err)
	require.Equal(t, StateOpen, s.State())
	assert.Equal(t, 104.1, s.Position().EntryPrice, "gapped past the trigger by the next open")
}

func TestSubmitIntentStateGating(t *testing.T) {
	s, _ := newTestSim(t)
	assert.False(t, s.SubmitIntent(nil))

	require.True(t, s.SubmitIntent(intent(strategy.Long, 100, 0)))
	assert.False(t, s.SubmitIntent(intent(strategy.Long, 101, 0)), "one pending intent at a time")

	_, err := s.OnMinute(bar(0, 100, 100.5, 99.8, 100.2))
	require.NoError(t, err)
	require.Equal(t, StateOpen, s.State())
	assert.False(t, s.SubmitIntent(intent(strategy.Short, 99, 1)), "no intents while a position is open")
}

func TestExpirePending(t *testing.T) {
	s, _ := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 0)))

	_, err := s.OnMinute(bar(0, 102, 103, 101.5, 102.5))
	require.NoError(t, err)
	assert.Equal(t, StatePending, s.State())

	s.ExpirePending()
	assert.Equal(t, StateIdle, s.State())
}

func TestNoExitOnEntryBar(t *testing.T) {
	s, _ := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 0)))

	// The filling bar collapses well below the would-be stop; the position
	// still survives until the next bar.
	rec, err := s.OnMinute(bar(0, 106, 107, 90, 91))
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Equal(t, StateOpen, s.State())

	rec, err = s.OnMinute(bar(1, 91, 92, 90.5, 91))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitStopLoss, rec.ExitType)
}

func TestTargetExit(t *testing.T) {
	s, ledger := newTestSim(t)
	openLong(t, s)

	rec, err := s.OnMinute(bar(1, 101.9, 102.1, 101.5, 102))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitTarget, rec.ExitType)
	assert.Equal(t, 102.0, rec.ExitPrice)
	assert.InDelta(t, 20_000.0, rec.PnL, 1e-6)
	assert.InDelta(t, 0.02, rec.Return, 1e-9)
	assert.Equal(t, StateIdle, s.State())
	assert.InDelta(t, 1_020_000.0, ledger.Capital(), 1e-6)
}

func TestStopLossExit(t *testing.T) {
	s, ledger := newTestSim(t)
	openLong(t, s)

	rec, err := s.OnMinute(bar(1, 99.9, 100.2, 99.4, 99.5))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExitStopLoss, rec.ExitType)
	assert.Equal(t, 99.5, rec.ExitPrice)
	assert.InDelta(t, -5_000.0, rec.PnL, 1e-6)
	assert.InDelta(t, 995_000.0, ledger.Capital(), 1e-6)
}

func TestTrailingStopLifecycle(t *testing.T) {
	s, _ := newTestSim(t)
	openLong(t, s)

	// Best price reaches +1%: trailing activates 0.75% behind it.
	rec, err := s.OnMinute(bar(1, 100.6, 101, 100.5, 100.9))
	require.NoError(t, err)
	require.Nil(t, rec)
	pos := s.Position()
	require.True(t, pos.TrailActive)
	assert.InDelta(t, 101*0.9925, pos.TrailStop, 1e-9)

	// A quieter bar with a lower high must not loosen the stop.
	rec, err = s.OnMinute(bar(2, 100.8, 100.9, 100.6, 100.7))
	require.NoError(t, err)
	require.Nil(t, rec)
	assert.InDelta(t, 101*0.9925, s.Position().TrailStop, 1e-9)

	// A new best ratchets it up.
	rec, err = s.OnMinute(bar(3, 100.9, 101.5, 100.8, 101.2))
	require.NoError(t, err)
	require.Nil(t, rec)
	assert.InDelta(t, 101.5*0.9925, s.Position().TrailStop, 1e-9)

	// Price falls back through the trailed stop.
	rec, err = s.OnMinute(bar(4, 100.9, 101, 100.5, 100.6))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitTrailingSL, rec.ExitType)
	assert.InDelta(t, 101.5*0.9925, rec.ExitPrice, 1e-9)
}

func TestBothLevelsTouchedAdverseNearerOpen(t *testing.T) {
	s, _ := newTestSim(t)
	openLong(t, s)

	// The bar spans both the target and the trailed stop. Its open sits
	// nearer the stop, so the stop is deemed touched first.
	rec, err := s.OnMinute(bar(1, 99.6, 102.2, 99.4, 100))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitTrailingSL, rec.ExitType)
	assert.InDelta(t, 102.2*0.9925, rec.ExitPrice, 1e-9)
}

func TestBothLevelsTouchedTargetNearerOpen(t *testing.T) {
	s, _ := newTestSim(t)
	openLong(t, s)

	rec, err := s.OnMinute(bar(1, 101.95, 102.3, 99, 101))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitTarget, rec.ExitType)
	assert.Equal(t, 102.0, rec.ExitPrice)
}

func TestShortPositionLifecycle(t *testing.T) {
	s, ledger := newTestSim(t)
	require.True(t, s.SubmitIntent(intent(strategy.Short, 95, 0)))
	_, err := s.OnMinute(bar(0, 95.2, 95.3, 94.8, 95))
	require.NoError(t, err)
	require.Equal(t, StateOpen, s.State())

	pos := s.Position()
	assert.InDelta(t, 95*1.005, pos.StopLoss, 1e-9)
	assert.InDelta(t, 95*0.98, pos.TakeProfit, 1e-9)

	// Favorable drift activates the short-side trail above the best low.
	rec, err := s.OnMinute(bar(1, 94.9, 95, 94.4, 94.5))
	require.NoError(t, err)
	require.Nil(t, rec)
	require.True(t, pos.TrailActive)
	assert.InDelta(t, 94.4*1.0075, pos.TrailStop, 1e-9)

	// Gap down through the target while the trail ratchets lower.
	rec, err = s.OnMinute(bar(2, 93.2, 93.4, 93.0, 93.1))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ExitTarget, rec.ExitType)
	assert.InDelta(t, 95*0.98, rec.ExitPrice, 1e-9)
	assert.InDelta(t, (95-95*0.98)*(1_000_000.0/95), rec.PnL, 1e-6)
	assert.InDelta(t, 1_000_000+rec.PnL, ledger.Capital(), 1e-6)
}

func TestSquareOff(t *testing.T) {
	t.Run("open position closes at last price", func(t *testing.T) {
		s, ledger := newTestSim(t)
		openLong(t, s)

		_, err := s.OnMinute(bar(1, 100.1, 100.3, 100.0, 100.2))
		require.NoError(t, err)

		rec := s.SquareOff(base.Add(time.Minute), 100.3)
		require.NotNil(t, rec)
		assert.Equal(t, ExitEOD, rec.ExitType)
		assert.Equal(t, 100.3, rec.ExitPrice)
		assert.InDelta(t, 3_000.0, rec.PnL, 1e-6)
		assert.Equal(t, StateIdle, s.State())
		assert.InDelta(t, 1_003_000.0, ledger.Capital(), 1e-6)
	})

	t.Run("pending intent is discarded", func(t *testing.T) {
		s, _ := newTestSim(t)
		require.True(t, s.SubmitIntent(intent(strategy.Long, 104, 0)))

		rec := s.SquareOff(base, 100)
		assert.Nil(t, rec)
		assert.Equal(t, StateIdle, s.State())
	})

	t.Run("idle is a no-op", func(t *testing.T) {
		s, _ := newTestSim(t)
		assert.Nil(t, s.SquareOff(base, 100))
	})
}

func TestCapitalExhaustionIsFatal(t *testing.T) {
	ledger, err := NewLedger(1000, 0.5, 0.5)
	require.NoError(t, err)
	ledger.Realize(-1000)

	s := NewSimulator("RELIANCE", DefaultParams(), ledger)
	require.True(t, s.SubmitIntent(intent(strategy.Long, 100, 0)))

	_, err = s.OnMinute(bar(0, 100, 100.5, 99.8, 100.2))
	assert.ErrorIs(t, err, ErrCapitalExhausted)
}

func TestSequentialTradesCompoundExactly(t *testing.T) {
	s, ledger := newTestSim(t)

	// Trade 1: long stopped out.
	openLong(t, s)
	rec1, err := s.OnMinute(bar(1, 99.9, 100.2, 99.4, 99.5))
	require.NoError(t, err)
	require.NotNil(t, rec1)

	// Trade 2: long hits the target, sized off the reduced capital.
	require.True(t, s.SubmitIntent(intent(strategy.Long, 100, 2)))
	_, err = s.OnMinute(bar(2, 100, 100.5, 99.8, 100.2))
	require.NoError(t, err)
	require.Equal(t, StateOpen, s.State())
	assert.InDelta(t, ledger.Capital()/100, s.Position().Quantity, 1e-6)

	rec2, err := s.OnMinute(bar(3, 101.9, 102.1, 101.5, 102))
	require.NoError(t, err)
	require.NotNil(t, rec2)

	assert.InDelta(t, 1_000_000+rec1.PnL+rec2.PnL, ledger.Capital(), 1e-6,
		"capital is exactly initial plus the sum of realized PnL")
}
