package indicator

// WilderRSI maintains a Relative Strength Index with Wilder's exponential
// smoothing (alpha = 1/period), which is deliberately distinct from a simple
// moving average of gains and losses. Each bar-over-bar change updates the
// running average gain and average loss as
//
//	avg = avg_prev*(period-1)/period + current/period
//
// The index is undefined until `period` changes (period+1 closes) have been
// observed; callers must check Value's second return before gating on it.
type WilderRSI struct {
	period   int
	avgGain  float64
	avgLoss  float64
	prev     float64
	hasPrev  bool
	nChanges int
}

func NewWilderRSI(period int) *WilderRSI {
	return &WilderRSI{period: period}
}

func (r *WilderRSI) Period() int { return r.period }

// Update folds the next close into the running averages.
func (r *WilderRSI) Update(close float64) {
	if !r.hasPrev {
		r.prev = close
		r.hasPrev = true
		return
	}

	change := close - r.prev
	r.prev = close

	var gain, loss float64
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(r.period)
	r.avgGain = r.avgGain*(n-1)/n + gain/n
	r.avgLoss = r.avgLoss*(n-1)/n + loss/n
	r.nChanges++
}

// Value returns the current RSI in [0,100] and whether it is defined yet.
// A zero average loss yields 100 by convention.
func (r *WilderRSI) Value() (float64, bool) {
	if r.nChanges < r.period {
		return 0, false
	}
	if r.avgLoss == 0 {
		return 100, true
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs), true
}
