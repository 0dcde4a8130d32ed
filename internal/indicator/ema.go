// Package indicator
package indicator

// EMA maintains an exponential moving average updated one close at a time.
// The smoothing factor is k = 2/(period+1) and the average is seeded by the
// first observed close, with no warm-up averaging window. A value at update n
// reflects only the closes passed in through update n.
type EMA struct {
	period int
	k      float64
	value  float64
	seeded bool
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		k:      2.0 / float64(period+1),
	}
}

func (e *EMA) Period() int { return e.period }

// Update folds the next close into the average and returns the new value.
func (e *EMA) Update(close float64) float64 {
	if !e.seeded {
		e.value = close
		e.seeded = true
		return e.value
	}
	e.value = close*e.k + e.value*(1-e.k)
	return e.value
}

// Value returns the current average and whether any close has been observed.
func (e *EMA) Value() (float64, bool) {
	return e.value, e.seeded
}
