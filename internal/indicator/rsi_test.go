package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRSIUndefinedDuringWarmup(t *testing.T) {
	r := NewWilderRSI(14)

	// 14 closes produce only 13 changes.
	for i := 0; i < 14; i++ {
		r.Update(100 + float64(i))
		_, ok := r.Value()
		assert.False(t, ok, "undefined after %d closes", i+1)
	}

	r.Update(114)
	_, ok := r.Value()
	assert.True(t, ok, "defined once period changes have been observed")
}

func TestRSIMonotoneSeries(t *testing.T) {
	rising := NewWilderRSI(14)
	for i := 0; i < 20; i++ {
		rising.Update(100 + float64(i))
	}
	v, ok := rising.Value()
	assert.True(t, ok)
	assert.Equal(t, 100.0, v, "no losses pins the index at 100")

	falling := NewWilderRSI(14)
	for i := 0; i < 20; i++ {
		falling.Update(100 - float64(i))
	}
	v, ok = falling.Value()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v, "no gains pins the index at 0")
}

func TestRSIWilderSmoothing(t *testing.T) {
	// period 2, closes 100, 101, 100:
	//   change +1: avgGain = 0.5,  avgLoss = 0
	//   change -1: avgGain = 0.25, avgLoss = 0.5
	// RS = 0.5, RSI = 100 - 100/1.5
	r := NewWilderRSI(2)
	r.Update(100)
	r.Update(101)
	r.Update(100)

	v, ok := r.Value()
	assert.True(t, ok)
	assert.InDelta(t, 100.0-100.0/1.5, v, 1e-9)
}

func TestRSIFlatSeriesConvention(t *testing.T) {
	r := NewWilderRSI(14)
	for i := 0; i < 20; i++ {
		r.Update(100)
	}
	v, ok := r.Value()
	assert.True(t, ok)
	assert.Equal(t, 100.0, v, "zero average loss yields 100")
}
