package bbi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptySummaryIsPlusIdentity(t *testing.T) {
	s := BigSummary{Count: 3, MinValue: 1, MaxValue: 5, Sum: 9, SumSquares: 27}
	assert.Equal(t, s, EmptySummary().Plus(s))
	assert.Equal(t, s, s.Plus(EmptySummary()))
}

func TestBigSummaryAddValueAccumulates(t *testing.T) {
	s := EmptySummary()
	s = s.AddValue(2, 3.0)  // two bases at value 3
	s = s.AddValue(1, -1.0) // one base at value -1

	assert.EqualValues(t, 3, s.Count)
	assert.Equal(t, -1.0, s.MinValue)
	assert.Equal(t, 3.0, s.MaxValue)
	assert.Equal(t, 5.0, s.Sum)          // 2*3 + 1*-1
	assert.Equal(t, 19.0, s.SumSquares)  // 2*9 + 1*1
	assert.InDelta(t, 5.0/3.0, s.Mean(), 1e-9)
}

func TestBigSummaryPlusIsCommutativeAndAssociative(t *testing.T) {
	a := EmptySummary().AddValue(1, 2)
	b := EmptySummary().AddValue(3, -4)
	c := EmptySummary().AddValue(2, 10)

	assert.Equal(t, a.Plus(b), b.Plus(a))
	assert.Equal(t, a.Plus(b).Plus(c), a.Plus(b.Plus(c)))
}

func TestMeanOfEmptySummaryIsZero(t *testing.T) {
	assert.Equal(t, 0.0, EmptySummary().Mean())
}

func TestEmptySummaryBounds(t *testing.T) {
	s := EmptySummary()
	assert.True(t, math.IsInf(s.MinValue, 1))
	assert.True(t, math.IsInf(s.MaxValue, -1))
}
