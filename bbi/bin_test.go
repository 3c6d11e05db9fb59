package bbi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinBoundsSplitsEvenly(t *testing.T) {
	bounds := BinBounds(0, 100, 10)
	require.Len(t, bounds, 11)
	assert.Equal(t, int32(0), bounds[0])
	assert.Equal(t, int32(100), bounds[10])
	for i := 0; i < 10; i++ {
		assert.Equal(t, int32(10), bounds[i+1]-bounds[i])
	}
}

func TestBinBoundsHandlesUnevenSpan(t *testing.T) {
	bounds := BinBounds(0, 10, 3)
	require.Len(t, bounds, 4)
	assert.Equal(t, int32(0), bounds[0])
	assert.Equal(t, int32(10), bounds[3])
	// monotonic, covering the whole span exactly once.
	for i := 1; i < len(bounds); i++ {
		assert.GreaterOrEqual(t, bounds[i], bounds[i-1])
	}
}

func TestBinIndexFindsContainingBin(t *testing.T) {
	bounds := BinBounds(0, 100, 10)
	assert.Equal(t, 0, BinIndex(bounds, 0))
	assert.Equal(t, 0, BinIndex(bounds, 5))
	assert.Equal(t, 1, BinIndex(bounds, 10))
	assert.Equal(t, 9, BinIndex(bounds, 99))
}

func TestBinIndexClampsOutOfRange(t *testing.T) {
	bounds := BinBounds(0, 100, 10)
	assert.Equal(t, 0, BinIndex(bounds, -5))
	assert.Equal(t, 9, BinIndex(bounds, 1000))
}
