package bbi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/romio"
)

func TestZoomRecordRoundTrip(t *testing.T) {
	recs := []ZoomRecord{
		{ChromIx: 0, Start: 0, End: 100, Summary: BigSummary{Count: 100, MinValue: 1, MaxValue: 9, Sum: 500, SumSquares: 4500}},
		{ChromIx: 0, Start: 100, End: 200, Summary: BigSummary{Count: 100, MinValue: -2, MaxValue: 2, Sum: 0, SumSquares: 200}},
		{ChromIx: 1, Start: 0, End: 50, Summary: BigSummary{Count: 50, MinValue: 0, MaxValue: 0, Sum: 0, SumSquares: 0}},
	}

	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	for _, rec := range recs {
		require.NoError(t, EncodeZoomRecord(w, rec))
	}

	r := romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
	got, err := DecodeZoomBlock(r)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i, rec := range recs {
		assert.Equal(t, rec.ChromIx, got[i].ChromIx)
		assert.Equal(t, rec.Start, got[i].Start)
		assert.Equal(t, rec.End, got[i].End)
		assert.Equal(t, rec.Summary.Count, got[i].Summary.Count)
		assert.InDelta(t, rec.Summary.MinValue, got[i].Summary.MinValue, 1e-4)
		assert.InDelta(t, rec.Summary.MaxValue, got[i].Summary.MaxValue, 1e-4)
		assert.InDelta(t, rec.Summary.Sum, got[i].Summary.Sum, 1e-4)
		assert.InDelta(t, rec.Summary.SumSquares, got[i].Summary.SumSquares, 1e-4)
	}
}

func TestDecodeZoomBlockEmpty(t *testing.T) {
	r := romio.NewBytesBuffer(nil, binary.LittleEndian)
	got, err := DecodeZoomBlock(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}
