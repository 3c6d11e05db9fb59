package bbi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/romio"
)

func writeHeader(t *testing.T, order binary.ByteOrder, magic uint32, version uint16, levels []ZoomLevel) []byte {
	t.Helper()
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, order)
	require.NoError(t, w.PutUnsignedInt(magic))
	require.NoError(t, w.PutUnsignedShort(version))
	require.NoError(t, w.PutUnsignedShort(uint16(len(levels))))
	require.NoError(t, w.PutUnsignedLong(1000))  // chromTreeOffset
	require.NoError(t, w.PutUnsignedLong(2000))  // unzoomedDataOffset
	require.NoError(t, w.PutUnsignedLong(3000))  // unzoomedIndexOffset
	require.NoError(t, w.PutUnsignedShort(0))    // fieldCount
	require.NoError(t, w.PutUnsignedShort(0))    // definedFieldCount
	require.NoError(t, w.PutUnsignedLong(0))     // autoSqlOffset
	require.NoError(t, w.PutUnsignedLong(4000))  // totalSummaryOffset
	require.NoError(t, w.PutUnsignedInt(32768))  // uncompressBufSize
	require.NoError(t, w.PutUnsignedLong(0))     // extensionOffset
	for _, lvl := range levels {
		require.NoError(t, w.PutUnsignedInt(lvl.Reduction))
		require.NoError(t, w.PutUnsignedInt(0)) // reserved
		require.NoError(t, w.PutUnsignedLong(lvl.DataOffset))
		require.NoError(t, w.PutUnsignedLong(lvl.IndexOffset))
	}
	return buf.Bytes()
}

func TestOpenHeaderDetectsByteOrder(t *testing.T) {
	levels := []ZoomLevel{{Reduction: 10, DataOffset: 5000, IndexOffset: 6000}}
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		raw := writeHeader(t, order, BigWigMagic, 4, levels)
		r := romio.NewBytesBuffer(raw, binary.BigEndian) // detectOrder must override this
		h, err := OpenHeader(r, BigWigMagic)
		require.NoError(t, err)
		assert.Equal(t, BigWigMagic, h.Magic)
		assert.EqualValues(t, 4, h.Version)
		require.Len(t, h.ZoomLevels, 1)
		assert.Equal(t, levels[0], h.ZoomLevels[0])
		assert.EqualValues(t, 1000, h.ChromTreeOffset)
		assert.EqualValues(t, 4000, h.TotalSummaryOffset)
	}
}

func TestOpenHeaderRejectsBadMagic(t *testing.T) {
	raw := writeHeader(t, binary.LittleEndian, BigWigMagic, 4, nil)
	r := romio.NewBytesBuffer(raw, binary.LittleEndian)
	_, err := OpenHeader(r, BigBedMagic)
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindBadSignature, berr.Kind)
}

func TestOpenHeaderRejectsUnsupportedVersion(t *testing.T) {
	raw := writeHeader(t, binary.LittleEndian, BigWigMagic, 9, nil)
	r := romio.NewBytesBuffer(raw, binary.LittleEndian)
	_, err := OpenHeader(r, BigWigMagic)
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindUnsupportedVersion, berr.Kind)
}

func TestPickZoomReturnsLargestQualifyingReduction(t *testing.T) {
	h := &Header{ZoomLevels: []ZoomLevel{
		{Reduction: 10}, {Reduction: 100}, {Reduction: 1000},
	}}
	lvl, ok := h.PickZoom(500)
	require.True(t, ok)
	assert.EqualValues(t, 100, lvl.Reduction)

	_, ok = h.PickZoom(5)
	assert.False(t, ok)
}

func TestTotalSummaryRoundTrip(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutByte(0)) // pad so offset 0 stays the reader's "absent" sentinel
	want := BigSummary{Count: 42, MinValue: -3.5, MaxValue: 7.25, Sum: 100.5, SumSquares: 900.25}
	require.NoError(t, WriteTotalSummary(w, want))

	r := romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
	h := &Header{TotalSummaryOffset: 1}
	got, err := h.ReadTotalSummary(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadTotalSummaryAbsentReturnsEmpty(t *testing.T) {
	h := &Header{TotalSummaryOffset: 0}
	got, err := h.ReadTotalSummary(nil)
	require.NoError(t, err)
	assert.Equal(t, EmptySummary(), got)
}
