package tdf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/romio"
)

func TestDecodeFixedStepTile(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutCString("fixedStep"))
	require.NoError(t, w.PutInt(1000)) // start
	require.NoError(t, w.PutFloat(10)) // span
	require.NoError(t, w.PutInt(1))    // nTracks
	require.NoError(t, w.PutInt(3))    // nBins
	for _, v := range []float32{1, 2, 3} {
		require.NoError(t, w.PutFloat(v))
	}

	tile, err := decodeTile(romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, FixedStep, tile.Type)
	assert.Equal(t, []int32{1000, 1010, 1020}, tile.Starts)
	assert.Equal(t, []int32{1010, 1020, 1030}, tile.Ends)
	require.Len(t, tile.Tracks, 1)
	assert.Equal(t, []float32{1, 2, 3}, tile.Tracks[0])
	assert.Equal(t, int32(1000), tile.Start())
	assert.Equal(t, int32(1030), tile.End())
	assert.Equal(t, 3, tile.NumBins())
}

func TestDecodeVariableStepTile(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutCString("variableStep"))
	require.NoError(t, w.PutInt(0))   // discarded start
	require.NoError(t, w.PutFloat(5)) // span
	require.NoError(t, w.PutInt(2))   // nTracks
	require.NoError(t, w.PutInt(2))   // nBins
	for _, pos := range []int32{100, 500} {
		require.NoError(t, w.PutInt(pos))
	}
	for _, track := range [][]float32{{1, 2}, {3, 4}} {
		for _, v := range track {
			require.NoError(t, w.PutFloat(v))
		}
	}

	tile, err := decodeTile(romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, VariableStep, tile.Type)
	assert.Equal(t, []int32{100, 500}, tile.Starts)
	assert.Equal(t, []int32{105, 505}, tile.Ends)
	require.Len(t, tile.Tracks, 2)
	assert.Equal(t, []float32{1, 2}, tile.Tracks[0])
	assert.Equal(t, []float32{3, 4}, tile.Tracks[1])
}

func TestDecodeBedTile(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutCString("bed"))
	require.NoError(t, w.PutInt(2)) // nBins
	for _, v := range []int32{0, 50} {
		require.NoError(t, w.PutInt(v))
	}
	for _, v := range []int32{25, 100} {
		require.NoError(t, w.PutInt(v))
	}
	require.NoError(t, w.PutInt(1)) // nTracks
	for _, v := range []float32{1.5, 2.5} {
		require.NoError(t, w.PutFloat(v))
	}

	tile, err := decodeTile(romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, Bed, tile.Type)
	assert.Equal(t, []int32{0, 50}, tile.Starts)
	assert.Equal(t, []int32{25, 100}, tile.Ends)
	assert.Equal(t, []float32{1.5, 2.5}, tile.Tracks[0])
}

// TestDecodeBedWithNameTileDropsNames confirms bedWithName tiles decode
// exactly like plain bed tiles, with the trailing name array consumed and
// discarded rather than surfaced on Tile.
func TestDecodeBedWithNameTileDropsNames(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutCString("bedWithName"))
	require.NoError(t, w.PutInt(1)) // nBins
	require.NoError(t, w.PutInt(0))
	require.NoError(t, w.PutInt(10))
	require.NoError(t, w.PutInt(1)) // nTracks
	require.NoError(t, w.PutFloat(9))
	require.NoError(t, w.PutCString("featureName"))

	tile, err := decodeTile(romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, Bed, tile.Type)
	assert.Equal(t, []int32{0}, tile.Starts)
	assert.Equal(t, []int32{10}, tile.Ends)
	assert.Equal(t, []float32{9}, tile.Tracks[0])
}

func TestDecodeTileUnknownTypeErrors(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutCString("unknownType"))
	_, err := decodeTile(romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian))
	require.Error(t, err)
}
