package bigbed

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

func encodeRecords(t *testing.T, recs []Record) []byte {
	t.Helper()
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	for _, rec := range recs {
		require.NoError(t, EncodeRecord(w, rec))
	}
	return buf.Bytes()
}

func TestDecodeBlockRoundTrip(t *testing.T) {
	recs := []Record{
		{ChromIx: 0, Start: 0, End: 100, Rest: "feature1\t500\t+"},
		{ChromIx: 0, Start: 200, End: 300, Rest: "feature2\t100\t-"},
	}
	raw := encodeRecords(t, recs)
	got, err := DecodeBlock(romio.NewBytesBuffer(raw, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestQueryBlockOverlapVsContainment(t *testing.T) {
	recs := []Record{
		{ChromIx: 0, Start: 100, End: 105, Rest: "a"},
		{ChromIx: 0, Start: 110, End: 115, Rest: "b"},
		{ChromIx: 0, Start: 120, End: 125, Rest: "c"},
		{ChromIx: 0, Start: 130, End: 135, Rest: "d"},
	}
	raw := encodeRecords(t, recs)
	query := bbi.Interval{ChromIx: 0, Start: 105, End: 125}

	overlapGot, err := QueryBlock(romio.NewBytesBuffer(raw, binary.LittleEndian), query, true)
	require.NoError(t, err)
	var overlapRests []string
	for _, r := range overlapGot {
		overlapRests = append(overlapRests, r.Rest)
	}
	assert.Equal(t, []string{"a", "b", "c"}, overlapRests)

	containGot, err := QueryBlock(romio.NewBytesBuffer(raw, binary.LittleEndian), query, false)
	require.NoError(t, err)
	var containRests []string
	for _, r := range containGot {
		containRests = append(containRests, r.Rest)
	}
	assert.Equal(t, []string{"b"}, containRests)
}

func TestQueryBlockSkipsOtherChromosomes(t *testing.T) {
	recs := []Record{
		{ChromIx: 0, Start: 0, End: 10, Rest: "a"},
		{ChromIx: 1, Start: 0, End: 10, Rest: "b"},
	}
	raw := encodeRecords(t, recs)
	got, err := QueryBlock(romio.NewBytesBuffer(raw, binary.LittleEndian), bbi.Interval{ChromIx: 1, Start: 0, End: 10}, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Rest)
}
