package bigwig

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

func encodeSection(t *testing.T, s *Section) []byte {
	t.Helper()
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, EncodeSection(w, s))
	return buf.Bytes()
}

func TestFixedStepSectionRoundTrip(t *testing.T) {
	s := &Section{
		ChromIx: 0, Start: 100, End: 150, Step: 10, Span: 5, Type: FixedStep,
		Records: []Record{
			{Start: 100, End: 105, Value: 1},
			{Start: 110, End: 115, Value: 2},
			{Start: 120, End: 125, Value: 3},
			{Start: 130, End: 135, Value: 4},
			{Start: 140, End: 145, Value: 5},
		},
	}
	raw := encodeSection(t, s)
	got, err := DecodeSection(romio.NewBytesBuffer(raw, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, s.Records, got.Records)
	assert.Equal(t, FixedStep, got.Type)
}

func TestVariableStepSectionRoundTrip(t *testing.T) {
	s := &Section{
		ChromIx: 1, Start: 0, End: 0, Span: 20, Type: VariableStep,
		Records: []Record{
			{Start: 10, End: 30, Value: -1.5},
			{Start: 80, End: 100, Value: 2.5},
		},
	}
	raw := encodeSection(t, s)
	got, err := DecodeSection(romio.NewBytesBuffer(raw, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, s.Records, got.Records)
}

func TestBedGraphSectionRoundTrip(t *testing.T) {
	s := &Section{
		ChromIx: 2, Type: BedGraph,
		Records: []Record{
			{Start: 0, End: 10, Value: 1},
			{Start: 50, End: 75, Value: 2},
		},
	}
	raw := encodeSection(t, s)
	got, err := DecodeSection(romio.NewBytesBuffer(raw, binary.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, s.Records, got.Records)
}

// TestQuerySectionOverlapVsContainment exercises the two concrete
// scenarios from spec.md §8: a fixedStep section with step=10, span=5
// queried against [105,125) under both overlap and containment semantics.
func TestQuerySectionOverlapVsContainment(t *testing.T) {
	s := &Section{
		ChromIx: 0, Start: 100, End: 140, Step: 10, Span: 5, Type: FixedStep,
		Records: []Record{
			{Start: 100, End: 105, Value: 1},
			{Start: 110, End: 115, Value: 2},
			{Start: 120, End: 125, Value: 3},
			{Start: 130, End: 135, Value: 4},
		},
	}
	raw := encodeSection(t, s)
	query := bbi.Interval{ChromIx: 0, Start: 105, End: 125}

	overlapGot, err := QuerySection(romio.NewBytesBuffer(raw, binary.LittleEndian), query, true)
	require.NoError(t, err)
	require.NotNil(t, overlapGot)
	var overlapStarts []int32
	for _, r := range overlapGot.Records {
		overlapStarts = append(overlapStarts, r.Start)
	}
	assert.Equal(t, []int32{100, 110, 120}, overlapStarts)

	containGot, err := QuerySection(romio.NewBytesBuffer(raw, binary.LittleEndian), query, false)
	require.NoError(t, err)
	require.NotNil(t, containGot)
	var containStarts []int32
	for _, r := range containGot.Records {
		containStarts = append(containStarts, r.Start)
	}
	assert.Equal(t, []int32{110}, containStarts)
}

func TestQuerySectionChromosomeMismatchReturnsNil(t *testing.T) {
	s := &Section{ChromIx: 5, Type: BedGraph, Records: []Record{{Start: 0, End: 10, Value: 1}}}
	raw := encodeSection(t, s)
	got, err := QuerySection(romio.NewBytesBuffer(raw, binary.LittleEndian), bbi.Interval{ChromIx: 0, Start: 0, End: 10}, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuerySectionNoMatchReturnsNil(t *testing.T) {
	s := &Section{ChromIx: 0, Type: BedGraph, Records: []Record{{Start: 0, End: 10, Value: 1}}}
	raw := encodeSection(t, s)
	got, err := QuerySection(romio.NewBytesBuffer(raw, binary.LittleEndian), bbi.Interval{ChromIx: 0, Start: 1000, End: 2000}, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}
