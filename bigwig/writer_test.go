package bigwig

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/romio"
)

func sampleInputs() ([]Input, []ChromSize) {
	chromSizes := []ChromSize{{Name: "chr1", Length: 1000}, {Name: "chr2", Length: 500}}
	inputs := []Input{
		{Chrom: "chr1", Section: &Section{
			Start: 0, End: 300, Step: 0, Span: 100, Type: BedGraph,
			Records: []Record{
				{Start: 0, End: 100, Value: 1},
				{Start: 100, End: 200, Value: 2},
				{Start: 200, End: 300, Value: 3},
			},
		}},
		{Chrom: "chr2", Section: &Section{
			Start: 0, End: 40, Step: 10, Span: 10, Type: FixedStep,
			Records: []Record{
				{Start: 0, End: 10, Value: 5},
				{Start: 10, End: 20, Value: 6},
				{Start: 20, End: 30, Value: 7},
				{Start: 30, End: 40, Value: 8},
			},
		}},
	}
	return inputs, chromSizes
}

func TestWriteThenOpenRoundTrip(t *testing.T) {
	for _, compression := range []romio.Compression{romio.CompressionNone, romio.CompressionDeflate, romio.CompressionSnappy} {
		inputs, chromSizes := sampleInputs()
		path := filepath.Join(t.TempDir(), "test.bw")
		ctx := context.Background()
		opts := WriteOpts{Compression: compression, Order: binary.LittleEndian}
		require.NoError(t, Write(ctx, inputs, chromSizes, path, opts))

		r, err := Open(ctx, path, ReaderOpts{})
		require.NoError(t, err)
		defer r.Close() // nolint: errcheck

		chroms := r.Chromosomes()
		assert.Len(t, chroms, 2)

		it, err := r.Query("chr1", 0, 300, true)
		require.NoError(t, err)
		var got []Record
		for it.Scan() {
			got = append(got, it.Section().Records...)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, inputs[0].Section.Records, got)

		total, err := r.TotalSummary()
		require.NoError(t, err)
		assert.EqualValues(t, 300+40, total.Count)
	}
}

// TestWriteThenOpenRoundTripQueriesNonFirstNode forces blockSize down to 1
// so both the chrom B+ tree and the unzoomed R+ tree split into multiple
// on-disk nodes, then queries chr2, whose block is not the first node
// written after either tree's header.
func TestWriteThenOpenRoundTripQueriesNonFirstNode(t *testing.T) {
	inputs, chromSizes := sampleInputs()
	path := filepath.Join(t.TempDir(), "multinode.bw")
	ctx := context.Background()
	opts := WriteOpts{Order: binary.LittleEndian, BlockSize: 1}
	require.NoError(t, Write(ctx, inputs, chromSizes, path, opts))

	r, err := Open(ctx, path, ReaderOpts{})
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	it, err := r.Query("chr2", 0, 40, true)
	require.NoError(t, err)
	var got []Record
	for it.Scan() {
		got = append(got, it.Section().Records...)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, inputs[1].Section.Records, got)
}

func TestWriteRejectsUnsortedInput(t *testing.T) {
	chromSizes := []ChromSize{{Name: "chr1", Length: 1000}}
	inputs := []Input{
		{Chrom: "chr1", Section: &Section{Start: 100, End: 200, Type: BedGraph, Records: []Record{{Start: 100, End: 200, Value: 1}}}},
		{Chrom: "chr1", Section: &Section{Start: 0, End: 50, Type: BedGraph, Records: []Record{{Start: 0, End: 50, Value: 1}}}},
	}
	path := filepath.Join(t.TempDir(), "bad.bw")
	err := Write(context.Background(), inputs, chromSizes, path, WriteOpts{})
	require.Error(t, err)
}

func TestWriteRejectsUnknownChromosome(t *testing.T) {
	chromSizes := []ChromSize{{Name: "chr1", Length: 1000}}
	inputs := []Input{
		{Chrom: "chrX", Section: &Section{Start: 0, End: 10, Type: BedGraph, Records: []Record{{Start: 0, End: 10, Value: 1}}}},
	}
	path := filepath.Join(t.TempDir(), "unknown.bw")
	err := Write(context.Background(), inputs, chromSizes, path, WriteOpts{})
	require.Error(t, err)
}

func TestSummarizeMatchesRawAggregation(t *testing.T) {
	inputs, chromSizes := sampleInputs()
	path := filepath.Join(t.TempDir(), "summarize.bw")
	ctx := context.Background()
	require.NoError(t, Write(ctx, inputs, chromSizes, path, WriteOpts{}))

	r, err := Open(ctx, path, ReaderOpts{})
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	bins, err := r.Summarize("chr1", 0, 300, 3)
	require.NoError(t, err)
	require.Len(t, bins, 3)
	assert.InDelta(t, 1.0, bins[0].Mean(), 1e-6)
	assert.InDelta(t, 2.0, bins[1].Mean(), 1e-6)
	assert.InDelta(t, 3.0, bins[2].Mean(), 1e-6)
}
