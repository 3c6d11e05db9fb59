package bigbed

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
		{Chrom: "chr1", Record: Record{Start: 0, End: 100, Rest: "geneA\t0\t+"}},
		{Chrom: "chr1", Record: Record{Start: 200, End: 300, Rest: "geneB\t0\t-"}},
		{Chrom: "chr2", Record: Record{Start: 10, End: 60, Rest: "geneC\t0\t+"}},
	}
	return inputs, chromSizes
}

func TestWriteThenOpenRoundTrip(t *testing.T) {
	for _, compression := range []romio.Compression{romio.CompressionNone, romio.CompressionDeflate, romio.CompressionSnappy} {
		inputs, chromSizes := sampleInputs()
		path := filepath.Join(t.TempDir(), "test.bb")
		ctx := context.Background()
		require.NoError(t, Write(ctx, inputs, chromSizes, path, WriteOpts{Compression: compression, Order: binary.LittleEndian}))

		r, err := Open(ctx, path, ReaderOpts{})
		require.NoError(t, err)
		defer r.Close() // nolint: errcheck

		assert.Len(t, r.Chromosomes(), 2)

		it, err := r.Query("chr1", 0, 300, true)
		require.NoError(t, err)
		var got []Record
		for it.Scan() {
			got = append(got, it.Record())
		}
		require.NoError(t, it.Err())
		require.Len(t, got, 2)
		assert.Equal(t, "geneA\t0\t+", got[0].Rest)
		assert.Equal(t, "geneB\t0\t-", got[1].Rest)

		total, err := r.TotalSummary()
		require.NoError(t, err)
		assert.EqualValues(t, 100+100+50, total.Count) // coverage-weighted, value=1 per base
	}
}

// TestWriteThenOpenRoundTripQueriesNonFirstNode forces blockSize down to 1
// so both the chrom B+ tree and the unzoomed R+ tree split into multiple
// on-disk nodes, then queries chr2, whose block is not the first node
// written after either tree's header.
func TestWriteThenOpenRoundTripQueriesNonFirstNode(t *testing.T) {
	inputs, chromSizes := sampleInputs()
	path := filepath.Join(t.TempDir(), "multinode.bb")
	ctx := context.Background()
	require.NoError(t, Write(ctx, inputs, chromSizes, path, WriteOpts{Order: binary.LittleEndian, BlockSize: 1}))

	r, err := Open(ctx, path, ReaderOpts{})
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	it, err := r.Query("chr2", 0, 500, true)
	require.NoError(t, err)
	var got []Record
	for it.Scan() {
		got = append(got, it.Record())
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 1)
	assert.Equal(t, "geneC\t0\t+", got[0].Rest)
}

func TestSummarizeIsCoverageWeighted(t *testing.T) {
	inputs, chromSizes := sampleInputs()
	path := filepath.Join(t.TempDir(), "summarize.bb")
	ctx := context.Background()
	require.NoError(t, Write(ctx, inputs, chromSizes, path, WriteOpts{}))

	r, err := Open(ctx, path, ReaderOpts{})
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	bins, err := r.Summarize("chr1", 0, 400, 4)
	require.NoError(t, err)
	require.Len(t, bins, 4)
	assert.InDelta(t, 1.0, bins[0].Mean(), 1e-6) // [0,100) fully covered by geneA
	assert.InDelta(t, 0.0, bins[1].Mean(), 1e-6) // [100,200) uncovered
	assert.InDelta(t, 1.0, bins[2].Mean(), 1e-6) // [200,300) fully covered by geneB
	assert.InDelta(t, 0.0, bins[3].Mean(), 1e-6) // [300,400) uncovered
}

func TestWriteRejectsOverlappingRecords(t *testing.T) {
	chromSizes := []ChromSize{{Name: "chr1", Length: 1000}}
	inputs := []Input{
		{Chrom: "chr1", Record: Record{Start: 0, End: 100}},
		{Chrom: "chr1", Record: Record{Start: 50, End: 150}},
	}
	path := filepath.Join(t.TempDir(), "overlap.bb")
	err := Write(context.Background(), inputs, chromSizes, path, WriteOpts{})
	require.Error(t, err)
}
