package bigbed

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"v.io/x/lib/vlog"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// ChromSize is one entry of the caller-supplied chromosome-name-to-length
// table Write uses to emit the B+ tree.
type ChromSize struct {
	Name   string
	Length uint32
}

// Input is one BED feature to write, paired with the chromosome name it
// belongs to (resolved to a B+-tree index internally).
type Input struct {
	Chrom string
	Record
}

// WriteOpts configures Write. The zero value fills in §4.8's stated
// defaults (zoomLevelCount=8, big-endian, blockSize=256).
type WriteOpts struct {
	ZoomLevelCount int
	Compression    romio.Compression
	Order          binary.ByteOrder
	BlockSize      uint32
}

func (o WriteOpts) withDefaults() WriteOpts {
	if o.ZoomLevelCount == 0 {
		o.ZoomLevelCount = 8
	}
	if o.Order == nil {
		o.Order = binary.BigEndian
	}
	if o.BlockSize == 0 {
		o.BlockSize = 256
	}
	return o
}

const zoomLevelTableEntrySize = 24
const totalSummarySize = 40

func fileVersion(compression romio.Compression) uint16 {
	if compression == romio.CompressionSnappy {
		return 5
	}
	return 4
}

// Write implements the §4.8 pipeline for BigBED: identical shape to
// bigwig.Write, specialized to one Record per input instead of one
// Section, and to a coverage-weighted (value=1 per covered base) zoom
// pyramid instead of a value-weighted one, since BED features carry no
// numeric value of their own.
func Write(ctx context.Context, inputs []Input, chromSizes []ChromSize, outputPath string, opts WriteOpts) (err error) {
	opts = opts.withDefaults()

	observed := make(map[string]bool, len(chromSizes))
	for _, in := range inputs {
		observed[in.Chrom] = true
	}
	var leaves []bbi.BPlusLeaf
	chromIx := make(map[string]int32, len(chromSizes))
	for _, cs := range chromSizes {
		if !observed[cs.Name] {
			continue
		}
		id := uint32(len(leaves))
		chromIx[cs.Name] = int32(id)
		leaves = append(leaves, bbi.BPlusLeaf{Name: cs.Name, Id: id, Length: cs.Length})
	}

	// Step 1: resolve chrom indices, validate sort order, accumulate span.
	var spanSum, recordCount int64
	resolved := make([]Record, len(inputs))
	lastChromIx := int32(-1)
	var lastStart, lastEnd int32
	for i, in := range inputs {
		ix, ok := chromIx[in.Chrom]
		if !ok {
			return bbi.NoSuchElement("bigbed: write", in.Chrom)
		}
		rec := in.Record
		rec.ChromIx = ix
		resolved[i] = rec

		if ix < lastChromIx {
			return bbi.SortOrderError("bigbed: write: records not grouped by chromosome")
		}
		if ix == lastChromIx {
			if rec.Start < lastStart {
				return bbi.SortOrderError("bigbed: write: records not sorted by start")
			}
			if rec.Start < lastEnd {
				return bbi.SortOrderError("bigbed: write: overlapping records")
			}
		}
		lastChromIx, lastStart, lastEnd = ix, rec.Start, rec.End

		spanSum += int64(rec.End - rec.Start)
		recordCount++
	}

	membuf := &romio.MemWriteSeeker{}
	w := romio.NewOrderedDataOutput(membuf, opts.Order)

	// Step 2: reserve header + zoom table + total summary.
	if err := w.SkipBytes(64); err != nil {
		return err
	}
	zoomTableOffset := w.Tell()
	if err := w.SkipBytes(zoomLevelTableEntrySize * opts.ZoomLevelCount); err != nil {
		return err
	}
	totalSummaryOffset := w.Tell()
	if err := w.SkipBytes(totalSummarySize); err != nil {
		return err
	}

	// Step 3: chrom B+ tree.
	chromTreeOffset := w.Tell()
	if err := bbi.WriteChromTree(w, leaves, opts.BlockSize); err != nil {
		return err
	}

	// Step 4: one compressed block + R+ leaf per record, itemsPerSlot=1.
	unzoomedDataOffset := w.Tell()
	var rleaves []bbi.RLeaf
	maxUncompressed := 0
	for _, rec := range resolved {
		block := w.NewCompressedBlock(opts.Compression)
		if err := EncodeRecord(block, rec); err != nil {
			return err
		}
		dataOffset := w.Tell()
		uncompressedSize, err := block.Close()
		if err != nil {
			return err
		}
		if uncompressedSize > maxUncompressed {
			maxUncompressed = uncompressedSize
		}
		rleaves = append(rleaves, bbi.RLeaf{
			StartChrIx: rec.ChromIx, StartBase: rec.Start,
			EndChrIx: rec.ChromIx, EndBase: rec.End,
			DataOffset: dataOffset, DataSize: w.Tell() - dataOffset,
		})
	}

	// Step 5: unzoomed R+ tree.
	unzoomedIndexOffset := w.Tell()
	if err := bbi.WriteRTree(w, rleaves, opts.BlockSize, 1, uint64(unzoomedIndexOffset-unzoomedDataOffset)); err != nil {
		return err
	}

	// Step 7: zoom pyramid.
	var zoomLevels []bbi.ZoomLevel
	if recordCount > 0 {
		initialReduction := uint32(math.Max(1, math.Ceil(float64(spanSum)/float64(recordCount)))) * 10
		reduction := initialReduction
		for level := 0; level < opts.ZoomLevelCount; level++ {
			zl, wrote, levelMax, err := writeZoomLevel(w, resolved, leaves, reduction, opts)
			if err != nil {
				return err
			}
			if !wrote {
				break
			}
			zoomLevels = append(zoomLevels, zl)
			if levelMax > maxUncompressed {
				maxUncompressed = levelMax
			}
			reduction *= 4
		}
	}

	// Step 6 + step 8: backpatch header and total summary. BigBED's total
	// summary is coverage-weighted the same way its zoom pyramid is: each
	// base a feature covers contributes value 1.
	total := bbi.EmptySummary()
	for _, rec := range resolved {
		total = total.AddValue(int64(rec.End-rec.Start), 1.0)
	}

	// Readers take a zero uncompressBufSize to mean no block is compressed.
	uncompressBufSize := uint32(maxUncompressed)
	if opts.Compression == romio.CompressionNone {
		uncompressBufSize = 0
	}
	if err := patchHeader(w, headerFields{
		Magic:               bbi.BigBedMagic,
		Version:             fileVersion(opts.Compression),
		ZoomLevels:          zoomLevels,
		ZoomTableOffset:     zoomTableOffset,
		ChromTreeOffset:     uint64(chromTreeOffset),
		UnzoomedDataOffset:  uint64(unzoomedDataOffset),
		UnzoomedIndexOffset: uint64(unzoomedIndexOffset),
		TotalSummaryOffset:  uint64(totalSummaryOffset),
		UncompressBufSize:   uncompressBufSize,
	}); err != nil {
		return err
	}
	if maxUncompressed > 0 {
		if err := patchTotalSummary(w, totalSummaryOffset, total); err != nil {
			return err
		}
	}

	out, err := file.Create(ctx, outputPath)
	if err != nil {
		return bbi.IOError("bigbed: create output", err)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if _, err := out.Writer(ctx).Write(membuf.Bytes()); err != nil {
		return bbi.IOError("bigbed: write output", err)
	}
	vlog.VI(1).Infof("bigbed: wrote %s: %d chromosomes, %d records, %d zoom levels", outputPath, len(leaves), len(resolved), len(zoomLevels))
	return nil
}

// writeZoomLevel bins every chromosome's records into fixed-width
// intervals of the given reduction, aggregating coverage (value=1 per
// base covered by a feature) with BigSummary.AddValue in parallel across
// chromosomes via traverse.Each, then writes one compressed zoom-data
// block plus R+ tree per level, mirroring bigwig.writeZoomLevel.
func writeZoomLevel(w *romio.OrderedDataOutput, resolved []Record, leaves []bbi.BPlusLeaf, reduction uint32, opts WriteOpts) (zl bbi.ZoomLevel, wrote bool, maxUncompressed int, err error) {
	byChrom := make([][]Record, len(leaves))
	for _, rec := range resolved {
		byChrom[rec.ChromIx] = append(byChrom[rec.ChromIx], rec)
	}

	binsByChrom := make([][]bbi.ZoomRecord, len(leaves))
	if err := traverse.Each(len(leaves), func(ci int) error {
		length := leaves[ci].Length
		if length == 0 || reduction == 0 {
			return nil
		}
		numBins := int((int64(length) + int64(reduction) - 1) / int64(reduction))
		if numBins == 0 {
			return nil
		}
		bounds := bbi.BinBounds(0, int32(length), numBins)
		sums := make([]bbi.BigSummary, numBins)
		for i := range sums {
			sums[i] = bbi.EmptySummary()
		}
		for _, rec := range byChrom[ci] {
			start, end := rec.Start, rec.End
			for start < end {
				bi := bbi.BinIndex(bounds, start)
				binEnd := bounds[bi+1]
				segEnd := end
				if binEnd < segEnd {
					segEnd = binEnd
				}
				sums[bi] = sums[bi].AddValue(int64(segEnd-start), 1.0)
				start = segEnd
			}
		}
		var recs []bbi.ZoomRecord
		for i, s := range sums {
			if s.Count == 0 {
				continue
			}
			recs = append(recs, bbi.ZoomRecord{ChromIx: int32(ci), Start: bounds[i], End: bounds[i+1], Summary: s})
		}
		binsByChrom[ci] = recs
		return nil
	}); err != nil {
		return bbi.ZoomLevel{}, false, 0, err
	}

	dataOffset := w.Tell()
	var rleaves []bbi.RLeaf
	for ci, recs := range binsByChrom {
		if len(recs) == 0 {
			continue
		}
		block := w.NewCompressedBlock(opts.Compression)
		for _, rec := range recs {
			if err := bbi.EncodeZoomRecord(block, rec); err != nil {
				return bbi.ZoomLevel{}, false, 0, err
			}
		}
		off := w.Tell()
		uncompressedSize, err := block.Close()
		if err != nil {
			return bbi.ZoomLevel{}, false, 0, err
		}
		if uncompressedSize > maxUncompressed {
			maxUncompressed = uncompressedSize
		}
		rleaves = append(rleaves, bbi.RLeaf{
			StartChrIx: int32(ci), StartBase: recs[0].Start,
			EndChrIx: int32(ci), EndBase: recs[len(recs)-1].End,
			DataOffset: off, DataSize: w.Tell() - off,
		})
	}
	if len(rleaves) == 0 {
		return bbi.ZoomLevel{}, false, 0, nil
	}

	indexOffset := w.Tell()
	if err := bbi.WriteRTree(w, rleaves, opts.BlockSize, 1, uint64(indexOffset-dataOffset)); err != nil {
		return bbi.ZoomLevel{}, false, 0, err
	}
	return bbi.ZoomLevel{Reduction: reduction, DataOffset: uint64(dataOffset), IndexOffset: uint64(indexOffset)}, true, maxUncompressed, nil
}

type headerFields struct {
	Magic               uint32
	Version             uint16
	ZoomLevels          []bbi.ZoomLevel
	ZoomTableOffset     int64
	ChromTreeOffset     uint64
	UnzoomedDataOffset  uint64
	UnzoomedIndexOffset uint64
	TotalSummaryOffset  uint64
	UncompressBufSize   uint32
}

// patchHeader mirrors bigwig's patchHeader exactly — the BigFile header
// layout is shared between BigWIG and BigBED (§4.5); only the magic and
// fieldCount/definedFieldCount values (left 0 here, since this writer
// doesn't implement an AutoSQL schema) differ by format.
func patchHeader(w *romio.OrderedDataOutput, h headerFields) error {
	order := w.Order()
	buf := make([]byte, 64)
	order.PutUint32(buf[0:4], h.Magic)
	order.PutUint16(buf[4:6], h.Version)
	order.PutUint16(buf[6:8], uint16(len(h.ZoomLevels)))
	order.PutUint64(buf[8:16], h.ChromTreeOffset)
	order.PutUint64(buf[16:24], h.UnzoomedDataOffset)
	order.PutUint64(buf[24:32], h.UnzoomedIndexOffset)
	order.PutUint16(buf[32:34], 0) // fieldCount
	order.PutUint16(buf[34:36], 0) // definedFieldCount
	order.PutUint64(buf[36:44], 0) // autoSqlOffset
	order.PutUint64(buf[44:52], h.TotalSummaryOffset)
	order.PutUint32(buf[52:56], h.UncompressBufSize)
	order.PutUint64(buf[56:64], 0) // extensionOffset
	if err := w.PatchBytes(0, buf); err != nil {
		return err
	}

	zbuf := make([]byte, zoomLevelTableEntrySize*len(h.ZoomLevels))
	for i, zl := range h.ZoomLevels {
		off := i * zoomLevelTableEntrySize
		order.PutUint32(zbuf[off:off+4], zl.Reduction)
		order.PutUint32(zbuf[off+4:off+8], 0)
		order.PutUint64(zbuf[off+8:off+16], zl.DataOffset)
		order.PutUint64(zbuf[off+16:off+24], zl.IndexOffset)
	}
	if len(zbuf) > 0 {
		if err := w.PatchBytes(h.ZoomTableOffset, zbuf); err != nil {
			return err
		}
	}
	return nil
}

func patchTotalSummary(w *romio.OrderedDataOutput, offset int64, s bbi.BigSummary) error {
	order := w.Order()
	buf := make([]byte, totalSummarySize)
	order.PutUint64(buf[0:8], uint64(s.Count))
	order.PutUint64(buf[8:16], math.Float64bits(s.MinValue))
	order.PutUint64(buf[16:24], math.Float64bits(s.MaxValue))
	order.PutUint64(buf[24:32], math.Float64bits(s.Sum))
	order.PutUint64(buf[32:40], math.Float64bits(s.SumSquares))
	return w.PatchBytes(offset, buf)
}
