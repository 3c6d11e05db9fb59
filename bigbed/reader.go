package bigbed

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/minio/highwayhash"
	"v.io/x/lib/vlog"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// ChromInfo is one (name, id, length) entry exposed by Reader.Chromosomes.
type ChromInfo struct {
	Name   string
	Id     uint32
	Length uint32
}

// ReaderOpts configures Open. The zero value is a ready-to-use default:
// a shared synchronized RomBuffer factory and PrefetchOff.
type ReaderOpts struct {
	NewFactory func(ctx context.Context, path string, order binary.ByteOrder) (romio.Factory, error)
	Prefetch   bbi.PrefetchLevel
}

// Reader is an opened BigBED file. Structurally identical to
// bigwig.Reader — same header/B+-tree/R+-tree/zoom-tree substrate — only
// the block codec (bigbed.Record vs bigwig.Section) differs, per §4.7.
type Reader struct {
	factory  romio.Factory
	buf      *romio.RomBuffer
	header   *bbi.Header
	rtree    *bbi.RTree
	prefetch bbi.PrefetchLevel

	chromsByName map[string]ChromInfo
	chromsByID   map[int32]ChromInfo

	cacheMu  sync.Mutex
	cacheKey [highwayhash.Size]byte
	cacheSet bool
	cacheBuf *romio.RomBuffer

	zoomMu    *sync.Mutex
	zoomTrees map[uint32]*bbi.RTree
}

var zeroHashKey [highwayhash.Size]byte

// Open parses path as a BigBED file.
func Open(ctx context.Context, path string, opts ReaderOpts) (*Reader, error) {
	newFactory := opts.NewFactory
	if newFactory == nil {
		newFactory = func(ctx context.Context, path string, order binary.ByteOrder) (romio.Factory, error) {
			return romio.NewSharedFactory(ctx, path, order)
		}
	}
	factory, err := newFactory(ctx, path, binary.BigEndian)
	if err != nil {
		return nil, bbi.IOError("bigbed: open", err)
	}
	buf, err := factory.Open()
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, bbi.IOError("bigbed: open", err)
	}

	header, err := bbi.OpenHeader(buf, bbi.BigBedMagic)
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}

	buf.Seek(int64(header.ChromTreeOffset))
	chromTree, err := bbi.OpenChromTree(buf)
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}
	leaves, err := chromTree.Traverse()
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}

	buf.Seek(int64(header.UnzoomedIndexOffset))
	rtree, err := bbi.OpenRTree(buf, opts.Prefetch)
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}

	r := &Reader{
		factory:      factory,
		buf:          buf,
		header:       header,
		rtree:        rtree,
		prefetch:     opts.Prefetch,
		chromsByName: make(map[string]ChromInfo, len(leaves)),
		chromsByID:   make(map[int32]ChromInfo, len(leaves)),
		zoomMu:       &sync.Mutex{},
		zoomTrees:    make(map[uint32]*bbi.RTree),
	}
	for _, l := range leaves {
		ci := ChromInfo{Name: l.Name, Id: l.Id, Length: l.Length}
		r.chromsByName[l.Name] = ci
		r.chromsByID[int32(l.Id)] = ci
	}
	vlog.VI(1).Infof("bigbed: opened %s: %d chromosomes, %d zoom levels", path, len(leaves), len(header.ZoomLevels))
	return r, nil
}

// Chromosomes returns every chromosome the B+ tree names, in no
// particular order.
func (r *Reader) Chromosomes() []ChromInfo {
	out := make([]ChromInfo, 0, len(r.chromsByName))
	for _, ci := range r.chromsByName {
		out = append(out, ci)
	}
	return out
}

// TotalSummary returns the whole-file BigSummary recorded in the header
// (coverage-weighted: each base a feature covers contributes value 1).
func (r *Reader) TotalSummary() (bbi.BigSummary, error) {
	return r.header.ReadTotalSummary(r.buf)
}

// Duplicate returns an independent Reader sharing this one's factory.
func (r *Reader) Duplicate() (*Reader, error) {
	buf, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, bbi.IOError("bigbed: duplicate", err)
	}
	d := &Reader{
		factory:      r.factory,
		buf:          buf,
		header:       r.header,
		rtree:        r.rtree,
		prefetch:     r.prefetch,
		chromsByName: r.chromsByName,
		chromsByID:   r.chromsByID,
		zoomMu:       r.zoomMu,
		zoomTrees:    r.zoomTrees,
	}
	return d, nil
}

// Close releases the underlying factory.
func (r *Reader) Close() error {
	return r.factory.Close()
}

// RecordIterator yields Records in on-disk order, matching the originating
// Query's interval.
type RecordIterator struct {
	reader   *Reader
	leaves   []bbi.RLeaf
	idx      int
	query    bbi.Interval
	overlaps bool
	cur      []Record
	pos      int
	err      error
}

// Scan advances to the next matching Record.
func (it *RecordIterator) Scan() bool {
	for {
		if it.pos < len(it.cur) {
			it.pos++
			return true
		}
		if it.idx >= len(it.leaves) {
			return false
		}
		leaf := it.leaves[it.idx]
		it.idx++
		block, err := it.reader.decompressLeaf(leaf)
		if err != nil {
			it.err = err
			return false
		}
		block.Seek(0)
		recs, err := QueryBlock(block, it.query, it.overlaps)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = recs
		it.pos = 0
	}
}

// Record returns the current Record; valid only after Scan returns true.
func (it *RecordIterator) Record() Record { return it.cur[it.pos-1] }

// Err returns the error that ended iteration, or nil on clean exhaustion.
func (it *RecordIterator) Err() error { return it.err }

// Close is a no-op; present for symmetry with Reader.Close.
func (it *RecordIterator) Close() error { return nil }

// Query returns an iterator over every Record consistent with
// [start, end) on chrom.
func (r *Reader) Query(chrom string, start, end int32, overlaps bool) (*RecordIterator, error) {
	ci, ok := r.chromsByName[chrom]
	if !ok {
		return nil, bbi.NoSuchElement("bigbed: query", chrom)
	}
	query := bbi.Interval{ChromIx: int32(ci.Id), Start: start, End: end}
	var leaves []bbi.RLeaf
	err := r.rtree.FindOverlappingBlocks(query, func(l bbi.RLeaf) error {
		leaves = append(leaves, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &RecordIterator{reader: r, leaves: leaves, query: query, overlaps: overlaps}, nil
}

// decompressLeaf mirrors bigwig.Reader.decompressLeaf's single-slot cache.
func (r *Reader) decompressLeaf(leaf bbi.RLeaf) (*romio.RomBuffer, error) {
	var keyBuf [20]byte
	binary.LittleEndian.PutUint32(keyBuf[0:4], uint32(leaf.StartChrIx))
	binary.LittleEndian.PutUint64(keyBuf[4:12], uint64(leaf.DataOffset))
	binary.LittleEndian.PutUint64(keyBuf[12:20], uint64(leaf.DataSize))
	key := highwayhash.Sum(keyBuf[:], zeroHashKey[:])

	r.cacheMu.Lock()
	if r.cacheSet && r.cacheKey == key {
		buf := r.cacheBuf
		r.cacheMu.Unlock()
		return buf, nil
	}
	r.cacheMu.Unlock()

	compression, err := r.blockCompression(leaf)
	if err != nil {
		return nil, err
	}
	buf, err := r.buf.Decompress(leaf.DataOffset, leaf.DataSize, compression, int(r.header.UncompressBufSize))
	if err != nil {
		return nil, bbi.IOError("bigbed: decompress block", err)
	}

	r.cacheMu.Lock()
	r.cacheKey = key
	r.cacheSet = true
	r.cacheBuf = buf
	r.cacheMu.Unlock()
	return buf, nil
}

// zoomTree lazily opens (and caches) the R+ tree for the zoom level with
// the given reduction.
func (r *Reader) zoomTree(level bbi.ZoomLevel) (*bbi.RTree, error) {
	r.zoomMu.Lock()
	defer r.zoomMu.Unlock()
	if t, ok := r.zoomTrees[level.Reduction]; ok {
		return t, nil
	}
	buf, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, bbi.IOError("bigbed: open zoom tree", err)
	}
	buf.Seek(int64(level.IndexOffset))
	t, err := bbi.OpenRTree(buf, r.prefetch)
	if err != nil {
		return nil, err
	}
	r.zoomTrees[level.Reduction] = t
	return t, nil
}

// Summarize returns numBins BigSummary values covering [start, end) on
// chrom, coverage-weighted (each base under a feature counts as value 1),
// using the coarsest zoom level whose reduction still resolves every bin,
// or raw feature data otherwise.
func (r *Reader) Summarize(chrom string, start, end int32, numBins int) ([]bbi.BigSummary, error) {
	ci, ok := r.chromsByName[chrom]
	if !ok {
		return nil, bbi.NoSuchElement("bigbed: summarize", chrom)
	}
	if numBins <= 0 || end <= start {
		return nil, bbi.FormatError("bigbed: summarize: invalid range/bins", nil)
	}
	chromIx := int32(ci.Id)
	bounds := bbi.BinBounds(start, end, numBins)
	bins := make([]bbi.BigSummary, numBins)
	for i := range bins {
		bins[i] = bbi.EmptySummary()
	}
	addSpan := func(recStart, recEnd int32, value float64) {
		if recStart < start {
			recStart = start
		}
		if recEnd > end {
			recEnd = end
		}
		for recStart < recEnd {
			bi := bbi.BinIndex(bounds, recStart)
			binEnd := bounds[bi+1]
			segEnd := recEnd
			if binEnd < segEnd {
				segEnd = binEnd
			}
			bins[bi] = bins[bi].AddValue(int64(segEnd-recStart), value)
			recStart = segEnd
		}
	}

	query := bbi.Interval{ChromIx: chromIx, Start: start, End: end}
	desiredReduction := int64(end-start) / int64(numBins)
	if level, ok := r.header.PickZoom(uint32(desiredReduction)); ok {
		tree, err := r.zoomTree(level)
		if err != nil {
			return nil, err
		}
		var leaves []bbi.RLeaf
		if err := tree.FindOverlappingBlocks(query, func(l bbi.RLeaf) error {
			leaves = append(leaves, l)
			return nil
		}); err != nil {
			return nil, err
		}
		for _, leaf := range leaves {
			block, err := r.decompressLeaf(leaf)
			if err != nil {
				return nil, err
			}
			recs, err := bbi.DecodeZoomBlock(block)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				if rec.ChromIx != chromIx || rec.End <= start || rec.Start >= end {
					continue
				}
				addSpan(rec.Start, rec.End, rec.Summary.Mean())
			}
		}
		return bins, nil
	}

	it, err := r.Query(chrom, start, end, true)
	if err != nil {
		return nil, err
	}
	for it.Scan() {
		rec := it.Record()
		addSpan(rec.Start, rec.End, 1.0)
	}
	if it.Err() != nil {
		return nil, it.Err()
	}
	return bins, nil
}

// blockCompression mirrors bigwig.Reader.blockCompression exactly — the
// disambiguation rule is a property of the shared BigFile block layout
// (§4.1/§6), not of the WIG vs. BED codec.
func (r *Reader) blockCompression(leaf bbi.RLeaf) (romio.Compression, error) {
	if r.header.UncompressBufSize == 0 {
		return romio.CompressionNone, nil
	}
	peek, err := r.buf.DuplicateErr()
	if err != nil {
		return 0, bbi.IOError("bigbed: peek block", err)
	}
	peek.Seek(leaf.DataOffset)
	b, err := peek.GetBytes(1)
	if err != nil {
		return 0, bbi.IOError("bigbed: peek block", err)
	}
	if b[0] == 0x78 {
		return romio.CompressionDeflate, nil
	}
	if r.header.Version >= 5 {
		return romio.CompressionSnappy, nil
	}
	return 0, bbi.UnsupportedCompression("bigbed: block compression")
}
