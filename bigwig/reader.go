package bigwig

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
	// NewFactory overrides the RomBuffer factory Open uses; nil selects
	// romio.NewSharedFactory.
	NewFactory func(ctx context.Context, path string, order binary.ByteOrder) (romio.Factory, error)
	Prefetch   bbi.PrefetchLevel
}

// Reader is an opened BigWIG file: header, chromosome B+ tree, unzoomed
// R+ tree, and zoom-level R+ trees, ready for Query/Summarize calls.
// Not safe for concurrent use by multiple goroutines; call Duplicate to
// get an independent cursor for each.
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

	// zoomMu guards zoomTrees, which is shared across Duplicate siblings
	// (unlike the decompression cache) since R+ trees are immutable and
	// cheap to keep around once opened.
	zoomMu    *sync.Mutex
	zoomTrees map[uint32]*bbi.RTree
}

var zeroHashKey [highwayhash.Size]byte

// Open parses path as a BigWIG file: header, chromosome B+ tree, and
// unzoomed R+ tree. zoom-level R+ trees are opened lazily by Summarize.
func Open(ctx context.Context, path string, opts ReaderOpts) (*Reader, error) {
	newFactory := opts.NewFactory
	if newFactory == nil {
		newFactory = func(ctx context.Context, path string, order binary.ByteOrder) (romio.Factory, error) {
			return romio.NewSharedFactory(ctx, path, order)
		}
	}
	// Byte order is unknown until the header is read; open under a
	// provisional order and let OpenHeader flip it in place.
	factory, err := newFactory(ctx, path, binary.BigEndian)
	if err != nil {
		return nil, bbi.IOError("bigwig: open", err)
	}
	buf, err := factory.Open()
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, bbi.IOError("bigwig: open", err)
	}

	header, err := bbi.OpenHeader(buf, bbi.BigWigMagic)
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
	vlog.VI(1).Infof("bigwig: opened %s: %d chromosomes, %d zoom levels", path, len(leaves), len(header.ZoomLevels))
	return r, nil
}

// Chromosomes returns every chromosome the B+ tree names, in no
// particular order; callers that need sorted order should sort the
// result themselves.
func (r *Reader) Chromosomes() []ChromInfo {
	out := make([]ChromInfo, 0, len(r.chromsByName))
	for _, ci := range r.chromsByName {
		out = append(out, ci)
	}
	return out
}

// TotalSummary returns the whole-file BigSummary recorded in the header.
func (r *Reader) TotalSummary() (bbi.BigSummary, error) {
	return r.header.ReadTotalSummary(r.buf)
}

// Duplicate returns an independent Reader sharing this one's factory
// (concurrency semantics depend on which factory Open selected; see
// romio package doc), with its own decompression cache.
func (r *Reader) Duplicate() (*Reader, error) {
	buf, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, bbi.IOError("bigwig: duplicate", err)
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

// Close releases the underlying factory. Do not call Close on a Reader
// obtained via Duplicate unless you intend to invalidate every sibling
// too; in this package only the Reader returned by Open owns the factory.
func (r *Reader) Close() error {
	return r.factory.Close()
}

// SectionIterator yields Sections in on-disk order: R+-tree traversal
// order, which is sorted by (chromIx, start), each already filtered and
// short-circuit-decoded against the originating Query's interval.
type SectionIterator struct {
	reader   *Reader
	leaves   []bbi.RLeaf
	idx      int
	query    bbi.Interval
	overlaps bool
	cur      *Section
	err      error
}

// Scan advances to the next matching Section, returning false at the end
// of the leaf list or on error (check Err after a false return).
func (it *SectionIterator) Scan() bool {
	for it.idx < len(it.leaves) {
		leaf := it.leaves[it.idx]
		it.idx++
		block, err := it.reader.decompressLeaf(leaf)
		if err != nil {
			it.err = err
			return false
		}
		block.Seek(0)
		sec, err := QuerySection(block, it.query, it.overlaps)
		if err != nil {
			it.err = err
			return false
		}
		if sec != nil {
			it.cur = sec
			return true
		}
	}
	return false
}

// Section returns the current Section; valid only after Scan returns true.
func (it *SectionIterator) Section() *Section { return it.cur }

// Err returns the error that ended iteration, or nil on clean exhaustion.
func (it *SectionIterator) Err() error { return it.err }

// Close is a no-op; present for symmetry with Reader.Close and to match
// the Scan/Record/Err/Close shape this package's iterators follow.
func (it *SectionIterator) Close() error { return nil }

// Query returns an iterator over every Section consistent with
// [start, end) on chrom: intersecting it when overlaps is true, fully
// contained in it otherwise.
func (r *Reader) Query(chrom string, start, end int32, overlaps bool) (*SectionIterator, error) {
	ci, ok := r.chromsByName[chrom]
	if !ok {
		return nil, bbi.NoSuchElement("bigwig: query", chrom)
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
	return &SectionIterator{reader: r, leaves: leaves, query: query, overlaps: overlaps}, nil
}

// decompressLeaf returns leaf's decompressed block, reusing the
// single-slot cache keyed by (chromIx, dataOffset, dataSize) when the
// same leaf is requested again within one query loop (§4.6). The cache is
// per-Reader, never shared across Duplicate (§5 "Shared resources").
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
		return nil, bbi.IOError("bigwig: decompress block", err)
	}

	r.cacheMu.Lock()
	r.cacheKey = key
	r.cacheSet = true
	r.cacheBuf = buf
	r.cacheMu.Unlock()
	return buf, nil
}

// zoomTree lazily opens (and caches) the R+ tree for the zoom level with
// the given reduction, which must be one of r.header.ZoomLevels.
func (r *Reader) zoomTree(level bbi.ZoomLevel) (*bbi.RTree, error) {
	r.zoomMu.Lock()
	defer r.zoomMu.Unlock()
	if t, ok := r.zoomTrees[level.Reduction]; ok {
		return t, nil
	}
	buf, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, bbi.IOError("bigwig: open zoom tree", err)
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
// chrom in equal-width bins, using the coarsest zoom level whose reduction
// still resolves every bin, or the raw data if no zoom level is fine
// enough (§4.8 zoom pyramid; §6 Summarize).
func (r *Reader) Summarize(chrom string, start, end int32, numBins int) ([]bbi.BigSummary, error) {
	ci, ok := r.chromsByName[chrom]
	if !ok {
		return nil, bbi.NoSuchElement("bigwig: summarize", chrom)
	}
	if numBins <= 0 || end <= start {
		return nil, bbi.FormatError("bigwig: summarize: invalid range/bins", nil)
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
				recSpan := float64(rec.End - rec.Start)
				if recSpan <= 0 {
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
		sec := it.Section()
		for _, rec := range sec.Records {
			addSpan(rec.Start, rec.End, float64(rec.Value))
		}
	}
	if it.Err() != nil {
		return nil, it.Err()
	}
	return bins, nil
}

// blockCompression decides a block's compression kind: none if the
// header's uncompressBufSize is zero, else zlib if the block's first byte
// is a standard zlib CMF byte (0x78), else snappy if the header version
// allows it. Neither compression kind is recorded explicitly per block;
// this mirrors how real BigWIG readers disambiguate post hoc.
func (r *Reader) blockCompression(leaf bbi.RLeaf) (romio.Compression, error) {
	if r.header.UncompressBufSize == 0 {
		return romio.CompressionNone, nil
	}
	peek, err := r.buf.DuplicateErr()
	if err != nil {
		return 0, bbi.IOError("bigwig: peek block", err)
	}
	peek.Seek(leaf.DataOffset)
	b, err := peek.GetBytes(1)
	if err != nil {
		return 0, bbi.IOError("bigwig: peek block", err)
	}
	if b[0] == 0x78 {
		return romio.CompressionDeflate, nil
	}
	if r.header.Version >= 5 {
		return romio.CompressionSnappy, nil
	}
	return 0, bbi.UnsupportedCompression("bigwig: block compression")
}
