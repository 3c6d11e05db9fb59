package bbi

import (
	"sort"
	"sync"

	"github.com/biogo/store/llrb"

	"github.com/superbobry/big/romio"
)

// RTreeMagic identifies the on-disk R+ tree.
const RTreeMagic = 0x2468ACE0

// rtreeHeaderSize is magic(4)+blockSize(4)+itemCount(8)+startChrIx(4)+
// startBase(4)+endChrIx(4)+endBase(4)+fileSize(8)+itemsPerSlot(4)+
// reserved(4); the root node follows immediately.
const rtreeHeaderSize = 48

// Interval is a half-open genomic range [Start, End) on chromosome ChromIx.
type Interval struct {
	ChromIx int32
	Start   int32
	End     int32
}

// RLeaf is one R+ tree leaf: the bounding box a compressed data block
// spans, and that block's location. StartChrIx/EndChrIx differ only for
// a leaf whose block straddles a chromosome boundary; this writer never
// produces one (every data block is grouped by chromosome, §4.8 step 4)
// but a leaf read from an arbitrary on-disk file may still have one.
type RLeaf struct {
	StartChrIx int32
	StartBase  int32
	EndChrIx   int32
	EndBase    int32
	DataOffset int64
	DataSize   int64
}

// Interval reports the leaf's span as seen from its starting chromosome;
// safe to use as-is whenever StartChrIx == EndChrIx.
func (l RLeaf) Interval() Interval {
	return Interval{ChromIx: l.StartChrIx, Start: l.StartBase, End: l.EndBase}
}

// boxOverlaps implements the §4.4 overlap predicate between a leaf's stored
// bounding box and a query interval: qCI in [sCI..eCI], with the two
// boundary chromosomes additionally checked against qS/qE.
func boxOverlaps(startChrIx, startBase, endChrIx, endBase int32, q Interval) bool {
	if q.ChromIx < startChrIx || q.ChromIx > endChrIx {
		return false
	}
	return (startChrIx < q.ChromIx || startBase < q.End) &&
		(endChrIx > q.ChromIx || endBase > q.Start)
}

// RTree is an opened, readable R+ tree.
type RTree struct {
	r          *romio.RomBuffer
	rootOffset int64
	BlockSize  uint32
	ItemCount  uint64
	FileSize   uint64

	prefetch int
	mu       sync.Mutex
	cache    *llrb.Tree // keyed by cachedNode.offset, used only at PREFETCH_LEVEL_DETAILED
}

// cachedNode adapts an rNode into an llrb.Comparable keyed by file offset,
// grounded on encoding/bampair/shard_info.go's key/llrb.Tree pairing.
type cachedNode struct {
	offset int64
	node   *rNode
}

func (c *cachedNode) Compare(o llrb.Comparable) int {
	other := o.(*cachedNode)
	switch {
	case c.offset < other.offset:
		return -1
	case c.offset > other.offset:
		return 1
	default:
		return 0
	}
}

type rNode struct {
	offset int64
	isLeaf bool
	leaves []RLeaf
	kids   []rChild
}

type rChild struct {
	startChrIx, startBase, endChrIx, endBase int32
	offset                                   int64
}


// PrefetchLevel mirrors the tunables named in spec §6: PREFETCH_LEVEL_OFF
// caches nothing beyond the header fields already parsed; PREFETCH_LEVEL_FAST
// behaves exactly like OFF, here and in the bigwig/bigbed readers, which
// only pass the level on to OpenRTree; PREFETCH_LEVEL_DETAILED additionally keeps every
// visited internal node materialized in an in-memory llrb.Tree keyed by
// file offset, trading memory for fewer repeat reads during multi-query
// traversals.
type PrefetchLevel int

const (
	PrefetchOff      PrefetchLevel = 0
	PrefetchFast     PrefetchLevel = 1
	PrefetchDetailed PrefetchLevel = 2
)

// OpenRTree parses the R+ tree header at r's current position.
func OpenRTree(r *romio.RomBuffer, prefetch PrefetchLevel) (*RTree, error) {
	base := r.Pos()
	magic, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("R+ tree: read magic", err)
	}
	if magic != RTreeMagic {
		return nil, FormatError("R+ tree: bad magic", nil)
	}
	blockSize, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("R+ tree: read blockSize", err)
	}
	itemCount, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("R+ tree: read itemCount", err)
	}
	if _, err := r.GetInt(); err != nil { // startChrIx
		return nil, IOError("R+ tree: read startChrIx", err)
	}
	if _, err := r.GetInt(); err != nil { // startBase
		return nil, IOError("R+ tree: read startBase", err)
	}
	if _, err := r.GetInt(); err != nil { // endChrIx
		return nil, IOError("R+ tree: read endChrIx", err)
	}
	if _, err := r.GetInt(); err != nil { // endBase
		return nil, IOError("R+ tree: read endBase", err)
	}
	fileSize, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("R+ tree: read fileSize", err)
	}
	if _, err := r.GetUnsignedInt(); err != nil { // itemsPerSlot
		return nil, IOError("R+ tree: read itemsPerSlot", err)
	}
	if _, err := r.GetUnsignedInt(); err != nil { // reserved
		return nil, IOError("R+ tree: read reserved", err)
	}

	t := &RTree{
		r:          r,
		rootOffset: base + rtreeHeaderSize,
		BlockSize:  blockSize,
		ItemCount:  itemCount,
		FileSize:   fileSize,
		prefetch:   int(prefetch),
	}
	if prefetch == PrefetchDetailed {
		t.cache = &llrb.Tree{}
	}
	return t, nil
}

// FindOverlappingBlocks walks the tree from the root, invoking consumer
// for every leaf whose bounding box overlaps query. The caller must not
// assume a leaf's records are all truly contained in query: blocks may
// straddle the boundary (§4.4 point 4).
func (t *RTree) FindOverlappingBlocks(query Interval, consumer func(RLeaf) error) error {
	return t.walk(t.rootOffset, query, consumer)
}

func (t *RTree) loadNode(offset int64) (*rNode, error) {
	if t.cache != nil {
		t.mu.Lock()
		if v := t.cache.Get(&cachedNode{offset: offset}); v != nil {
			t.mu.Unlock()
			return v.(*cachedNode).node, nil
		}
		t.mu.Unlock()
	}

	t.r.Seek(offset)
	isLeaf, err := t.r.GetUnsignedByte()
	if err != nil {
		return nil, IOError("R+ tree: read isLeaf", err)
	}
	if _, err := t.r.GetUnsignedByte(); err != nil { // reserved
		return nil, IOError("R+ tree: read reserved byte", err)
	}
	childCount, err := t.r.GetUnsignedShort()
	if err != nil {
		return nil, IOError("R+ tree: read childCount", err)
	}

	n := &rNode{offset: offset, isLeaf: isLeaf != 0}
	if n.isLeaf {
		n.leaves = make([]RLeaf, childCount)
		for i := 0; i < int(childCount); i++ {
			startChrIx, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read leaf startChrIx", err)
			}
			startBase, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read leaf startBase", err)
			}
			endChrIx, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read leaf endChrIx", err)
			}
			endBase, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read leaf endBase", err)
			}
			dataOffset, err := t.r.GetLong()
			if err != nil {
				return nil, IOError("R+ tree: read leaf dataOffset", err)
			}
			dataSize, err := t.r.GetLong()
			if err != nil {
				return nil, IOError("R+ tree: read leaf dataSize", err)
			}
			n.leaves[i] = RLeaf{
				StartChrIx: startChrIx,
				StartBase:  startBase,
				EndChrIx:   endChrIx,
				EndBase:    endBase,
				DataOffset: dataOffset,
				DataSize:   dataSize,
			}
		}
	} else {
		n.kids = make([]rChild, childCount)
		for i := 0; i < int(childCount); i++ {
			startChrIx, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read child startChrIx", err)
			}
			startBase, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read child startBase", err)
			}
			endChrIx, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read child endChrIx", err)
			}
			endBase, err := t.r.GetInt()
			if err != nil {
				return nil, IOError("R+ tree: read child endBase", err)
			}
			childOffset, err := t.r.GetLong()
			if err != nil {
				return nil, IOError("R+ tree: read child offset", err)
			}
			n.kids[i] = rChild{startChrIx, startBase, endChrIx, endBase, childOffset}
		}
	}

	if t.cache != nil {
		t.mu.Lock()
		t.cache.Insert(&cachedNode{offset: offset, node: n})
		t.mu.Unlock()
	}
	return n, nil
}

func (t *RTree) walk(offset int64, query Interval, consumer func(RLeaf) error) error {
	n, err := t.loadNode(offset)
	if err != nil {
		return err
	}
	if n.isLeaf {
		for _, leaf := range n.leaves {
			if boxOverlaps(leaf.StartChrIx, leaf.StartBase, leaf.EndChrIx, leaf.EndBase, query) {
				if err := consumer(leaf); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, c := range n.kids {
		if boxOverlaps(c.startChrIx, c.startBase, c.endChrIx, c.endBase, query) {
			if err := t.walk(c.offset, query, consumer); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteRTree bulk-loads an R+ tree over leaves (sorted here by
// (ChromIx, Start)) with itemsPerSlot leaves per leaf-level bounding box,
// then groups repeatedly into parent levels of up to blockSize children
// (at least two, so a blockSize of 1 still terminates) until a single root
// remains. No incremental insert is supported or needed: every leaf is
// known in advance.
func WriteRTree(w *romio.OrderedDataOutput, leaves []RLeaf, blockSize, itemsPerSlot uint32, fileSize uint64) error {
	if blockSize == 0 {
		blockSize = 256
	}
	if itemsPerSlot == 0 {
		itemsPerSlot = 1
	}
	sorted := make([]RLeaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartChrIx != sorted[j].StartChrIx {
			return sorted[i].StartChrIx < sorted[j].StartChrIx
		}
		return sorted[i].StartBase < sorted[j].StartBase
	})

	var startChrIx, startBase, endChrIx, endBase int32
	if len(sorted) > 0 {
		startChrIx, startBase = sorted[0].StartChrIx, sorted[0].StartBase
		last := sorted[len(sorted)-1]
		endChrIx, endBase = last.EndChrIx, last.EndBase
	}

	if err := w.PutUnsignedInt(RTreeMagic); err != nil {
		return err
	}
	if err := w.PutUnsignedInt(blockSize); err != nil {
		return err
	}
	if err := w.PutUnsignedLong(uint64(len(sorted))); err != nil {
		return err
	}
	if err := w.PutInt(startChrIx); err != nil {
		return err
	}
	if err := w.PutInt(startBase); err != nil {
		return err
	}
	if err := w.PutInt(endChrIx); err != nil {
		return err
	}
	if err := w.PutInt(endBase); err != nil {
		return err
	}
	if err := w.PutUnsignedLong(fileSize); err != nil {
		return err
	}
	if err := w.PutUnsignedInt(itemsPerSlot); err != nil {
		return err
	}
	if err := w.PutUnsignedInt(0); err != nil { // reserved
		return err
	}
	nodesStart := w.Tell()

	// Compute the level structure bottom-up: the leaf level groups sorted
	// into itemsPerSlot-sized bounding boxes, then each level above groups
	// the level below into blockSize-sized bounding boxes, until a single
	// root box remains.
	type box struct {
		startChrIx, startBase, endChrIx, endBase int32
	}
	type level struct {
		ranges [][2]int // node -> [start,end) range into the level below (sorted, for level 0)
		boxes  []box
	}

	slots := chunkIndices(len(sorted), int(itemsPerSlot))
	leafBoxes := make([]box, len(slots))
	for i, rng := range slots {
		leafBoxes[i].startChrIx, leafBoxes[i].startBase = sorted[rng[0]].StartChrIx, sorted[rng[0]].StartBase
		last := sorted[rng[1]-1]
		leafBoxes[i].endChrIx, leafBoxes[i].endBase = last.EndChrIx, last.EndBase
	}
	levels := []level{{ranges: slots, boxes: leafBoxes}}
	// Internal nodes hold at least two children, so each parent level is
	// smaller than the one below even when blockSize is 1.
	fanout := int(blockSize)
	if fanout < 2 {
		fanout = 2
	}
	for len(levels[len(levels)-1].ranges) > 1 {
		prev := levels[len(levels)-1]
		chunks := chunkIndices(len(prev.ranges), fanout)
		next := level{ranges: chunks, boxes: make([]box, len(chunks))}
		for i, rng := range chunks {
			next.boxes[i].startChrIx, next.boxes[i].startBase = prev.boxes[rng[0]].startChrIx, prev.boxes[rng[0]].startBase
			last := prev.boxes[rng[1]-1]
			next.boxes[i].endChrIx, next.boxes[i].endBase = last.endChrIx, last.endBase
		}
		levels = append(levels, next)
	}

	// Leaf entries are startChrIx/startBase/endChrIx/endBase(4 each)+
	// dataOffset/dataSize(8 each) = 32 bytes; internal entries replace the
	// two 8-byte data fields with a single 8-byte child offset = 24 bytes.
	nodeSize := func(isLeaf bool, n int) int64 {
		if isLeaf {
			return 4 + int64(n)*32
		}
		return 4 + int64(n)*24
	}

	// Assign each node's on-disk offset root-first, then emit the nodes in
	// that same root-first order: §4.4 requires "write from root downward
	// using a pre-computed offset table", and the reader always treats the
	// first node after the tree header as the root.
	offsets := make([][]int64, len(levels))
	cursor := nodesStart
	for li := len(levels) - 1; li >= 0; li-- {
		isLeaf := li == 0
		ranges := levels[li].ranges
		offsets[li] = make([]int64, len(ranges))
		for i, rng := range ranges {
			offsets[li][i] = cursor
			cursor += nodeSize(isLeaf, rng[1]-rng[0])
		}
	}

	for li := len(levels) - 1; li >= 0; li-- {
		isLeaf := li == 0
		for _, rng := range levels[li].ranges {
			n := rng[1] - rng[0]
			var leafFlag uint8
			if isLeaf {
				leafFlag = 1
			}
			if err := w.PutUnsignedByte(leafFlag); err != nil {
				return err
			}
			if err := w.PutUnsignedByte(0); err != nil { // reserved
				return err
			}
			if err := w.PutUnsignedShort(uint16(n)); err != nil {
				return err
			}
			if isLeaf {
				for j := rng[0]; j < rng[1]; j++ {
					l := sorted[j]
					if err := w.PutInt(l.StartChrIx); err != nil {
						return err
					}
					if err := w.PutInt(l.StartBase); err != nil {
						return err
					}
					if err := w.PutInt(l.EndChrIx); err != nil {
						return err
					}
					if err := w.PutInt(l.EndBase); err != nil {
						return err
					}
					if err := w.PutLong(l.DataOffset); err != nil {
						return err
					}
					if err := w.PutLong(l.DataSize); err != nil {
						return err
					}
				}
			} else {
				childBoxes := levels[li-1].boxes
				childOffsets := offsets[li-1]
				for j := rng[0]; j < rng[1]; j++ {
					c := childBoxes[j]
					if err := w.PutInt(c.startChrIx); err != nil {
						return err
					}
					if err := w.PutInt(c.startBase); err != nil {
						return err
					}
					if err := w.PutInt(c.endChrIx); err != nil {
						return err
					}
					if err := w.PutInt(c.endBase); err != nil {
						return err
					}
					if err := w.PutLong(childOffsets[j]); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
