package bbi

import (
	"bytes"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/antzucaro/matchr"

	"github.com/superbobry/big/romio"
)

// ChromTreeMagic identifies the on-disk chromosome B+ tree.
const ChromTreeMagic = 0x78CA8C91

// chromTreeHeaderSize is magic(4)+blockSize(4)+keySize(4)+valSize(4)+
// itemCount(8)+reserved(8); the root node follows immediately.
const chromTreeHeaderSize = 32

// BPlusLeaf is one (name, id, length) entry of the chromosome B+ tree.
type BPlusLeaf struct {
	Name   string
	Id     uint32
	Length uint32
}

// ChromTree is an opened, readable chromosome B+ tree.
type ChromTree struct {
	r          *romio.RomBuffer
	rootOffset int64
	BlockSize  uint32
	KeySize    uint32
	ValSize    uint32
	ItemCount  uint64
}

// OpenChromTree parses the B+ tree header at r's current position (the
// cursor is left undefined afterward; callers should Seek before reuse).
func OpenChromTree(r *romio.RomBuffer) (*ChromTree, error) {
	base := r.Pos()
	magic, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("chrom B+ tree: read magic", err)
	}
	if magic != ChromTreeMagic {
		return nil, FormatError("chrom B+ tree: bad magic", nil)
	}
	blockSize, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("chrom B+ tree: read blockSize", err)
	}
	keySize, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("chrom B+ tree: read keySize", err)
	}
	valSize, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("chrom B+ tree: read valSize", err)
	}
	itemCount, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("chrom B+ tree: read itemCount", err)
	}
	if _, err := r.GetUnsignedLong(); err != nil { // reserved
		return nil, IOError("chrom B+ tree: read reserved", err)
	}
	return &ChromTree{
		r:          r,
		rootOffset: base + chromTreeHeaderSize,
		BlockSize:  blockSize,
		KeySize:    keySize,
		ValSize:    valSize,
		ItemCount:  itemCount,
	}, nil
}

// Lookup finds name's (id, length), or returns a KindNoSuchElement *Error
// carrying a Jaro-Winkler "did you mean" suggestion against every name
// seen during the failed descent.
func (t *ChromTree) Lookup(name string) (id uint32, length uint32, err error) {
	key := padKey(name, int(t.KeySize))
	if len(name) > len(key) {
		// A name longer than keySize cannot be in the tree; keep it whole
		// so it never compares equal to a truncated key.
		key = []byte(name)
	}
	var seen []string
	found, id, length, err := t.lookupNode(t.rootOffset, key, &seen)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		e := NoSuchElement("chrom B+ tree lookup", name)
		if suggestion := bestSuggestion(name, seen); suggestion != "" {
			e.Element = name + " (did you mean " + suggestion + "?)"
		}
		return 0, 0, e
	}
	return id, length, nil
}

func bestSuggestion(name string, candidates []string) string {
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(name, c, true)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore < 0.7 {
		return ""
	}
	return best
}

func (t *ChromTree) lookupNode(offset int64, key []byte, seen *[]string) (found bool, id, length uint32, err error) {
	t.r.Seek(offset)
	isLeaf, err := t.r.GetUnsignedByte()
	if err != nil {
		return false, 0, 0, IOError("chrom B+ tree: read isLeaf", err)
	}
	if _, err := t.r.GetUnsignedByte(); err != nil { // reserved
		return false, 0, 0, IOError("chrom B+ tree: read reserved byte", err)
	}
	childCount, err := t.r.GetUnsignedShort()
	if err != nil {
		return false, 0, 0, IOError("chrom B+ tree: read childCount", err)
	}

	if isLeaf != 0 {
		for i := 0; i < int(childCount); i++ {
			childKey, err := t.r.GetBytes(int(t.KeySize))
			if err != nil {
				return false, 0, 0, IOError("chrom B+ tree: read leaf key", err)
			}
			leafID, err := t.r.GetUnsignedInt()
			if err != nil {
				return false, 0, 0, IOError("chrom B+ tree: read leaf id", err)
			}
			leafLen, err := t.r.GetUnsignedInt()
			if err != nil {
				return false, 0, 0, IOError("chrom B+ tree: read leaf length", err)
			}
			*seen = append(*seen, trimKey(childKey))
			if bytes.Equal(childKey, key) {
				return true, leafID, leafLen, nil
			}
		}
		return false, 0, 0, nil
	}

	// Internal node: binary search for the last child whose key is <= key.
	type child struct {
		key    []byte
		offset int64
	}
	children := make([]child, childCount)
	for i := 0; i < int(childCount); i++ {
		childKey, err := t.r.GetBytes(int(t.KeySize))
		if err != nil {
			return false, 0, 0, IOError("chrom B+ tree: read internal key", err)
		}
		childOffset, err := t.r.GetLong()
		if err != nil {
			return false, 0, 0, IOError("chrom B+ tree: read child offset", err)
		}
		children[i] = child{key: childKey, offset: childOffset}
	}
	idx := sort.Search(len(children), func(i int) bool {
		return bytes.Compare(children[i].key, key) > 0
	}) - 1
	if idx < 0 {
		return false, 0, 0, nil
	}
	return t.lookupNode(children[idx].offset, key, seen)
}

// Traverse returns every leaf in ascending key order.
func (t *ChromTree) Traverse() ([]BPlusLeaf, error) {
	var out []BPlusLeaf
	if err := t.traverseNode(t.rootOffset, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *ChromTree) traverseNode(offset int64, out *[]BPlusLeaf) error {
	t.r.Seek(offset)
	isLeaf, err := t.r.GetUnsignedByte()
	if err != nil {
		return IOError("chrom B+ tree: traverse isLeaf", err)
	}
	if _, err := t.r.GetUnsignedByte(); err != nil {
		return IOError("chrom B+ tree: traverse reserved", err)
	}
	childCount, err := t.r.GetUnsignedShort()
	if err != nil {
		return IOError("chrom B+ tree: traverse childCount", err)
	}

	if isLeaf != 0 {
		for i := 0; i < int(childCount); i++ {
			key, err := t.r.GetBytes(int(t.KeySize))
			if err != nil {
				return IOError("chrom B+ tree: traverse leaf key", err)
			}
			id, err := t.r.GetUnsignedInt()
			if err != nil {
				return IOError("chrom B+ tree: traverse leaf id", err)
			}
			length, err := t.r.GetUnsignedInt()
			if err != nil {
				return IOError("chrom B+ tree: traverse leaf length", err)
			}
			*out = append(*out, BPlusLeaf{Name: trimKey(key), Id: id, Length: length})
		}
		return nil
	}

	offsets := make([]int64, childCount)
	for i := 0; i < int(childCount); i++ {
		if _, err := t.r.GetBytes(int(t.KeySize)); err != nil {
			return IOError("chrom B+ tree: traverse internal key", err)
		}
		childOffset, err := t.r.GetLong()
		if err != nil {
			return IOError("chrom B+ tree: traverse child offset", err)
		}
		offsets[i] = childOffset
	}
	for _, childOffset := range offsets {
		if err := t.traverseNode(childOffset, out); err != nil {
			return err
		}
	}
	return nil
}

func padKey(name string, keySize int) []byte {
	b := make([]byte, keySize)
	copy(b, name)
	return b
}

func trimKey(key []byte) string {
	n := bytes.IndexByte(key, 0)
	if n < 0 {
		return string(key)
	}
	return string(key[:n])
}

// WriteChromTree builds a balanced B+ tree bottom-up from chroms (which
// need not be pre-sorted; the writer sorts by name) and writes it to w.
// keySize is the longest name's length; valSize is always 8
// (id:u32 + length:u32). Returns DuplicateKey if any name repeats.
func WriteChromTree(w *romio.OrderedDataOutput, chroms []BPlusLeaf, blockSize uint32) error {
	if blockSize == 0 {
		blockSize = 256
	}
	sorted := make([]BPlusLeaf, len(chroms))
	copy(sorted, chroms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	keySize := 0
	seen := make(map[uint64]string, len(sorted))
	for i, c := range sorted {
		if i > 0 && sorted[i-1].Name == c.Name {
			return DuplicateKey(c.Name)
		}
		if len(c.Name) > keySize {
			keySize = len(c.Name)
		}
		h := farm.Hash64WithSeed([]byte(c.Name), 0)
		if prior, ok := seen[h]; ok && prior == c.Name {
			return DuplicateKey(c.Name)
		}
		seen[h] = c.Name
	}

	start := w.Tell()
	if err := w.PutUnsignedInt(ChromTreeMagic); err != nil {
		return IOError("chrom B+ tree write: magic", err)
	}
	if err := w.PutUnsignedInt(blockSize); err != nil {
		return IOError("chrom B+ tree write: blockSize", err)
	}
	if err := w.PutUnsignedInt(uint32(keySize)); err != nil {
		return IOError("chrom B+ tree write: keySize", err)
	}
	if err := w.PutUnsignedInt(8); err != nil {
		return IOError("chrom B+ tree write: valSize", err)
	}
	if err := w.PutUnsignedLong(uint64(len(sorted))); err != nil {
		return IOError("chrom B+ tree write: itemCount", err)
	}
	if err := w.PutUnsignedLong(0); err != nil { // reserved
		return IOError("chrom B+ tree write: reserved", err)
	}

	return writeChromNodes(w, sorted, keySize, int(blockSize), start)
}

// writeChromNodes computes the tree's level structure bottom-up (leaves
// grouped into blockSize-sized nodes, then those nodes grouped again,
// until a single root node remains), then — since every level's node byte
// size is statically known from keySize alone — assigns each node's
// on-disk offset root-first and emits the nodes in that same root-first
// order. This matches §4.4's "write from root downward using a
// pre-computed offset table": the reader always treats the first node
// after the tree header as the root, so the root must be the first node
// on disk, not the last.
func writeChromNodes(w *romio.OrderedDataOutput, leaves []BPlusLeaf, keySize, blockSize int, base int64) error {
	leafKeys := make([][]byte, len(leaves))
	for i, l := range leaves {
		leafKeys[i] = padKey(l.Name, keySize)
	}

	type level struct {
		ranges    [][2]int // node -> [start,end) range into the level below (leaves, for level 0)
		firstKeys [][]byte
	}
	leafChunks := chunkIndices(len(leaves), blockSize)
	levels := []level{{ranges: leafChunks, firstKeys: make([][]byte, len(leafChunks))}}
	for i, rng := range leafChunks {
		levels[0].firstKeys[i] = leafKeys[rng[0]]
	}
	// Internal nodes hold at least two children, so each level above the
	// leaves is smaller than the one below even when blockSize is 1.
	fanout := blockSize
	if fanout < 2 {
		fanout = 2
	}
	for len(levels[len(levels)-1].ranges) > 1 {
		prev := levels[len(levels)-1]
		chunks := chunkIndices(len(prev.ranges), fanout)
		next := level{ranges: chunks, firstKeys: make([][]byte, len(chunks))}
		for i, rng := range chunks {
			next.firstKeys[i] = prev.firstKeys[rng[0]]
		}
		levels = append(levels, next)
	}

	entrySize := int64(keySize + 8) // leaf: id(4)+length(4); internal: child offset(8)
	nodeSize := func(n int) int64 { return 4 + int64(n)*entrySize }

	offsets := make([][]int64, len(levels))
	cursor := base + chromTreeHeaderSize
	for li := len(levels) - 1; li >= 0; li-- {
		ranges := levels[li].ranges
		offsets[li] = make([]int64, len(ranges))
		for i, rng := range ranges {
			offsets[li][i] = cursor
			cursor += nodeSize(rng[1] - rng[0])
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
					if err := w.PutBytes(leafKeys[j]); err != nil {
						return err
					}
					if err := w.PutUnsignedInt(leaves[j].Id); err != nil {
						return err
					}
					if err := w.PutUnsignedInt(leaves[j].Length); err != nil {
						return err
					}
				}
			} else {
				childKeys := levels[li-1].firstKeys
				childOffsets := offsets[li-1]
				for j := rng[0]; j < rng[1]; j++ {
					if err := w.PutBytes(childKeys[j]); err != nil {
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

// chunkIndices splits [0,n) into blockSize-sized ranges, each as a
// [start, end) pair.
func chunkIndices(n, blockSize int) [][2]int {
	if n == 0 {
		return [][2]int{{0, 0}}
	}
	var out [][2]int
	for i := 0; i < n; i += blockSize {
		end := i + blockSize
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}
