package tdf

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/klauspost/compress/gzip"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// Header is the 24-byte fixed TDF header plus its variable trailer
// (§4.9). TDF is always little-endian, unlike BigWIG/BigBED which
// self-describe their byte order.
type Header struct {
	Magic           string
	Version         int32
	IndexOffset     int64
	IndexSize       int32
	HeaderSize      int32
	WindowFunctions []string
	TrackType       string
	TrackLine       string
	TrackNames      []string
	Build           string
	Flags           int32
}

// Compressed reports whether tile payloads in this file are zlib-wrapped,
// per §4.9 ("compression iff flags & 0x1").
func (h *Header) Compressed() bool { return h.Flags&0x1 != 0 }

// IndexEntry is one (offset, size) pointer the master index maps a
// dataset or group name to.
type IndexEntry struct {
	Offset int64
	Size   int32
}

// numIndexShards mirrors encoding/bamprovider/concurrentmap.go's sharded
// map, generalized from a sequence-name→record map to the TDF master
// index's name→IndexEntry maps, which can hold one entry per
// chromosome/zoom/window-function combination and so benefit from the
// same sharding under concurrent Dataset/Group lookups.
const numIndexShards = 1024

type indexShard struct {
	mu      sync.Mutex
	entries map[string]IndexEntry
}

// shardedIndex is a sharded, read-mostly name→IndexEntry map built once at
// Open and never mutated afterward except by the single build pass.
type shardedIndex struct {
	shards [numIndexShards]indexShard
}

func newShardedIndex() *shardedIndex {
	idx := &shardedIndex{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]IndexEntry)
	}
	return idx
}

func (idx *shardedIndex) put(name string, e IndexEntry) {
	h := seahash.Sum64([]byte(name))
	shard := &idx.shards[h%numIndexShards]
	shard.mu.Lock()
	shard.entries[name] = e
	shard.mu.Unlock()
}

func (idx *shardedIndex) get(name string) (IndexEntry, bool) {
	h := seahash.Sum64([]byte(name))
	shard := &idx.shards[h%numIndexShards]
	shard.mu.Lock()
	e, ok := shard.entries[name]
	shard.mu.Unlock()
	return e, ok
}

// Reader is an opened TDF file: header plus the sharded dataset/group
// master index. Dataset blobs and tiles are parsed lazily by Dataset/Query.
type Reader struct {
	factory  romio.Factory
	buf      *romio.RomBuffer
	header   *Header
	datasets *shardedIndex
	groups   *shardedIndex
}

// Open parses path as a TDF file: fixed+variable header, then the master
// index at header.IndexOffset.
func Open(ctx context.Context, path string) (*Reader, error) {
	factory, err := romio.NewSharedFactory(ctx, path, binary.LittleEndian)
	if err != nil {
		return nil, bbi.IOError("tdf: open", err)
	}
	buf, err := factory.Open()
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, bbi.IOError("tdf: open", err)
	}

	header, err := readHeader(buf)
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}

	datasets, groups, err := readMasterIndex(buf, header)
	if err != nil {
		factory.Close() // nolint: errcheck
		return nil, err
	}

	return &Reader{
		factory:  factory,
		buf:      buf,
		header:   header,
		datasets: datasets,
		groups:   groups,
	}, nil
}

// Close releases the underlying factory.
func (r *Reader) Close() error { return r.factory.Close() }

// Header returns the parsed TDF header.
func (r *Reader) Header() *Header { return r.header }

func readHeader(r *romio.RomBuffer) (*Header, error) {
	r.Seek(0)
	r.SetOrder(binary.LittleEndian)
	magicBytes, err := r.GetBytes(4)
	if err != nil {
		return nil, bbi.IOError("tdf header: read magic", err)
	}
	magic := string(magicBytes)
	if magic != "TDF4" && magic != "IBF4" {
		return nil, bbi.BadSignature("tdf header: magic mismatch")
	}
	version, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf header: read version", err)
	}
	indexOffset, err := r.GetLong()
	if err != nil {
		return nil, bbi.IOError("tdf header: read indexOffset", err)
	}
	indexSize, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf header: read indexSize", err)
	}
	headerSize, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf header: read headerSize", err)
	}

	windowFunctions, err := getCStringArray(r)
	if err != nil {
		return nil, bbi.IOError("tdf header: read windowFunctions", err)
	}
	trackType, err := r.GetCString()
	if err != nil {
		return nil, bbi.IOError("tdf header: read trackType", err)
	}
	trackLine, err := r.GetCString()
	if err != nil {
		return nil, bbi.IOError("tdf header: read trackLine", err)
	}
	trackNames, err := getCStringArray(r)
	if err != nil {
		return nil, bbi.IOError("tdf header: read trackNames", err)
	}
	build, err := r.GetCString()
	if err != nil {
		return nil, bbi.IOError("tdf header: read build", err)
	}
	flags, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf header: read flags", err)
	}

	return &Header{
		Magic:           magic,
		Version:         version,
		IndexOffset:     indexOffset,
		IndexSize:       indexSize,
		HeaderSize:      headerSize,
		WindowFunctions: windowFunctions,
		TrackType:       trackType,
		TrackLine:       trackLine,
		TrackNames:      trackNames,
		Build:           build,
		Flags:           flags,
	}, nil
}

func getCStringArray(r *romio.RomBuffer) ([]string, error) {
	count, err := r.GetInt()
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		s, err := r.GetCString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// readMasterIndex parses the two name→(offset,size) maps at
// header.IndexOffset. Some TDF files gzip-frame this region (the "master
// index trailer" distinct from the per-tile zlib framing §4.9 otherwise
// uses); detected by peeking the gzip magic (0x1f, 0x8b) rather than a
// flag, since no header field announces it.
func readMasterIndex(r *romio.RomBuffer, h *Header) (datasets, groups *shardedIndex, err error) {
	mir, err := r.DuplicateErr()
	if err != nil {
		return nil, nil, bbi.IOError("tdf master index: duplicate", err)
	}
	mir.Seek(h.IndexOffset)
	raw, err := mir.GetBytes(int(h.IndexSize))
	if err != nil {
		return nil, nil, bbi.IOError("tdf master index: read", err)
	}
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, nil, bbi.IOError("tdf master index: gzip header", err)
		}
		defer gz.Close() // nolint: errcheck
		decoded, err := io.ReadAll(io.LimitReader(gz, 64<<20))
		if err != nil {
			return nil, nil, bbi.IOError("tdf master index: gzip inflate", err)
		}
		raw = decoded
	}

	mr := romio.NewBytesBuffer(raw, binary.LittleEndian)
	datasets = newShardedIndex()
	groups = newShardedIndex()
	if err := readIndexMap(mr, datasets); err != nil {
		return nil, nil, err
	}
	if err := readIndexMap(mr, groups); err != nil {
		return nil, nil, err
	}
	return datasets, groups, nil
}

func readIndexMap(r *romio.RomBuffer, into *shardedIndex) error {
	count, err := r.GetInt()
	if err != nil {
		return bbi.IOError("tdf master index: read count", err)
	}
	for i := int32(0); i < count; i++ {
		name, err := r.GetCString()
		if err != nil {
			return bbi.IOError("tdf master index: read name", err)
		}
		offset, err := r.GetLong()
		if err != nil {
			return bbi.IOError("tdf master index: read offset", err)
		}
		size, err := r.GetInt()
		if err != nil {
			return bbi.IOError("tdf master index: read size", err)
		}
		into.put(name, IndexEntry{Offset: offset, Size: size})
	}
	return nil
}

// readAttributes parses a TDF attribute map: count followed by
// count (key, value) C-string pairs. Used by both dataset and group blobs.
func readAttributes(r *romio.RomBuffer) (map[string]string, error) {
	count, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf attributes: read count", err)
	}
	out := make(map[string]string, count)
	for i := int32(0); i < count; i++ {
		key, err := r.GetCString()
		if err != nil {
			return nil, bbi.IOError("tdf attributes: read key", err)
		}
		val, err := r.GetCString()
		if err != nil {
			return nil, bbi.IOError("tdf attributes: read value", err)
		}
		out[key] = val
	}
	return out, nil
}

// Group returns the key-value attributes stored for the named group, or
// (nil, false) if no such group exists.
func (r *Reader) Group(name string) (map[string]string, bool, error) {
	e, ok := r.groups.get(name)
	if !ok {
		return nil, false, nil
	}
	gr, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, false, bbi.IOError("tdf: group", err)
	}
	gr.Seek(e.Offset)
	attrs, err := readAttributes(gr)
	if err != nil {
		return nil, false, err
	}
	return attrs, true, nil
}
