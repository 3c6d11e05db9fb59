package romio

import (
	"encoding/binary"
	"math"

	"github.com/grailbio/base/log"
)

// RomBuffer is a read-only, positioned, byte-order-aware view over a file
// region (or, after Decompress, over the decompressed contents of one).
// It is the sole I/O abstraction used by the B+/R+ tree codecs and the
// BigWIG/BigBED/TDF section decoders: every one of them reads through a
// RomBuffer rather than touching *os.File directly, so the four factory
// variants in this package are the only place byte-order and concurrency
// strategy are chosen.
type RomBuffer struct {
	src   source
	order binary.ByteOrder
	pos   int64
	// dup, when non-nil, produces an independent source for Duplicate()
	// (used by the per-cursor factory to open a new file handle per
	// cursor). When nil, Duplicate() shares the existing source, which is
	// the correct and cheaper choice for the shared, thread-safe, and
	// mmap factories.
	dup func() (source, error)
}

func newRomBuffer(src source, order binary.ByteOrder) *RomBuffer {
	return &RomBuffer{src: src, order: order, pos: 0}
}

// NewBytesBuffer wraps an already in-memory byte slice (e.g. a gzip- or
// zlib-decompressed region materialized by the caller) in a RomBuffer, the
// same way Decompress does internally for a compressed on-disk block.
func NewBytesBuffer(b []byte, order binary.ByteOrder) *RomBuffer {
	return newRomBuffer(memSource(b), order)
}

// Order returns the byte order this buffer decodes multi-byte values with.
func (r *RomBuffer) Order() binary.ByteOrder { return r.order }

// SetOrder changes the byte order in place. Used by header parsing, which
// must read a handful of bytes before it knows which order the rest of the
// file is in.
func (r *RomBuffer) SetOrder(order binary.ByteOrder) { r.order = order }

// Pos returns the current cursor position.
func (r *RomBuffer) Pos() int64 { return r.pos }

// Seek repositions the cursor. It never touches the underlying file; the
// next read will.
func (r *RomBuffer) Seek(pos int64) { r.pos = pos }

// Len returns the size of the region this buffer is scoped to.
func (r *RomBuffer) Len() int64 { return r.src.size() }

// Duplicate returns an independent cursor over the same underlying data.
// Concurrency semantics depend on which factory produced the source: see
// package doc and the individual factory files. Duplicate panics if the
// per-cursor factory fails to open a new handle; use DuplicateErr to
// handle that case explicitly.
func (r *RomBuffer) Duplicate() *RomBuffer {
	d, err := r.DuplicateErr()
	if err != nil {
		log.Panicf("romio: duplicate: %v", err)
	}
	return d
}

// DuplicateErr is Duplicate, but surfaces a handle-open failure (only
// possible for the per-cursor factory) instead of panicking.
func (r *RomBuffer) DuplicateErr() (*RomBuffer, error) {
	if r.dup != nil {
		s, err := r.dup()
		if err != nil {
			return nil, err
		}
		return &RomBuffer{src: s, order: r.order, pos: 0, dup: r.dup}, nil
	}
	return &RomBuffer{src: r.src, order: r.order, pos: r.pos, dup: r.dup}, nil
}

// Close does nothing and returns nil: a buffer's source belongs to its
// factory, so duplicates may be closed independently of one another and
// the underlying resource is only released when the factory itself is
// closed.
func (r *RomBuffer) Close() error { return nil }

func (r *RomBuffer) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.src.readAt(buf, r.pos); err != nil {
		return nil, wrapIO(err, "romio: read")
	}
	r.pos += int64(n)
	return buf, nil
}

// GetByte reads a signed 8-bit value.
func (r *RomBuffer) GetByte() (int8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// GetUnsignedByte reads an unsigned 8-bit value.
func (r *RomBuffer) GetUnsignedByte() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetShort reads a signed 16-bit value.
func (r *RomBuffer) GetShort() (int16, error) {
	v, err := r.GetUnsignedShort()
	return int16(v), err
}

// GetUnsignedShort reads an unsigned 16-bit value.
func (r *RomBuffer) GetUnsignedShort() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// GetInt reads a signed 32-bit value.
func (r *RomBuffer) GetInt() (int32, error) {
	v, err := r.GetUnsignedInt()
	return int32(v), err
}

// GetUnsignedInt reads an unsigned 32-bit value.
func (r *RomBuffer) GetUnsignedInt() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// GetLong reads a signed 64-bit value.
func (r *RomBuffer) GetLong() (int64, error) {
	v, err := r.GetUnsignedLong()
	return int64(v), err
}

// GetUnsignedLong reads an unsigned 64-bit value.
func (r *RomBuffer) GetUnsignedLong() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// GetFloat reads an IEEE-754 32-bit float.
func (r *RomBuffer) GetFloat() (float32, error) {
	v, err := r.GetUnsignedInt()
	return math.Float32frombits(v), err
}

// GetDouble reads an IEEE-754 64-bit float.
func (r *RomBuffer) GetDouble() (float64, error) {
	v, err := r.GetUnsignedLong()
	return math.Float64frombits(v), err
}

// GetBytes reads n raw bytes.
func (r *RomBuffer) GetBytes(n int) ([]byte, error) {
	return r.read(n)
}

// GetCString reads a NUL-terminated string, excluding the terminator.
func (r *RomBuffer) GetCString() (string, error) {
	var buf []byte
	for {
		b, err := r.read(1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		buf = append(buf, b[0])
	}
	return string(buf), nil
}

// GetInts reads n consecutive signed 32-bit values.
func (r *RomBuffer) GetInts(n int) ([]int32, error) {
	raw, err := r.read(4 * n)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = int32(r.order.Uint32(raw[i*4:]))
	}
	return out, nil
}

// GetFloats reads n consecutive IEEE-754 32-bit floats.
func (r *RomBuffer) GetFloats(n int) ([]float32, error) {
	raw, err := r.read(4 * n)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(r.order.Uint32(raw[i*4:]))
	}
	return out, nil
}

// Decompress reads size bytes starting at offset and returns a fresh
// RomBuffer over their decompressed contents, in the same byte order as
// the receiver. sizeHint, if nonzero, preallocates the output buffer (it
// is always available from the BigFile header's uncompressBufSize).
func (r *RomBuffer) Decompress(offset, size int64, compression Compression, sizeHint int) (*RomBuffer, error) {
	raw := make([]byte, size)
	if _, err := r.src.readAt(raw, offset); err != nil {
		return nil, wrapIO(err, "romio: decompress: read raw block")
	}
	out, err := decompressBytes(compression, raw, sizeHint)
	if err != nil {
		return nil, err
	}
	return newRomBuffer(memSource(out), r.order), nil
}
