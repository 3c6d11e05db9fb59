package romio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/grailbio/base/errors"
)

// OrderedDataOutput is the write-side counterpart to RomBuffer: a
// byte-order-aware sequential writer over a seekable destination, with
// support for backpatching fixed-size header fields once their true
// value (an offset discovered later, a child-block size) is known, and
// for scoping a run of writes into a single compressed block.
type OrderedDataOutput struct {
	w     io.WriteSeeker
	order binary.ByteOrder
	n     int64
}

// NewOrderedDataOutput wraps w for sequential, byte-order-aware writes.
// w's current position is taken as offset 0 for Tell.
func NewOrderedDataOutput(w io.WriteSeeker, order binary.ByteOrder) *OrderedDataOutput {
	return &OrderedDataOutput{w: w, order: order}
}

// Order returns the byte order values are encoded in.
func (o *OrderedDataOutput) Order() binary.ByteOrder { return o.order }

// Tell returns the number of bytes written so far.
func (o *OrderedDataOutput) Tell() int64 { return o.n }

func (o *OrderedDataOutput) write(b []byte) error {
	if _, err := o.w.Write(b); err != nil {
		return wrapIO(err, "romio: write")
	}
	o.n += int64(len(b))
	return nil
}

// PutByte writes a signed 8-bit value.
func (o *OrderedDataOutput) PutByte(v int8) error { return o.write([]byte{byte(v)}) }

// PutUnsignedByte writes an unsigned 8-bit value.
func (o *OrderedDataOutput) PutUnsignedByte(v uint8) error { return o.write([]byte{v}) }

// PutShort writes a signed 16-bit value.
func (o *OrderedDataOutput) PutShort(v int16) error { return o.PutUnsignedShort(uint16(v)) }

// PutUnsignedShort writes an unsigned 16-bit value.
func (o *OrderedDataOutput) PutUnsignedShort(v uint16) error {
	b := make([]byte, 2)
	o.order.PutUint16(b, v)
	return o.write(b)
}

// PutInt writes a signed 32-bit value.
func (o *OrderedDataOutput) PutInt(v int32) error { return o.PutUnsignedInt(uint32(v)) }

// PutUnsignedInt writes an unsigned 32-bit value.
func (o *OrderedDataOutput) PutUnsignedInt(v uint32) error {
	b := make([]byte, 4)
	o.order.PutUint32(b, v)
	return o.write(b)
}

// PutLong writes a signed 64-bit value.
func (o *OrderedDataOutput) PutLong(v int64) error { return o.PutUnsignedLong(uint64(v)) }

// PutUnsignedLong writes an unsigned 64-bit value.
func (o *OrderedDataOutput) PutUnsignedLong(v uint64) error {
	b := make([]byte, 8)
	o.order.PutUint64(b, v)
	return o.write(b)
}

// PutFloat writes an IEEE-754 32-bit float.
func (o *OrderedDataOutput) PutFloat(v float32) error {
	return o.PutUnsignedInt(math.Float32bits(v))
}

// PutDouble writes an IEEE-754 64-bit float.
func (o *OrderedDataOutput) PutDouble(v float64) error {
	return o.PutUnsignedLong(math.Float64bits(v))
}

// PutBytes writes b verbatim.
func (o *OrderedDataOutput) PutBytes(b []byte) error { return o.write(b) }

// PutCString writes s followed by a NUL terminator.
func (o *OrderedDataOutput) PutCString(s string) error {
	if err := o.write([]byte(s)); err != nil {
		return err
	}
	return o.write([]byte{0})
}

// SkipBytes writes n zero bytes, reserving space for a header field to be
// backpatched later with PatchUnsignedLong/PatchUnsignedInt.
func (o *OrderedDataOutput) SkipBytes(n int) error {
	return o.write(make([]byte, n))
}

// PatchUnsignedLong overwrites the 8 bytes at offset with v, then restores
// the write cursor to its prior position. Used to fill in section offsets
// in a header written before the sections themselves.
func (o *OrderedDataOutput) PatchUnsignedLong(offset int64, v uint64) error {
	b := make([]byte, 8)
	o.order.PutUint64(b, v)
	return o.patch(offset, b)
}

// PatchUnsignedInt overwrites the 4 bytes at offset with v, then restores
// the write cursor to its prior position.
func (o *OrderedDataOutput) PatchUnsignedInt(offset int64, v uint32) error {
	b := make([]byte, 4)
	o.order.PutUint32(b, v)
	return o.patch(offset, b)
}

// PatchBytes overwrites len(b) bytes at offset with b, then restores the
// write cursor to its prior position. Used for multi-field fixed-size
// regions reserved up front (e.g. the BigFile header's total-summary
// slot) that a single PatchUnsignedLong/PatchUnsignedInt can't cover.
func (o *OrderedDataOutput) PatchBytes(offset int64, b []byte) error {
	return o.patch(offset, b)
}

func (o *OrderedDataOutput) patch(offset int64, b []byte) error {
	cur, err := o.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO(err, "romio: patch: tell")
	}
	if _, err := o.w.Seek(offset, io.SeekStart); err != nil {
		return wrapIO(err, "romio: patch: seek")
	}
	if _, err := o.w.Write(b); err != nil {
		return wrapIO(err, "romio: patch: write")
	}
	_, err = o.w.Seek(cur, io.SeekStart)
	return wrapIO(err, "romio: patch: restore")
}

// CompressedBlock accumulates writes in memory and, on Close, compresses
// them as a single unit and appends the result to the parent output. This
// matches the on-disk layout of BigWIG/BigBED data and R-tree leaf
// blocks: each is an independently decompressible unit, never a streamed
// compressor state carried across blocks.
type CompressedBlock struct {
	parent      *OrderedDataOutput
	compression Compression
	buf         bytes.Buffer
	order       binary.ByteOrder
	closed      bool
}

// NewCompressedBlock opens a new block scoped to parent, compressed with
// compression once Close is called.
func (o *OrderedDataOutput) NewCompressedBlock(compression Compression) *CompressedBlock {
	return &CompressedBlock{parent: o, compression: compression, order: o.order}
}

// Order returns the byte order values written to this block are encoded in.
func (c *CompressedBlock) Order() binary.ByteOrder { return c.order }

func (c *CompressedBlock) write(b []byte) error {
	_, err := c.buf.Write(b)
	return err
}

// PutByte writes a signed 8-bit value into the block's uncompressed buffer.
func (c *CompressedBlock) PutByte(v int8) error { return c.write([]byte{byte(v)}) }

// PutUnsignedByte writes an unsigned 8-bit value.
func (c *CompressedBlock) PutUnsignedByte(v uint8) error { return c.write([]byte{v}) }

// PutShort writes a signed 16-bit value.
func (c *CompressedBlock) PutShort(v int16) error { return c.PutUnsignedShort(uint16(v)) }

// PutUnsignedShort writes an unsigned 16-bit value.
func (c *CompressedBlock) PutUnsignedShort(v uint16) error {
	b := make([]byte, 2)
	c.order.PutUint16(b, v)
	return c.write(b)
}

// PutInt writes a signed 32-bit value.
func (c *CompressedBlock) PutInt(v int32) error { return c.PutUnsignedInt(uint32(v)) }

// PutUnsignedInt writes an unsigned 32-bit value.
func (c *CompressedBlock) PutUnsignedInt(v uint32) error {
	b := make([]byte, 4)
	c.order.PutUint32(b, v)
	return c.write(b)
}

// PutFloat writes an IEEE-754 32-bit float.
func (c *CompressedBlock) PutFloat(v float32) error {
	return c.PutUnsignedInt(math.Float32bits(v))
}

// PutBytes writes b verbatim into the block's uncompressed buffer.
func (c *CompressedBlock) PutBytes(b []byte) error { return c.write(b) }

// PutCString writes s followed by a NUL terminator.
func (c *CompressedBlock) PutCString(s string) error {
	if err := c.write([]byte(s)); err != nil {
		return err
	}
	return c.write([]byte{0})
}

// Len returns the number of uncompressed bytes written to the block so far.
func (c *CompressedBlock) Len() int { return c.buf.Len() }

// Close compresses the accumulated bytes, appends them to the parent
// output, and returns the uncompressed size (needed by callers that record
// it alongside the compressed size in an index, e.g. R-tree leaves and
// the BigFile header's uncompressBufSize).
func (c *CompressedBlock) Close() (uncompressedSize int, err error) {
	if c.closed {
		return 0, errors.E("romio: compressed block: already closed")
	}
	c.closed = true
	raw := c.buf.Bytes()
	out, err := compressBytes(c.compression, raw)
	if err != nil {
		return 0, err
	}
	if err := c.parent.write(out); err != nil {
		return 0, err
	}
	return len(raw), nil
}
