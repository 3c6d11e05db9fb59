package romio

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rom.bin")
	require.NoError(t, os.WriteFile(path, contents, 0644))
	return path
}

func TestRomBufferGetPrimitivesRoundTrip(t *testing.T) {
	var buf MemWriteSeeker
	w := NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.PutByte(-7))
	require.NoError(t, w.PutUnsignedByte(200))
	require.NoError(t, w.PutShort(-1234))
	require.NoError(t, w.PutUnsignedShort(60000))
	require.NoError(t, w.PutInt(-123456))
	require.NoError(t, w.PutUnsignedInt(4000000000))
	require.NoError(t, w.PutLong(-123456789012))
	require.NoError(t, w.PutUnsignedLong(12345678901234))
	require.NoError(t, w.PutFloat(3.5))
	require.NoError(t, w.PutDouble(2.71828))
	require.NoError(t, w.PutCString("chr1"))
	require.NoError(t, w.PutBytes([]byte{1, 2, 3}))

	r := NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
	b, err := r.GetByte()
	require.NoError(t, err)
	assert.EqualValues(t, -7, b)

	ub, err := r.GetUnsignedByte()
	require.NoError(t, err)
	assert.EqualValues(t, 200, ub)

	s, err := r.GetShort()
	require.NoError(t, err)
	assert.EqualValues(t, -1234, s)

	us, err := r.GetUnsignedShort()
	require.NoError(t, err)
	assert.EqualValues(t, 60000, us)

	i, err := r.GetInt()
	require.NoError(t, err)
	assert.EqualValues(t, -123456, i)

	ui, err := r.GetUnsignedInt()
	require.NoError(t, err)
	assert.EqualValues(t, 4000000000, ui)

	l, err := r.GetLong()
	require.NoError(t, err)
	assert.EqualValues(t, -123456789012, l)

	ul, err := r.GetUnsignedLong()
	require.NoError(t, err)
	assert.EqualValues(t, 12345678901234, ul)

	f, err := r.GetFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f)

	d, err := r.GetDouble()
	require.NoError(t, err)
	assert.Equal(t, 2.71828, d)

	cs, err := r.GetCString()
	require.NoError(t, err)
	assert.Equal(t, "chr1", cs)

	raw, err := r.GetBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	assert.Equal(t, r.Len(), r.Pos())
}

func TestRomBufferGetIntsAndFloatsRoundTrip(t *testing.T) {
	var buf MemWriteSeeker
	w := NewOrderedDataOutput(&buf, binary.BigEndian)
	ints := []int32{1, -2, 3, -4, 5}
	for _, v := range ints {
		require.NoError(t, w.PutInt(v))
	}
	floats := []float32{1.5, -2.25, 0}
	for _, v := range floats {
		require.NoError(t, w.PutFloat(v))
	}

	r := NewBytesBuffer(buf.Bytes(), binary.BigEndian)
	gotInts, err := r.GetInts(len(ints))
	require.NoError(t, err)
	assert.Equal(t, ints, gotInts)

	gotFloats, err := r.GetFloats(len(floats))
	require.NoError(t, err)
	assert.Equal(t, floats, gotFloats)
}

func TestRomBufferReadPastEndIsTruncated(t *testing.T) {
	r := NewBytesBuffer([]byte{1, 2}, binary.LittleEndian)
	_, err := r.GetInt()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestRomBufferSeekAndDuplicateShareSource(t *testing.T) {
	r := NewBytesBuffer([]byte{10, 20, 30, 40}, binary.LittleEndian)
	r.Seek(2)
	dup := r.Duplicate()
	b, err := dup.GetUnsignedByte()
	require.NoError(t, err)
	assert.EqualValues(t, 30, b)
	// The original cursor is unaffected by reads through its duplicate.
	assert.EqualValues(t, 2, r.Pos())
}

func TestPatchUnsignedLongOverwritesWithoutMovingCursor(t *testing.T) {
	var buf MemWriteSeeker
	w := NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, w.SkipBytes(8))
	require.NoError(t, w.PutCString("after"))
	require.NoError(t, w.PatchUnsignedLong(0, 0xdeadbeefcafebabe))

	tail := w.Tell()
	require.NoError(t, w.PutByte(1))
	assert.Equal(t, tail+1, w.Tell())

	r := NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
	v, err := r.GetUnsignedLong()
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeefcafebabe, v)
}

func TestCompressedBlockRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionDeflate, CompressionSnappy} {
		var buf MemWriteSeeker
		w := NewOrderedDataOutput(&buf, binary.LittleEndian)
		block := w.NewCompressedBlock(compression)
		require.NoError(t, block.PutInt(42))
		require.NoError(t, block.PutCString("hello"))
		uncompressed, err := block.Close()
		require.NoError(t, err)
		assert.Equal(t, 4+len("hello")+1, uncompressed)

		r := NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
		decomp, err := r.Decompress(0, int64(len(buf.Bytes())), compression, uncompressed)
		require.NoError(t, err)
		v, err := decomp.GetInt()
		require.NoError(t, err)
		assert.EqualValues(t, 42, v)
		s, err := decomp.GetCString()
		require.NoError(t, err)
		assert.Equal(t, "hello", s)
	}
}

// TestFactoryEquivalence checks that all four concurrency-strategy
// factories read back bit-identical values from the same file, per
// spec.md's factory-equivalence testable property.
func TestFactoryEquivalence(t *testing.T) {
	var buf MemWriteSeeker
	w := NewOrderedDataOutput(&buf, binary.LittleEndian)
	for i := int32(0); i < 100; i++ {
		require.NoError(t, w.PutInt(i*7-3))
	}
	path := writeTempFile(t, buf.Bytes())
	ctx := context.Background()

	factories := map[string]func() (Factory, error){
		"shared": func() (Factory, error) { return NewSharedFactory(ctx, path, binary.LittleEndian) },
		"percursor": func() (Factory, error) {
			return NewPerCursorFactory(ctx, path, binary.LittleEndian)
		},
		"threadsafe": func() (Factory, error) {
			return NewThreadSafeFactory(ctx, path, binary.LittleEndian)
		},
	}

	for name, build := range factories {
		t.Run(name, func(t *testing.T) {
			f, err := build()
			require.NoError(t, err)
			defer f.Close() // nolint: errcheck

			rb, err := f.Open()
			require.NoError(t, err)
			assert.Equal(t, int64(400), rb.Len())
			for i := int32(0); i < 100; i++ {
				v, err := rb.GetInt()
				require.NoError(t, err)
				assert.Equal(t, i*7-3, v)
			}
		})
	}
}
