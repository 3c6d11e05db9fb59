//go:build (linux || darwin) && (amd64 || arm64)

package romio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMmapFactoryMatchesOtherFactories checks the mmap factory reads back
// the same bytes as the other three, completing the factory-equivalence
// property for platforms where mmap is available.
func TestMmapFactoryMatchesOtherFactories(t *testing.T) {
	var buf MemWriteSeeker
	w := NewOrderedDataOutput(&buf, binary.LittleEndian)
	for i := int32(0); i < 100; i++ {
		require.NoError(t, w.PutInt(i*7-3))
	}
	path := writeTempFile(t, buf.Bytes())

	f, err := NewMmapFactory(path, binary.LittleEndian)
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
}
