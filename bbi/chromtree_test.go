package bbi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbobry/big/romio"
)

func writeChromTree(t *testing.T, leaves []BPlusLeaf, blockSize uint32) *ChromTree {
	t.Helper()
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	require.NoError(t, WriteChromTree(w, leaves, blockSize))
	r := romio.NewBytesBuffer(buf.Bytes(), binary.LittleEndian)
	tree, err := OpenChromTree(r)
	require.NoError(t, err)
	return tree
}

func TestChromTreeLookupAndTraverseRoundTrip(t *testing.T) {
	leaves := []BPlusLeaf{
		{Name: "chr3", Id: 2, Length: 300},
		{Name: "chr1", Id: 0, Length: 100},
		{Name: "chr2", Id: 1, Length: 200},
	}
	tree := writeChromTree(t, leaves, 2)

	id, length, err := tree.Lookup("chr2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
	assert.EqualValues(t, 200, length)

	all, err := tree.Traverse()
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Traverse returns leaves in ascending key order regardless of input order.
	assert.Equal(t, "chr1", all[0].Name)
	assert.Equal(t, "chr2", all[1].Name)
	assert.Equal(t, "chr3", all[2].Name)
}

func TestChromTreeLookupMissingSuggestsClosestName(t *testing.T) {
	tree := writeChromTree(t, []BPlusLeaf{{Name: "chr1", Id: 0, Length: 100}}, 4)
	_, _, err := tree.Lookup("chr1x")
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNoSuchElement, berr.Kind)
	assert.Contains(t, berr.Element, "did you mean chr1")
}

func TestWriteChromTreeRejectsDuplicateNames(t *testing.T) {
	var buf romio.MemWriteSeeker
	w := romio.NewOrderedDataOutput(&buf, binary.LittleEndian)
	err := WriteChromTree(w, []BPlusLeaf{
		{Name: "chr1", Id: 0, Length: 100},
		{Name: "chr1", Id: 1, Length: 50},
	}, 4)
	require.Error(t, err)
	berr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindDuplicateKey, berr.Kind)
}

func TestChromTreeMultiLevelWithSmallBlockSize(t *testing.T) {
	var leaves []BPlusLeaf
	for i := 0; i < 50; i++ {
		leaves = append(leaves, BPlusLeaf{Name: string(rune('a' + i%26)) + string(rune('A'+i)), Id: uint32(i), Length: uint32(i * 10)})
	}
	tree := writeChromTree(t, leaves, 4) // forces multiple internal levels

	all, err := tree.Traverse()
	require.NoError(t, err)
	require.Len(t, all, len(leaves))

	for _, l := range leaves {
		id, length, err := tree.Lookup(l.Name)
		require.NoError(t, err)
		assert.Equal(t, l.Id, id)
		assert.Equal(t, l.Length, length)
	}
}
