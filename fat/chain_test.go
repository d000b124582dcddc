package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, table *Table, length int) uint32 {
	t.Helper()
	start, err := table.AllocateCluster()
	require.NoError(t, err)
	cur := start
	for i := 1; i < length; i++ {
		newStart, newCluster, err := table.AppendCluster(cur)
		require.NoError(t, err)
		_ = newStart
		cur = newCluster
	}
	return start
}

func TestChainLength(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	start := buildChain(t, table, 5)
	n, err := table.ChainLength(start)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestClusterOfIndexWithAdjacencyCache(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	start := buildChain(t, table, 10)

	var cache AdjacencyCache
	c3, err := table.ClusterOfIndex(start, 3, &cache)
	require.NoError(t, err)
	assert.Equal(t, start+3, c3)

	c7, err := table.ClusterOfIndex(start, 7, &cache)
	require.NoError(t, err)
	assert.Equal(t, start+7, c7)
}

func TestClusterOfIndexFragmentedChainDoesNotOverrunCache(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	// A deliberately fragmented chain: 2 -> 3 -> 4 -> 10 -> 11 (EOC).
	require.NoError(t, table.WriteEntry(2, 3))
	require.NoError(t, table.WriteEntry(3, 4))
	require.NoError(t, table.WriteEntry(4, 10))
	require.NoError(t, table.WriteEntry(10, 11))
	require.NoError(t, table.WriteEntry(11, table.EndOfChainMarker()))

	var cache AdjacencyCache
	c2, err := table.ClusterOfIndex(2, 2, &cache)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c2)

	c3, err := table.ClusterOfIndex(2, 3, &cache)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), c3, "cache must not assume forward contiguity across a fragment boundary")
}

func TestFreeChainReleasesAllClusters(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	start := buildChain(t, table, 4)
	require.NoError(t, table.FreeChain(start))

	for c := start; c < start+4; c++ {
		v, err := table.ReadEntry(c)
		require.NoError(t, err)
		assert.Equal(t, uint32(ClusterFree), v)
	}
}

func TestTruncateChainFreesTail(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	start := buildChain(t, table, 6)
	require.NoError(t, table.TruncateChain(start, 3))

	n, err := table.ChainLength(start)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
