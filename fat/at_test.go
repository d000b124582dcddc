package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emerrors "github.com/segger-go/emfile/errors"
)

func TestAT12ReadWriteRoundTrip(t *testing.T) {
	table, _ := newTestTable(FAT12, 100, 1)

	require.NoError(t, table.WriteEntry(2, 0x123))
	v, err := table.ReadEntry(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123), v)

	// Odd-indexed neighbor must be untouched by the nibble packing.
	require.NoError(t, table.WriteEntry(3, 0x456))
	v2, err := table.ReadEntry(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123), v2, "writing cluster 3 must not corrupt cluster 2's nibble")

	v3, err := table.ReadEntry(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x456), v3)
}

func TestAT16ReadWriteRoundTrip(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	require.NoError(t, table.WriteEntry(10, 0xABCD&0x7FFF))
	v, err := table.ReadEntry(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCD&0x7FFF), v)
}

func TestAT32ReadWritePreservesReservedBits(t *testing.T) {
	table, _ := newTestTable(FAT32, 70000, 1)
	require.NoError(t, table.WriteEntry(10, 0x0FFFFFF0))
	v, err := table.ReadEntry(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0FFFFFF0), v)
}

func TestMaintainFATCopyMirrorsSecondFAT(t *testing.T) {
	table, dev := newTestTable(FAT16, 1000, 1)
	require.NoError(t, table.WriteEntry(5, 0x1234))

	primary := make([]byte, 512)
	mirror := make([]byte, 512)
	off := table.clusterByteOffset(5)
	sectorIdx := table.FATStartSector + off/512
	require.NoError(t, dev.ReadSector(sectorIdx, primary))
	require.NoError(t, dev.ReadSector(sectorIdx+table.FATSizeSectors, mirror))
	assert.Equal(t, primary, mirror)
}

func TestWriteEntryUpdatesFreeClusterCount(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	before := table.FSInfo.NumFreeClusters
	require.NoError(t, table.WriteEntry(5, table.EndOfChainMarker()))
	assert.Equal(t, before-1, table.FSInfo.NumFreeClusters)
	assert.True(t, table.FSInfo.IsDirty())

	require.NoError(t, table.WriteEntry(5, ClusterFree))
	assert.Equal(t, before, table.FSInfo.NumFreeClusters)
}

func TestAllocateClusterUsesFreeCache(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)

	first, err := table.AllocateCluster()
	require.NoError(t, err)
	second, err := table.AllocateCluster()
	require.NoError(t, err)
	assert.Equal(t, first+1, second, "contiguous allocations should come from the free-cluster cache run")
}

func TestAllocateClusterFailsWhenFull(t *testing.T) {
	table, _ := newTestTable(FAT16, 3, 1)
	for i := 0; i < 3; i++ {
		_, err := table.AllocateCluster()
		require.NoError(t, err)
	}
	_, err := table.AllocateCluster()
	assert.Error(t, err)
}

func errCode(t *testing.T, err error) emerrors.Code {
	t.Helper()
	de, ok := err.(emerrors.DriverError)
	require.True(t, ok, "expected a DriverError, got %T", err)
	return de.Code()
}

func TestWriteEntryRejectsSelfReference(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	err := table.WriteEntry(5, 5)
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidClusterChain, errCode(t, err))
}

func TestWriteEntryRejectsOutOfRangeCluster(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	err := table.WriteEntry(1, table.EndOfChainMarker())
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidPara, errCode(t, err))

	err = table.WriteEntry(1002, table.EndOfChainMarker())
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidPara, errCode(t, err))
}

func TestReadEntryRejectsOutOfRangeCluster(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	_, err := table.ReadEntry(0)
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidPara, errCode(t, err))

	_, err = table.ReadEntry(1)
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidPara, errCode(t, err))

	_, err = table.ReadEntry(1002)
	require.Error(t, err)
	assert.Equal(t, emerrors.InvalidPara, errCode(t, err))

	// NumClusters+1 is the last legal id.
	_, err = table.ReadEntry(1001)
	assert.NoError(t, err)
}

func TestAllocateClusterAdvancesNextFreeCluster(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	cluster, err := table.AllocateCluster()
	require.NoError(t, err)
	assert.Equal(t, cluster+1, table.FSInfo.NextFreeCluster)
}

func TestFreeChainLowersNextFreeClusterOutsideTransaction(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	table.FSInfo.NextFreeCluster = 500

	require.NoError(t, table.WriteEntry(10, table.EndOfChainMarker()))
	require.NoError(t, table.FreeChain(10))
	assert.Equal(t, uint32(10), table.FSInfo.NextFreeCluster, "freeing a cluster below NextFreeCluster should pull it back down")
}

func TestFreeChainDefersNextFreeClusterDuringOpenTransaction(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	require.NoError(t, table.WriteEntry(10, table.EndOfChainMarker()))
	// Set after the allocation above, which moves NextFreeCluster to 11.
	table.FSInfo.NextFreeCluster = 500

	journal := &Journal{table: table}
	table.journal = journal
	require.NoError(t, journal.BeginTransaction())

	require.NoError(t, table.FreeChain(10))
	assert.Equal(t, uint32(500), table.FSInfo.NextFreeCluster, "a freed cluster must not move NextFreeCluster until the transaction commits")

	min, max, ok := journal.FreedRange()
	require.True(t, ok)
	assert.Equal(t, uint32(10), min)
	assert.Equal(t, uint32(10), max)

	require.NoError(t, journal.EndTransaction())
	assert.Equal(t, uint32(10), table.FSInfo.NextFreeCluster, "committing the transaction should fold the freed range into NextFreeCluster")
}

func TestScanForFreeClusterStartsFromNextFreeClusterAndWraps(t *testing.T) {
	table, _ := newTestTable(FAT16, 10, 1)
	for c := uint32(2); c < 12; c++ {
		if c != 7 {
			require.NoError(t, table.WriteEntry(c, table.EndOfChainMarker()))
		}
	}
	table.FSInfo.NextFreeCluster = 8

	cluster, err := table.scanForFreeCluster()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), cluster, "scan should wrap back around to the only free cluster below NextFreeCluster")
}
