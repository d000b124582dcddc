package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFindEntryInFixedRoot(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}

	e := DirEntry{Attr: AttrArchive, FileSize: 42}
	require.NoError(t, table.CreateEntry(root, "HELLO.TXT", e, nil))

	found, _, _, err := table.FindEntry(root, "HELLO.TXT", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, found.FileSize)
	assert.Equal(t, "HELLO.TXT", DecodeShortName(found.Name, found.Ext))
}

func TestFindEntryNotFound(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}
	_, _, _, err := table.FindEntry(root, "NOPE.TXT", nil)
	assert.Error(t, err)
}

func TestDeleteEntryFreesChain(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}

	start := buildChain(t, table, 3)
	e := DirEntry{Attr: AttrArchive}
	e.SetFirstCluster(start)
	require.NoError(t, table.CreateEntry(root, "DATA.BIN", e, nil))

	found, sector, off, err := table.FindEntry(root, "DATA.BIN", nil)
	require.NoError(t, err)
	require.NoError(t, table.DeleteEntry(sector, off, found.FirstCluster()))

	_, _, _, err = table.FindEntry(root, "DATA.BIN", nil)
	assert.Error(t, err, "entry must be gone after deletion")

	v, err := table.ReadEntry(start)
	require.NoError(t, err)
	assert.Equal(t, uint32(ClusterFree), v, "deleting the entry must free its cluster chain")
}

func TestCreateEntryGrowsNonRootDirectory(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	dirStart, err := table.AllocateCluster()
	require.NoError(t, err)
	require.NoError(t, table.zeroCluster(dirStart))
	dir := DirCursor{StartCluster: dirStart}

	bytesPerSector := uint32(1) << table.LdBytesPerSector
	entriesPerCluster := int((bytesPerSector << table.LdSectorsPerClust) / direntSize)

	for i := 0; i < entriesPerCluster; i++ {
		e := DirEntry{Attr: AttrArchive}
		name := shortNameFor(i)
		require.NoError(t, table.CreateEntry(dir, name, e, nil))
	}

	n, err := table.ChainLength(dirStart)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "directory should still be one cluster while slots remain")

	overflowEntry := DirEntry{Attr: AttrArchive}
	require.NoError(t, table.CreateEntry(dir, "OVERFLOW.TXT", overflowEntry, nil))

	n2, err := table.ChainLength(dirStart)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n2, "directory must grow by one cluster once full")
}

func shortNameFor(i int) string {
	digits := "0123456789ABCDEF"
	return "F" + string(digits[i%16]) + string(digits[(i/16)%16]) + ".TXT"
}
