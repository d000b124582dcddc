package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJournalFileWritesDirEntryAndChain(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}

	j, err := CreateJournalFile(table, root, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 4, j.SizeClusters())

	n, err := table.ChainLength(j.FirstCluster())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	found, _, _, err := table.FindEntry(root, JournalFileName, nil)
	require.NoError(t, err)
	assert.Equal(t, j.FirstCluster(), found.FirstCluster())
	assert.NotZero(t, found.Attr&AttrHidden)
	assert.NotZero(t, found.Attr&AttrSystem)
}

func TestCreateJournalFileRejectsZeroSize(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}
	_, err := CreateJournalFile(table, root, 0)
	assert.Error(t, err)
}

func TestOpenJournalFileFindsExistingChain(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}

	created, err := CreateJournalFile(table, root, 3)
	require.NoError(t, err)

	opened, err := OpenJournalFile(table, root)
	require.NoError(t, err)
	assert.Equal(t, created.FirstCluster(), opened.FirstCluster())
	assert.EqualValues(t, 3, opened.SizeClusters())
}

func TestOpenJournalFileFailsWhenAbsent(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}
	_, err := OpenJournalFile(table, root)
	assert.Error(t, err)
}

func TestJournalTransactionGuards(t *testing.T) {
	table, _ := newTestTable(FAT16, 1000, 1)
	root := DirCursor{IsFixedRoot: true}
	j, err := CreateJournalFile(table, root, 2)
	require.NoError(t, err)

	assert.False(t, j.IsTransactionOpen())
	require.NoError(t, j.BeginTransaction())
	assert.True(t, j.IsTransactionOpen())

	assert.Error(t, j.BeginTransaction(), "cannot begin a transaction twice")

	require.NoError(t, j.EndTransaction())
	assert.False(t, j.IsTransactionOpen())
	assert.Error(t, j.EndTransaction(), "cannot end a transaction that isn't open")
}
