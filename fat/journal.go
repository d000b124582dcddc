package fat

import (
	emerrors "github.com/segger-go/emfile/errors"
)

// JournalFileName is the fixed name under which the transaction journal is
// stored in the volume's root directory.
const JournalFileName = "EMFJOUR.DAT"

// Journal tracks the cluster chain backing the journal file and whether a
// transaction is currently open. It does not implement write-ahead
// logging itself (that's layered on top by the volume); this just owns
// the on-disk file's lifecycle.
type Journal struct {
	table        *Table
	root         DirCursor
	firstCluster uint32
	sizeClusters uint32
	open         bool

	freeRangeMin  uint32
	freeRangeMax  uint32
	hasFreedRange bool
}

// CreateJournalFile allocates sizeClusters contiguous-as-possible
// clusters (best effort; AllocateCluster's cache makes a freshly formatted
// volume contiguous in practice) and records a directory entry for it, for
// volumes being formatted with journaling enabled.
func CreateJournalFile(t *Table, root DirCursor, sizeClusters uint32) (*Journal, error) {
	if sizeClusters == 0 {
		return nil, emerrors.New(emerrors.InvalidPara)
	}

	first, err := t.AllocateCluster()
	if err != nil {
		return nil, err
	}
	for i := uint32(1); i < sizeClusters; i++ {
		if _, _, err := t.AppendCluster(first); err != nil {
			return nil, err
		}
	}

	nameField, extField, err := EncodeShortName(JournalFileName)
	if err != nil {
		return nil, err
	}
	e := DirEntry{
		Name: nameField,
		Ext:  extField,
		Attr: AttrSystem | AttrHidden,
	}
	e.SetFirstCluster(first)
	e.FileSize = sizeClusters * (1 << (t.LdBytesPerSector + t.LdSectorsPerClust))

	if err := t.CreateEntry(root, JournalFileName, e, nil); err != nil {
		return nil, err
	}

	j := &Journal{table: t, root: root, firstCluster: first, sizeClusters: sizeClusters}
	t.journal = j
	return j, nil
}

// OpenJournalFile locates an existing journal file in root, for mounting a
// volume that was formatted with journaling enabled.
func OpenJournalFile(t *Table, root DirCursor) (*Journal, error) {
	e, _, _, err := t.FindEntry(root, JournalFileName, nil)
	if err != nil {
		return nil, emerrors.Newf(emerrors.NotSupported, "no journal file present: %v", err)
	}
	length, err := t.ChainLength(e.FirstCluster())
	if err != nil {
		return nil, err
	}
	j := &Journal{table: t, root: root, firstCluster: e.FirstCluster(), sizeClusters: length}
	t.journal = j
	return j, nil
}

func (j *Journal) FirstCluster() uint32   { return j.firstCluster }
func (j *Journal) SizeClusters() uint32   { return j.sizeClusters }
func (j *Journal) IsTransactionOpen() bool { return j.open }

// BeginTransaction and EndTransaction bracket a group of AT/directory
// writes that must be applied atomically from the perspective of a power
// loss; the actual before-image logging is the volume layer's
// responsibility, using the cluster range this file owns as scratch.
func (j *Journal) BeginTransaction() error {
	if j.open {
		return emerrors.New(emerrors.InvalidUsage)
	}
	j.open = true
	return nil
}

// recordFreed widens the transaction's freed-cluster range to include
// cluster, deferring NextFreeCluster maintenance until commit.
func (j *Journal) recordFreed(cluster uint32) {
	if !j.hasFreedRange || cluster < j.freeRangeMin {
		j.freeRangeMin = cluster
	}
	if !j.hasFreedRange || cluster > j.freeRangeMax {
		j.freeRangeMax = cluster
	}
	j.hasFreedRange = true
}

// FreedRange reports the [min, max] cluster range freed so far in the
// current transaction. ok is false when nothing has been freed since the
// last commit; EndTransaction clears it.
func (j *Journal) FreedRange() (min, max uint32, ok bool) {
	return j.freeRangeMin, j.freeRangeMax, j.hasFreedRange
}

func (j *Journal) EndTransaction() error {
	if !j.open {
		return emerrors.New(emerrors.InvalidUsage)
	}
	if j.hasFreedRange && j.table.FSInfo != nil && j.freeRangeMin < j.table.FSInfo.NextFreeCluster {
		j.table.FSInfo.NextFreeCluster = j.freeRangeMin
		j.table.FSInfo.MarkDirty()
	}
	j.hasFreedRange = false
	j.open = false
	return nil
}
