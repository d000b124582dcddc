package fat

import (
	emerrors "github.com/segger-go/emfile/errors"
)

const direntSize = 32

// DirEntryApi lets a higher layer (e.g. a long-name extension) intercept
// how directory entries are matched and created, instead of hard-coding
// the 8.3 short-name path everywhere. The default implementation wired by
// Table.entryAPI handles short names only.
type DirEntryApi interface {
	Matches(raw []byte, name string) bool
	Encode(e *DirEntry, name string, raw []byte) error
}

type shortNameApi struct{}

func (shortNameApi) Matches(raw []byte, name string) bool {
	e := decodeDirEntry(raw)
	if e.IsLongNamePart() || e.IsVolumeLabel() {
		return false
	}
	return DecodeShortName(e.Name, e.Ext) == name
}

func (shortNameApi) Encode(e *DirEntry, name string, raw []byte) error {
	nameField, extField, err := EncodeShortName(name)
	if err != nil {
		return err
	}
	e.Name = nameField
	e.Ext = extField
	encodeDirEntry(e, raw)
	return nil
}

// DirCursor positions a walk over a directory's entries: IsFixedRoot
// addresses the fixed FAT12/16 root directory region (StartCluster is then
// ignored); otherwise the directory is the cluster chain at StartCluster.
type DirCursor struct {
	StartCluster uint32
	IsFixedRoot  bool
}

// forEachEntry invokes fn for every 32-byte slot in the directory,
// stopping early if fn returns stop=true or an error. sectorIdx/slotOff
// identify the raw entry's location for deletion/rewrite.
func (t *Table) forEachEntry(dir DirCursor, fn func(raw []byte, sectorIdx uint32, slotOff uint32) (stop bool, err error)) error {
	bytesPerSector := uint32(1) << t.LdBytesPerSector
	entriesPerSector := bytesPerSector / direntSize

	visitSector := func(sectorIdx uint32) (stop bool, err error) {
		sector, err := t.readDirSector(sectorIdx)
		if err != nil {
			return false, err
		}
		for slot := uint32(0); slot < entriesPerSector; slot++ {
			off := slot * direntSize
			raw := sector[off : off+direntSize]
			stop, err := fn(raw, sectorIdx, off)
			if err != nil || stop {
				return stop, err
			}
		}
		return false, nil
	}

	if dir.IsFixedRoot {
		for s := uint32(0); s < t.RootDirSectors; s++ {
			stop, err := visitSector(t.RootDirSector + s)
			if err != nil || stop {
				return err
			}
		}
		return nil
	}

	cluster := dir.StartCluster
	for {
		sectorsPerCluster := uint32(1) << t.LdSectorsPerClust
		base := t.ClusterToSector(cluster)
		for s := uint32(0); s < sectorsPerCluster; s++ {
			stop, err := visitSector(base + s)
			if err != nil || stop {
				return err
			}
		}
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return err
		}
		if t.IsEndOfChain(next) {
			return nil
		}
		cluster = next
	}
}

func (t *Table) readDirSector(sectorIdx uint32) ([]byte, error) {
	return t.readATSector(sectorIdx)
}

// FindEntry returns the decoded entry matching name in dir, along with
// its raw location, or an InvalidPara error when no entry matches.
func (t *Table) FindEntry(dir DirCursor, name string, api DirEntryApi) (DirEntry, uint32, uint32, error) {
	if api == nil {
		api = shortNameApi{}
	}
	var found DirEntry
	var foundSector, foundOff uint32
	hasMatch := false

	err := t.forEachEntry(dir, func(raw []byte, sectorIdx, slotOff uint32) (bool, error) {
		free, terminal := rawSlotState(raw)
		if terminal {
			return true, nil
		}
		if free {
			return false, nil
		}
		if api.Matches(raw, name) {
			found = decodeDirEntry(raw)
			foundSector, foundOff = sectorIdx, slotOff
			hasMatch = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return DirEntry{}, 0, 0, err
	}
	if !hasMatch {
		return DirEntry{}, 0, 0, emerrors.Newf(emerrors.InvalidPara, "no directory entry named %q", name)
	}
	return found, foundSector, foundOff, nil
}

// CreateEntry allocates a free slot in dir (extending the directory by
// one cluster first if every cluster's slots are taken — never done for
// the fixed-size FAT12/16 root, which returns OutOfMemory instead), and
// writes e under name.
func (t *Table) CreateEntry(dir DirCursor, name string, e DirEntry, api DirEntryApi) error {
	if api == nil {
		api = shortNameApi{}
	}

	placed := false
	err := t.forEachEntry(dir, func(raw []byte, sectorIdx, slotOff uint32) (bool, error) {
		free, _ := rawSlotState(raw)
		if !free {
			return false, nil
		}
		if err := api.Encode(&e, name, raw); err != nil {
			return true, err
		}
		if err := t.writeDirSector(sectorIdx, raw, slotOff); err != nil {
			return true, err
		}
		placed = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if placed {
		return nil
	}

	if dir.IsFixedRoot {
		return emerrors.New(emerrors.OutOfMemory)
	}

	_, newCluster, err := t.AppendCluster(dir.StartCluster)
	if err != nil {
		return err
	}
	if err := t.zeroCluster(newCluster); err != nil {
		return err
	}
	firstSector := t.ClusterToSector(newCluster)
	sector, err := t.readDirSector(firstSector)
	if err != nil {
		return err
	}
	if err := api.Encode(&e, name, sector[0:direntSize]); err != nil {
		return err
	}
	return t.writeDirSector(firstSector, sector[0:direntSize], 0)
}

// DeleteEntry marks the entry at (sectorIdx, slotOff) as deleted (0xE5)
// and frees its cluster chain, if any.
func (t *Table) DeleteEntry(sectorIdx, slotOff uint32, firstCluster uint32) error {
	sector, err := t.readDirSector(sectorIdx)
	if err != nil {
		return err
	}
	raw := sector[slotOff : slotOff+direntSize]
	raw[0] = direntFree
	if err := t.writeDirSector(sectorIdx, raw, slotOff); err != nil {
		return err
	}
	if firstCluster != ClusterFree {
		return t.FreeChain(firstCluster)
	}
	return nil
}

func (t *Table) writeDirSector(sectorIdx uint32, raw []byte, slotOff uint32) error {
	full, err := t.readDirSector(sectorIdx)
	if err != nil {
		return err
	}
	if &full[slotOff] != &raw[0] {
		copy(full[slotOff:slotOff+direntSize], raw)
	}
	return t.writeATSector(sectorIdx, full)
}

func (t *Table) zeroCluster(cluster uint32) error {
	sectorsPerCluster := uint32(1) << t.LdSectorsPerClust
	base := t.ClusterToSector(cluster)
	bytesPerSector := uint32(1) << t.LdBytesPerSector
	zero := make([]byte, bytesPerSector)
	for s := uint32(0); s < sectorsPerCluster; s++ {
		if err := t.writeATSector(base+s, zero); err != nil {
			return err
		}
	}
	return nil
}

// GrowRootDir pre-allocates n additional clusters to a FAT32 volume's root
// directory chain (the FAT12/16 fixed root cannot grow; callers must
// check Table.Type first).
func (t *Table) GrowRootDir(rootCluster uint32, n int) error {
	for i := 0; i < n; i++ {
		if _, _, err := t.AppendCluster(rootCluster); err != nil {
			return err
		}
	}
	return nil
}
