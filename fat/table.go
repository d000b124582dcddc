package fat

import (
	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/sectorbuffer"
)

// NewTableFromBPB derives a ready-to-use Table from a parsed BPB: sector
// geometry, FAT region bounds, data-area start, and (for FAT12/16) the
// fixed root directory's sector range. The caller supplies the sector
// device and pool; this does no I/O beyond what ParseBPB/ParseFSInfo
// already did.
func NewTableFromBPB(bpb *BPB, dev SectorDevice, pool *sectorbuffer.Pool) (*Table, error) {
	bytesPerSector := uint32(bpb.BytesPerSector)
	fatSizeSectors := uint32(bpb.FATSz16)
	if fatSizeSectors == 0 {
		fatSizeSectors = bpb.FATSz32
	}
	if fatSizeSectors == 0 {
		return nil, emerrors.New(emerrors.InvalidFSFormat)
	}

	fatStart := uint32(bpb.RsvdSecCnt)
	rootDirSectors := uint32(0)
	if bpb.RootEntCnt != 0 {
		rootDirSectors = (uint32(bpb.RootEntCnt)*direntSize + bytesPerSector - 1) / bytesPerSector
	}
	rootDirSector := fatStart + fatSizeSectors*uint32(bpb.NumFATs)
	dataStart := rootDirSector + rootDirSectors

	totalSectors := uint32(bpb.TotSec16)
	if totalSectors == 0 {
		totalSectors = bpb.TotSec32
	}
	dataSectors := totalSectors - dataStart
	numClusters := dataSectors / uint32(bpb.SectorsPerCluster)

	// A zero FATSz16 is itself the FAT32 marker (the 16-bit field can't
	// hold a real FAT32-sized table); DetermineType's cluster-count
	// thresholds only disambiguate FAT12 from FAT16.
	fsType := FAT32
	if bpb.FATSz16 != 0 {
		fsType = DetermineType(numClusters)
		if fsType == FAT32 {
			fsType = FAT16
		}
	}

	t := &Table{
		Dev:               dev,
		Pool:              pool,
		Type:              fsType,
		BPB:               bpb,
		FATStartSector:    fatStart,
		FATSizeSectors:    fatSizeSectors,
		NumFATs:           bpb.NumFATs,
		RootDirSector:     rootDirSector,
		RootDirSectors:    rootDirSectors,
		DataStartSector:   dataStart,
		NumClusters:       numClusters,
		LdBytesPerSector:  ldOf(bytesPerSector),
		LdSectorsPerClust: ldOf(uint32(bpb.SectorsPerCluster)),
		MaintainFATCopy:   bpb.NumFATs == 2,
		FSInfo:            &FSInfo{NumFreeClusters: 0xFFFFFFFF, NextFreeCluster: 0xFFFFFFFF},
	}
	return t, nil
}

// Root returns the directory cursor for the volume's root directory: the
// fixed region for FAT12/16, or the RootCluster chain for FAT32.
func (t *Table) Root() DirCursor {
	if t.Type == FAT32 {
		return DirCursor{StartCluster: t.BPB.RootCluster}
	}
	return DirCursor{IsFixedRoot: true}
}
