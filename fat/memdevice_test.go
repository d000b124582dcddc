package fat

import (
	"github.com/segger-go/emfile/sectorbuffer"
)

// memSectorDevice is a flat in-memory SectorDevice used only by this
// package's own tests.
type memSectorDevice struct {
	bytesPerSector uint32
	sectors        [][]byte
}

func newMemSectorDevice(numSectors int, bytesPerSector uint32) *memSectorDevice {
	d := &memSectorDevice{bytesPerSector: bytesPerSector, sectors: make([][]byte, numSectors)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, bytesPerSector)
	}
	return d
}

func (d *memSectorDevice) ReadSector(index uint32, buf []byte) error {
	copy(buf, d.sectors[index])
	return nil
}

func (d *memSectorDevice) WriteSector(index uint32, buf []byte) error {
	copy(d.sectors[index], buf)
	return nil
}

// newTestTable builds a minimal Table over a fresh memSectorDevice, with
// the AT region immediately following one reserved boot sector and a data
// region immediately following a small fixed root directory.
func newTestTable(fatType Type, numClusters uint32, sectorsPerCluster uint) (*Table, *memSectorDevice) {
	const bytesPerSector = 512
	const ldBytesPerSector = 9 // log2(512)

	fatSizeSectors := uint32(8)
	rootDirSectors := uint32(4)
	fatStart := uint32(1)
	dataStart := fatStart + fatSizeSectors*2 + rootDirSectors

	totalSectors := dataStart + numClusters<<sectorsPerCluster + 16
	dev := newMemSectorDevice(int(totalSectors), bytesPerSector)

	pool := sectorbuffer.New(32, bytesPerSector)

	t := &Table{
		Dev:               dev,
		Pool:              pool,
		VolID:             1,
		Type:              fatType,
		FATStartSector:    fatStart,
		FATSizeSectors:    fatSizeSectors,
		NumFATs:           2,
		RootDirSector:     fatStart + fatSizeSectors*2,
		RootDirSectors:    rootDirSectors,
		DataStartSector:   dataStart,
		NumClusters:       numClusters,
		LdBytesPerSector:  ldBytesPerSector,
		LdSectorsPerClust: sectorsPerCluster,
		MaintainFATCopy:   true,
		FSInfo:            &FSInfo{NumFreeClusters: numClusters, NextFreeCluster: 2},
	}
	return t, dev
}
