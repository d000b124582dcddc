// Package fat implements the FAT12/16/32 allocation table and directory
// layer: BPB parsing, cluster id <-> byte offset math, AT read/write with
// dirty-flag/free-count bookkeeping, free-cluster scanning with the
// contiguous free-cluster cache, cluster-chain walking with an adjacency
// cache, chain freeing (entry by entry, without sector coalescing),
// directory entry lifecycle,
// FSInfo sector synchronization, the dirty flag, and journal-file hooks.
package fat

import (
	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/internal/bitutil"
)

// Type is the detected FAT variant.
type Type int

const (
	FAT12 Type = iota
	FAT16
	FAT32
)

func (t Type) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// DetermineType classifies a volume by its cluster count using the
// standard thresholds.
func DetermineType(numClusters uint32) Type {
	switch {
	case numClusters < 4085:
		return FAT12
	case numClusters < 65525:
		return FAT16
	default:
		return FAT32
	}
}

// BPB holds the fields parsed directly out of sector 0, at the byte
// offsets given in the on-disk layout (§6).
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	RsvdSecCnt        uint16
	NumFATs           uint8
	RootEntCnt        uint16
	TotSec16          uint16
	FATSz16           uint16
	TotSec32          uint32
	// FAT32-only fields; zero for FAT12/16.
	FATSz32       uint32
	ExtFlags      uint16
	RootCluster   uint32
	FSInfoSector  uint16
	BackupBootSec uint16
}

// ParseBPB decodes sector 0 of a FAT volume. sector must be at least 512
// bytes. It validates the boot signature and the power-of-two constraints
// the format-error taxonomy (§7) requires before the caller commits to a
// FATType.
func ParseBPB(sector []byte) (*BPB, error) {
	if len(sector) < 512 {
		return nil, emerrors.Newf(emerrors.InvalidFSFormat, "boot sector too short: %d bytes", len(sector))
	}
	if bitutil.LoadU16LE(sector[510:512]) != 0xAA55 {
		return nil, emerrors.New(emerrors.InvalidFSFormat)
	}

	bpb := &BPB{
		BytesPerSector:    bitutil.LoadU16LE(sector[11:13]),
		SectorsPerCluster: sector[13],
		RsvdSecCnt:        bitutil.LoadU16LE(sector[14:16]),
		NumFATs:           sector[16],
		RootEntCnt:        bitutil.LoadU16LE(sector[17:19]),
		TotSec16:          bitutil.LoadU16LE(sector[19:21]),
		FATSz16:           bitutil.LoadU16LE(sector[22:24]),
		TotSec32:          bitutil.LoadU32LE(sector[32:36]),
	}

	if !isPowerOfTwo(uint32(bpb.BytesPerSector)) || bpb.BytesPerSector < 512 {
		return nil, emerrors.Newf(emerrors.InvalidFSFormat, "BytesPerSector %d is not a power of two >= 512", bpb.BytesPerSector)
	}
	if bpb.SectorsPerCluster == 0 || !isPowerOfTwo(uint32(bpb.SectorsPerCluster)) {
		return nil, emerrors.Newf(emerrors.InvalidFSFormat, "SectorsPerCluster %d is not a nonzero power of two", bpb.SectorsPerCluster)
	}

	if bpb.FATSz16 == 0 {
		// FAT32-only region.
		bpb.FATSz32 = bitutil.LoadU32LE(sector[36:40])
		bpb.ExtFlags = bitutil.LoadU16LE(sector[40:42])
		bpb.RootCluster = bitutil.LoadU32LE(sector[44:48])
		bpb.FSInfoSector = bitutil.LoadU16LE(sector[48:50])
		bpb.BackupBootSec = bitutil.LoadU16LE(sector[50:52])

		// Bit 7 set means mirroring is disabled for the FAT currently in
		// use, and bits 0-3 (masked by 0x0F) name which one; the core
		// requires both FATs kept in sync and rejects a volume that
		// disagrees.
		if bpb.ExtFlags&0x80 != 0 {
			return nil, emerrors.Newf(emerrors.InvalidFSFormat, "FAT32 volume disables FAT mirroring (ExtFlags=0x%04X)", bpb.ExtFlags)
		}
	}

	return bpb, nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// ldOf returns floor(log2(v)), used for ldBytesPerSector/ldBytesPerCluster
// caching.
func ldOf(v uint32) uint {
	n := uint(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
