package fat

import (
	"github.com/hashicorp/go-multierror"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/sectorbuffer"
)

// Free and end-of-chain markers, by FAT type. Any value >= the EOC
// threshold for the type marks the final cluster in a chain.
const (
	ClusterFree = 0

	EOC12Min = 0xFF8
	EOC16Min = 0xFFF8
	EOC32Min = 0x0FFFFFF8

	BadCluster12 = 0xFF7
	BadCluster16 = 0xFFF7
	BadCluster32 = 0x0FFFFFF7
)

// SectorDevice is the minimal block I/O surface the FAT layer needs from
// whatever physical medium backs it (a translation-layer volume sitting on
// norphy/nandphy, or a plain block device). Reads/writes are always
// exactly one sector.
type SectorDevice interface {
	ReadSector(index uint32, buf []byte) error
	WriteSector(index uint32, buf []byte) error
}

// Table holds the live allocation-table state for one mounted volume:
// geometry derived from the BPB, the sector buffer pool used for AT/data
// sector caching, and the free-cluster bookkeeping described in §4.4.
type Table struct {
	Dev    SectorDevice
	Pool   *sectorbuffer.Pool
	VolID  sectorbuffer.VolumeID

	Type Type
	BPB  *BPB

	FATStartSector  uint32
	FATSizeSectors  uint32
	NumFATs         uint8
	RootDirSector   uint32 // FAT12/16 only
	RootDirSectors  uint32 // FAT12/16 only
	DataStartSector uint32
	NumClusters     uint32

	LdBytesPerSector  uint
	LdSectorsPerClust uint

	MaintainFATCopy bool
	WriteCntAT      uint32

	FSInfo     *FSInfo
	freeCache  FreeClusterCache
	dirty      bool

	journal *Journal // set by CreateJournalFile/OpenJournalFile; nil until a journal is mounted
}

// FreeClusterCache remembers a contiguous run of known-free clusters so
// repeated small allocations avoid rescanning the AT from the start.
type FreeClusterCache struct {
	StartCluster     uint32
	NumClustersInUse uint32
	NumClustersTotal uint32
	Valid            bool
}

// clusterByteOffset returns the byte offset of cluster's entry within the
// allocation table. For FAT12 the entry straddles a sector boundary when
// this offset is the last byte of a sector; callers check that themselves.
func (t *Table) clusterByteOffset(cluster uint32) uint32 {
	switch t.Type {
	case FAT12:
		return cluster + cluster/2
	case FAT16:
		return cluster << 1
	default:
		return cluster << 2
	}
}

// validCluster reports whether cluster is addressable: §4.4 reserves
// clusters 0 and 1, so only [2, NumClusters+1] names a real data cluster.
func (t *Table) validCluster(cluster uint32) bool {
	return cluster >= 2 && cluster <= t.NumClusters+1
}

// ReadEntry returns the raw AT value for cluster, masked to the
// significant bits for the FAT type (FAT32 entries only use the low 28
// bits; the top 4 are reserved).
func (t *Table) ReadEntry(cluster uint32) (uint32, error) {
	if !t.validCluster(cluster) {
		return 0, emerrors.New(emerrors.InvalidPara)
	}

	off := t.clusterByteOffset(cluster)
	sectorIdx := t.FATStartSector + off/uint32(1<<t.LdBytesPerSector)
	byteOff := off % uint32(1<<t.LdBytesPerSector)

	if sectorIdx >= t.FATStartSector+t.FATSizeSectors {
		return 0, emerrors.New(emerrors.InvalidPara)
	}

	sector, err := t.readATSector(sectorIdx)
	if err != nil {
		return 0, err
	}

	switch t.Type {
	case FAT12:
		bytesPerSector := uint32(1) << t.LdBytesPerSector
		var lo, hi byte
		if byteOff+1 < bytesPerSector {
			lo, hi = sector[byteOff], sector[byteOff+1]
		} else {
			// Straddles into the next sector.
			lo = sector[byteOff]
			next, err := t.readATSector(sectorIdx + 1)
			if err != nil {
				return 0, err
			}
			hi = next[0]
		}
		val := uint32(lo) | uint32(hi)<<8
		if cluster&1 != 0 {
			val >>= 4
		} else {
			val &= 0x0FFF
		}
		return val, nil
	case FAT16:
		return uint32(sector[byteOff]) | uint32(sector[byteOff+1])<<8, nil
	default:
		v := uint32(sector[byteOff]) | uint32(sector[byteOff+1])<<8 |
			uint32(sector[byteOff+2])<<16 | uint32(sector[byteOff+3])<<24
		return v & 0x0FFFFFFF, nil
	}
}

// WriteEntry stores value into cluster's AT entry, updates NumFreeClusters
// bookkeeping (it reads the previous value itself via ReadEntry so the
// free-count delta can be computed), bumps WriteCntAT, marks the
// FSInfo sector dirty, and mirrors the write to the second FAT copy when
// MaintainFATCopy is enabled.
func (t *Table) WriteEntry(cluster, value uint32) error {
	if !t.validCluster(cluster) {
		return emerrors.New(emerrors.InvalidPara)
	}
	if cluster == value {
		return emerrors.New(emerrors.InvalidClusterChain)
	}

	oldValue, err := t.ReadEntry(cluster)
	if err != nil {
		return err
	}

	off := t.clusterByteOffset(cluster)
	bytesPerSector := uint32(1) << t.LdBytesPerSector
	sectorIdx := t.FATStartSector + off/bytesPerSector
	byteOff := off % bytesPerSector

	// Both FAT copies are attempted even if the first fails, so a caller
	// retrying WriteEntry doesn't leave the mirror permanently stale over a
	// transient failure on just one copy; the errors (if any) are combined
	// rather than masking one with the other.
	var writeErr *multierror.Error
	if err := t.writeEntryBytes(sectorIdx, byteOff, cluster, value); err != nil {
		writeErr = multierror.Append(writeErr, err)
	}
	if t.MaintainFATCopy && t.NumFATs == 2 {
		mirrorSector := sectorIdx + t.FATSizeSectors
		if err := t.writeEntryBytes(mirrorSector, byteOff, cluster, value); err != nil {
			writeErr = multierror.Append(writeErr, err)
		}
	}
	if writeErr != nil {
		return writeErr.ErrorOrNil()
	}

	if t.FSInfo != nil {
		wasFree := oldValue == ClusterFree
		isFree := value == ClusterFree
		if wasFree && !isFree {
			t.FSInfo.NumFreeClusters--
			t.FSInfo.NextFreeCluster = cluster + 1
		} else if !wasFree && isFree {
			t.FSInfo.NumFreeClusters++
			// A cluster freed inside an open journal transaction isn't folded
			// into NextFreeCluster until commit (§4.4): the transaction may
			// still roll back, and scanForFreeCluster must not hand the
			// cluster back out before that's settled.
			if t.journal != nil && t.journal.IsTransactionOpen() {
				t.journal.recordFreed(cluster)
			} else if cluster < t.FSInfo.NextFreeCluster {
				t.FSInfo.NextFreeCluster = cluster
			}
		}
		t.FSInfo.MarkDirty()
	}

	t.WriteCntAT++
	t.dirty = true
	return nil
}

func (t *Table) writeEntryBytes(sectorIdx, byteOff, cluster, value uint32) error {
	sector, err := t.readATSector(sectorIdx)
	if err != nil {
		return err
	}

	switch t.Type {
	case FAT12:
		bytesPerSector := uint32(1) << t.LdBytesPerSector
		var packed uint32
		if cluster&1 != 0 {
			packed = (value & 0x0FFF) << 4
		} else {
			packed = value & 0x0FFF
		}

		if byteOff+1 < bytesPerSector {
			if cluster&1 != 0 {
				sector[byteOff] = (sector[byteOff] & 0x0F) | byte(packed)
				sector[byteOff+1] = byte(packed >> 8)
			} else {
				sector[byteOff] = byte(packed)
				sector[byteOff+1] = (sector[byteOff+1] & 0xF0) | byte(packed>>8)
			}
			if err := t.writeATSector(sectorIdx, sector); err != nil {
				return err
			}
		} else {
			next, err := t.readATSector(sectorIdx + 1)
			if err != nil {
				return err
			}
			if cluster&1 != 0 {
				sector[byteOff] = (sector[byteOff] & 0x0F) | byte(packed)
				next[0] = byte(packed >> 8)
			} else {
				sector[byteOff] = byte(packed)
				next[0] = (next[0] & 0xF0) | byte(packed>>8)
			}
			if err := t.writeATSector(sectorIdx, sector); err != nil {
				return err
			}
			if err := t.writeATSector(sectorIdx+1, next); err != nil {
				return err
			}
		}
	case FAT16:
		sector[byteOff] = byte(value)
		sector[byteOff+1] = byte(value >> 8)
		if err := t.writeATSector(sectorIdx, sector); err != nil {
			return err
		}
	default:
		// Preserve the reserved top 4 bits of the existing entry.
		reserved := (uint32(sector[byteOff+3]) << 24) & 0xF0000000
		v := (value & 0x0FFFFFFF) | reserved
		sector[byteOff] = byte(v)
		sector[byteOff+1] = byte(v >> 8)
		sector[byteOff+2] = byte(v >> 16)
		sector[byteOff+3] = byte(v >> 24)
		if err := t.writeATSector(sectorIdx, sector); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) readATSector(sectorIdx uint32) ([]byte, error) {
	buf, hit, err := t.Pool.AllocEx(t.VolID, sectorIdx)
	if err != nil {
		return nil, err
	}
	if !hit {
		if err := t.Dev.ReadSector(sectorIdx, buf.Data); err != nil {
			t.Pool.Free(buf, t.VolID, sectorIdx, false)
			return nil, emerrors.ReadFailure.WrapError(err)
		}
	}
	t.Pool.Free(buf, t.VolID, sectorIdx, true)
	return buf.Data, nil
}

func (t *Table) writeATSector(sectorIdx uint32, data []byte) error {
	if err := t.Dev.WriteSector(sectorIdx, data); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	return nil
}

// IsEndOfChain reports whether value marks the end of a cluster chain for
// t's FAT type.
func (t *Table) IsEndOfChain(value uint32) bool {
	switch t.Type {
	case FAT12:
		return value >= EOC12Min
	case FAT16:
		return value >= EOC16Min
	default:
		return value >= EOC32Min
	}
}

// EndOfChainMarker returns the canonical EOC value to write when
// terminating a chain.
func (t *Table) EndOfChainMarker() uint32 {
	switch t.Type {
	case FAT12:
		return 0xFFF
	case FAT16:
		return 0xFFFF
	default:
		return 0x0FFFFFFF
	}
}

// AllocateCluster finds and claims one free cluster, preferring the
// cached contiguous run over a full AT rescan, and returns its id.
func (t *Table) AllocateCluster() (uint32, error) {
	if t.freeCache.Valid && t.freeCache.NumClustersInUse < t.freeCache.NumClustersTotal {
		candidate := t.freeCache.StartCluster + t.freeCache.NumClustersInUse
		val, err := t.ReadEntry(candidate)
		if err == nil && val == ClusterFree {
			if err := t.WriteEntry(candidate, t.EndOfChainMarker()); err != nil {
				return 0, err
			}
			t.freeCache.NumClustersInUse++
			return candidate, nil
		}
		t.freeCache.Valid = false
	}

	cluster, err := t.scanForFreeCluster()
	if err != nil {
		return 0, err
	}
	if err := t.WriteEntry(cluster, t.EndOfChainMarker()); err != nil {
		return 0, err
	}
	return cluster, nil
}

// scanForFreeCluster walks the AT looking for the first free entry,
// starting from FSInfo.NextFreeCluster (when it names a valid cluster) and
// wrapping back around to cluster 2 if nothing turns up before the end of
// the table.
func (t *Table) scanForFreeCluster() (uint32, error) {
	const firstDataCluster = 2
	end := t.NumClusters + firstDataCluster
	start := uint32(firstDataCluster)
	if t.FSInfo != nil && t.FSInfo.NextFreeCluster >= firstDataCluster && t.FSInfo.NextFreeCluster < end {
		start = t.FSInfo.NextFreeCluster
	}

	if c, found, err := t.scanFreeRange(start, end); err != nil {
		return 0, err
	} else if found {
		return c, nil
	}
	if start > firstDataCluster {
		if c, found, err := t.scanFreeRange(firstDataCluster, start); err != nil {
			return 0, err
		} else if found {
			return c, nil
		}
	}
	return 0, emerrors.New(emerrors.ClusterNotFree)
}

// scanFreeRange looks for the first free cluster in [from, to), and
// opportunistically (re)builds the contiguous-run cache starting there.
func (t *Table) scanFreeRange(from, to uint32) (uint32, bool, error) {
	for c := from; c < to; c++ {
		v, err := t.ReadEntry(c)
		if err != nil {
			return 0, false, err
		}
		if v == ClusterFree {
			run := uint32(1)
			for c+run < to {
				v2, err := t.ReadEntry(c + run)
				if err != nil {
					break
				}
				if v2 != ClusterFree {
					break
				}
				run++
			}
			t.freeCache = FreeClusterCache{
				StartCluster:     c,
				NumClustersInUse: 1,
				NumClustersTotal: run,
				Valid:            true,
			}
			return c, true, nil
		}
	}
	return 0, false, nil
}

// FreeChain walks the chain starting at startCluster and marks every
// cluster in it free. FAT12 volumes never coalesce adjacent writes (each
// entry may straddle a sector boundary, so batching gains nothing);
// FAT16/32 free entries one at a time here too since WriteEntry already
// amortizes sector fetches through the pool.
func (t *Table) FreeChain(startCluster uint32) error {
	cluster := startCluster
	for {
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return err
		}
		if err := t.WriteEntry(cluster, ClusterFree); err != nil {
			return err
		}
		if t.IsEndOfChain(next) || next == ClusterFree {
			break
		}
		cluster = next
	}
	t.freeCache.Valid = false
	return nil
}

func (t *Table) MarkDirty()   { t.dirty = true }
func (t *Table) IsDirty() bool { return t.dirty }
func (t *Table) ClearDirty()  { t.dirty = false }
