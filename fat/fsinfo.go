package fat

import (
	"github.com/segger-go/emfile/internal/bitutil"
)

const (
	fsInfoLeadSig    = 0x41615252
	fsInfoStrucSig   = 0x61417272
	fsInfoTrailSig   = 0xAA550000
	fsInfoFreeCountOff = 488
	fsInfoNextFreeOff  = 492
)

// FSInfo mirrors the FAT32 FSInfo sector. For FAT12/16 it's unused; the
// volume keeps an in-memory NumFreeClusters only.
type FSInfo struct {
	NumFreeClusters uint32 // 0xFFFFFFFF means "unknown, must scan"
	NextFreeCluster uint32
	dirty           bool
}

// ParseFSInfo decodes an FSInfo sector. A missing or corrupt signature is
// not a format error on its own (the driver can fall back to scanning);
// the caller decides whether to trust it.
func ParseFSInfo(sector []byte) (*FSInfo, bool) {
	if len(sector) < 512 {
		return &FSInfo{NumFreeClusters: 0xFFFFFFFF, NextFreeCluster: 0xFFFFFFFF}, false
	}
	lead := bitutil.LoadU32LE(sector[0:4])
	struc := bitutil.LoadU32LE(sector[484:488])
	trail := bitutil.LoadU32LE(sector[508:512])
	if lead != fsInfoLeadSig || struc != fsInfoStrucSig || trail != fsInfoTrailSig {
		return &FSInfo{NumFreeClusters: 0xFFFFFFFF, NextFreeCluster: 0xFFFFFFFF}, false
	}
	return &FSInfo{
		NumFreeClusters: bitutil.LoadU32LE(sector[fsInfoFreeCountOff : fsInfoFreeCountOff+4]),
		NextFreeCluster: bitutil.LoadU32LE(sector[fsInfoNextFreeOff : fsInfoNextFreeOff+4]),
	}, true
}

// Encode writes fi back into sector (the first 512 bytes are overwritten).
func (fi *FSInfo) Encode(sector []byte) {
	for i := range sector[:512] {
		sector[i] = 0
	}
	bitutil.StoreU32LE(sector[0:4], fsInfoLeadSig)
	bitutil.StoreU32LE(sector[484:488], fsInfoStrucSig)
	bitutil.StoreU32LE(sector[fsInfoFreeCountOff:fsInfoFreeCountOff+4], fi.NumFreeClusters)
	bitutil.StoreU32LE(sector[fsInfoNextFreeOff:fsInfoNextFreeOff+4], fi.NextFreeCluster)
	bitutil.StoreU32LE(sector[508:512], fsInfoTrailSig)
}

func (fi *FSInfo) MarkDirty() { fi.dirty = true }
func (fi *FSInfo) IsDirty() bool { return fi.dirty }
func (fi *FSInfo) ClearDirty() { fi.dirty = false }

// Unknown reports whether NumFreeClusters/NextFreeCluster carry the
// sentinel "must scan" value.
func (fi *FSInfo) Unknown() bool {
	return fi.NumFreeClusters == 0xFFFFFFFF
}
