// Package norphy implements the serial/quad NOR physical layer: device
// identification, sector-topology mapping over a heterogeneous erase map,
// command-mode and memory-mapped access, bus-width selection, dual-die
// addressing, and the read/write/erase primitives built on top of the hw
// package's HW contract.
package norphy

import (
	"time"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/hw"
)

// BytesPerPage is FS_NOR_BYTES_PER_PAGE: writes are split at 256-byte page
// boundaries so that a single program-page command never spans one.
const BytesPerPage = 256

// SectorBlock describes a run of NumSectors identically-sized sectors, each
// 1<<LdBytesPerSector bytes, the way a NOR device's own sector map reports
// itself (a small boot block of 4K sectors followed by a much larger run of
// 64K sectors is typical).
type SectorBlock struct {
	NumSectors      uint32
	LdBytesPerSector uint8
}

// PollParams bounds how long the layer waits for a status bit to flip
// before declaring a hard timeout error.
type PollParams struct {
	Budget        time.Duration
	CheckInterval time.Duration
}

// Descriptor is a per-device-family descriptor: the vendor table entry that
// claims ownership of an identified part and supplies its command set.
type Descriptor struct {
	Name string

	// Identify reports whether idBytes (the READ-ID response) belongs to
	// this family.
	Identify func(idBytes []byte) bool

	// ReadApplyParams populates topology/command fields on dev once this
	// descriptor has claimed the device (analogous to the original
	// firmware's read_apply_para routine, which may issue further
	// commands, e.g. SFDP reads, to fill in detail the ID bytes alone
	// don't carry).
	ReadApplyParams func(dev *Device) error

	ReadCmd       byte
	ProgramCmd    byte
	WriteEnableCmd byte
	ReadStatusCmd byte
	EraseEnabledStatusBit byte

	DummyCyclesRead int
	AddrBytes       int

	ErasePoll  PollParams
	ProgramPoll PollParams

	// Sectors is the default sector topology if ReadApplyParams doesn't
	// override it (e.g. fixed-geometry parts with no SFDP).
	Sectors []SectorBlock

	// EraseCmdForSector returns the erase opcode for a sector of the given
	// size class (some families use different opcodes for boot-block vs
	// main-array sectors).
	EraseCmdForSector func(ldBytesPerSector uint8) byte

	DualDieCapable bool
	SupportsMemoryMap bool
}

// Policy captures the Allow2bitMode/Allow4bitMode/AllowOctalMode/
// AllowDTRMode runtime knobs from the configuration section.
type Policy struct {
	Allow2bitMode bool
	Allow4bitMode bool
	AllowOctalMode bool
	AllowDTRMode   bool
}

// Device is a mounted NOR device instance.
type Device struct {
	HW     hw.NORHardware
	Policy Policy

	Descriptor *Descriptor

	BaseAddr       int64
	UsedStart      int64
	UsedLength     int64

	// sectors is the renumbered-from-0 sub-list covering exactly the
	// configured (BaseAddr, StartAddrConf, NumBytes) range.
	sectors []sectorInfo

	DualDie bool

	mapped bool
}

type sectorInfo struct {
	offset           int64
	ldBytesPerSector uint8
}

// Open identifies the device (reset, read-id, match against candidates by
// id bytes, then the matched descriptor's ReadApplyParams hook if it has
// one) and maps its sector topology onto the configured (baseAddr,
// startAddrConf, numBytes) window. No SFDP tables are read here, and no
// built-in descriptor sets ReadApplyParams.
func Open(h hw.NORHardware, candidates []*Descriptor, baseAddr, startAddrConf, numBytes int64, policy Policy) (*Device, error) {
	if err := h.Reset(); err != nil {
		return nil, emerrors.ReadFailure.WrapError(err)
	}
	h.Delay(1 * time.Millisecond)

	idBytes, err := h.ExecCommand(hw.Command{Opcode: 0x9F, Width: hw.BusWidth111}, nil, 4)
	if err != nil {
		return nil, emerrors.InitFailure.WrapError(err)
	}

	var desc *Descriptor
	for _, c := range candidates {
		if c.Identify(idBytes) {
			desc = c
			break
		}
	}
	if desc == nil {
		return nil, emerrors.Newf(emerrors.InitFailure, "no matching NOR device descriptor for id bytes % X", idBytes)
	}

	dev := &Device{
		HW:         h,
		Policy:     policy,
		Descriptor: desc,
		BaseAddr:   baseAddr,
	}
	dev.sectors = append(dev.sectors, sectorInfoFrom(desc.Sectors)...)

	if desc.ReadApplyParams != nil {
		if err := desc.ReadApplyParams(dev); err != nil {
			return nil, emerrors.InitFailure.WrapError(err)
		}
	}

	if err := dev.mapWindow(startAddrConf, numBytes); err != nil {
		return nil, err
	}

	return dev, nil
}

func sectorInfoFrom(blocks []SectorBlock) []sectorInfo {
	var out []sectorInfo
	var offset int64
	for _, blk := range blocks {
		sz := int64(1) << blk.LdBytesPerSector
		for i := uint32(0); i < blk.NumSectors; i++ {
			out = append(out, sectorInfo{offset: offset, ldBytesPerSector: blk.LdBytesPerSector})
			offset += sz
		}
	}
	return out
}

// mapWindow walks the full sector list, skips leading bytes outside
// [startAddrConf, startAddrConf+numBytes), truncates once the window is
// exhausted, and renumbers the remaining sub-list from 0. If startAddrConf
// falls mid-sector, the used start moves forward to the next sector
// boundary.
func (d *Device) mapWindow(startAddrConf, numBytes int64) error {
	var used []sectorInfo
	var usedStart int64 = -1

	for _, s := range d.sectors {
		if s.offset < startAddrConf {
			continue // starts before the window, including a sector startAddrConf falls inside
		}
		if usedStart < 0 {
			// First sector starting inside the window: a mid-sector
			// startAddrConf moves the used start forward to this boundary.
			usedStart = s.offset
		}
		if s.offset >= startAddrConf+numBytes {
			break // past the end of the window
		}
		used = append(used, s)
	}

	if usedStart < 0 {
		return emerrors.Newf(emerrors.InvalidPara, "configured NOR window starts past the end of the device")
	}

	d.UsedStart = usedStart
	d.UsedLength = startAddrConf + numBytes - usedStart
	d.sectors = used
	return nil
}

// NumSectors returns the number of sectors in the mapped window.
func (d *Device) NumSectors() int {
	return len(d.sectors)
}

// SectorInfo returns the (offset, size) of sector index within the mapped
// window, offset relative to UsedStart.
func (d *Device) SectorInfo(index int) (offset int64, size int64, err error) {
	if index < 0 || index >= len(d.sectors) {
		return 0, 0, emerrors.Newf(emerrors.InvalidPara, "sector index %d out of range [0, %d)", index, len(d.sectors))
	}
	s := d.sectors[index]
	return s.offset - d.UsedStart, int64(1) << s.ldBytesPerSector, nil
}
