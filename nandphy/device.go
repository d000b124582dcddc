// Package nandphy implements the universal NAND physical layer: ONFI and
// vendor identification, bad-block marking semantics, spare-area
// relocation to keep user data under HW ECC coverage, plane-aware block
// remapping, die selection, HW ECC control/status, internal page copy, and
// the read-cache optimisation.
package nandphy

import (
	"github.com/boljen/go-bitmap"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/hw"
)

// BadBlockMarkingType encodes which pages in a block carry the factory
// bad-block marker and in which area.
type BadBlockMarkingType int

const (
	FPS   BadBlockMarkingType = iota // first-page-spare
	FSPS                             // first-or-second-page-spare
	FLPMS                            // first-or-last-page-main-spare
	FSLPS                            // first-or-second-or-last-page-spare
)

// EccCorrectionStatus is the result of a page read's HW ECC pass.
type EccCorrectionStatus int

const (
	EccNotApplied EccCorrectionStatus = iota
	EccApplied
	EccFailure
)

// EccResult is the distinguished struct §7 requires for ECC failures, so
// the upper NAND driver can decide whether to re-read or relocate.
type EccResult struct {
	CorrectionStatus  EccCorrectionStatus
	MaxNumBitsCorrected int
}

// Geometry holds the derived parameters stored per instance after
// identification.
type Geometry struct {
	BytesPerPage      uint32
	PagesPerBlock     uint32
	NumBlocks         uint32
	NumDies           uint32
	BytesPerSpareArea uint32
	NumBitsCorrectable int
	LdBytesPerECCBlock uint

	LdPagesPerBlock uint
	LdBlocksPerDie  uint
	LdNumDies       uint
	LdNumPlanes     uint

	BadBlockMarkingType BadBlockMarkingType

	VendorName string
}

// Device is a mounted NAND device instance.
type Device struct {
	HW       hw.NANDHardware
	Geometry Geometry
	Layout   SpareLayout

	HasHWECC     bool
	IsECCEnabled bool
	IsECCEnabledPerm bool

	currentDie int

	readCachePage int32 // -1 means nothing cached
	badBlocks     bitmap.Bitmap

	retiring bool // re-entry guard for retireFailedBlock
}

// Open runs the identification protocol: READ-ID against the vendor table,
// then the ONFI parameter page (and, if advertised, the extended page),
// falling back to vendor-specific id-based geometry when ONFI isn't
// supported.
func Open(h hw.NANDHardware, candidates []*VendorDescriptor) (*Device, error) {
	if err := h.Reset(); err != nil {
		return nil, emerrors.InitFailure.WrapError(err)
	}

	idBytes, err := h.ExecCommand(hw.Command{Opcode: 0x90, Addr: []byte{0x00}}, nil, 5)
	if err != nil {
		return nil, emerrors.InitFailure.WrapError(err)
	}

	var vendor *VendorDescriptor
	for _, c := range candidates {
		if c.Identify(idBytes) {
			vendor = c
			break
		}
	}
	if vendor == nil {
		return nil, emerrors.Newf(emerrors.InitFailure, "no matching NAND vendor for id bytes % X", idBytes)
	}

	dev := &Device{HW: h, readCachePage: -1}

	if vendor.SupportsONFI {
		geom, err := dev.identifyONFI()
		if err != nil {
			return nil, err
		}
		dev.Geometry = *geom
	} else {
		dev.Geometry = vendor.FallbackGeometry
	}
	dev.Geometry.VendorName = vendor.Name
	dev.Geometry.BadBlockMarkingType = vendor.BadBlockMarkingType
	dev.HasHWECC = vendor.HasHWECC

	numStripes := int(dev.Geometry.BytesPerSpareArea) / eccStripeSize
	dev.Layout = NewSpareLayout(vendor.SpareLayoutKey, numStripes)

	dev.badBlocks = bitmap.New(int(dev.Geometry.NumBlocks))

	if dev.HasHWECC {
		if err := dev.EnableECC(); err != nil {
			return nil, emerrors.InitFailure.WrapError(err)
		}
	}

	return dev, nil
}

// identifyONFI reads command 0xEC's up to-30 candidate pages and decodes
// the first one whose signature and CRC check out.
func (d *Device) identifyONFI() (*Geometry, error) {
	raw, err := d.HW.ExecCommand(hw.Command{Opcode: 0xEC}, nil, onfiParamPageSize*onfiMaxCopies)
	if err != nil {
		return nil, emerrors.ReadFailure.WrapError(err)
	}

	var copies [][]byte
	for i := 0; i < onfiMaxCopies; i++ {
		start := i * onfiParamPageSize
		end := start + onfiParamPageSize
		if end > len(raw) {
			break
		}
		copies = append(copies, raw[start:end])
	}

	page, err := ReadParamPage(copies)
	if err != nil {
		return nil, err
	}

	geom := &Geometry{
		BytesPerPage:      page.BytesPerPage,
		PagesPerBlock:     page.PagesPerBlock,
		NumBlocks:         page.BlocksPerLUN * uint32(page.NumLUNs),
		NumDies:           uint32(page.NumLUNs),
		BytesPerSpareArea: uint32(page.BytesPerSpare),
		NumBitsCorrectable: int(page.ECCCapability),
	}
	geom.LdPagesPerBlock = ldOf(geom.PagesPerBlock)
	geom.LdBlocksPerDie = ldOf(page.BlocksPerLUN)
	geom.LdNumDies = ldOf(geom.NumDies)

	if page.AdvertisesExtendedECCInfo() {
		extRaw, err := d.HW.ExecCommand(hw.Command{Opcode: 0xEC, Addr: []byte{0x01}}, nil, onfiParamPageSize)
		if err == nil {
			if eccData, ok := ParseExtendedSections(extRaw); ok && len(eccData) > 0 {
				geom.NumBitsCorrectable = int(eccData[0])
			}
		}
	}

	return geom, nil
}

func ldOf(v uint32) uint {
	if v == 0 {
		return 0
	}
	n := uint(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
