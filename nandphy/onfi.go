package nandphy

import (
	"bytes"
	"encoding/binary"

	"github.com/go-restruct/restruct"

	emerrors "github.com/segger-go/emfile/errors"
)

const (
	onfiParamPageSize = 256
	onfiMaxCopies     = 30
	onfiSignature     = "ONFI"
)

// ParamPage is the ONFI parameter page layout (§6: signature at 0, features
// at 4, bytes-per-page at 80, bytes-per-spare at 84, pages-per-block at 92,
// blocks-per-LUN at 96, num-LUNs at 100, addressing at 101, ECC-capability
// at 112, CRC at 254), decoded declaratively via restruct the way
// dsoprea-go-exfat decodes its directory-entry structures.
type ParamPage struct {
	Signature     [4]byte `struct:"[4]byte"`
	_             [76]byte
	BytesPerPage     uint32 `struct:"uint32"`
	BytesPerSpare    uint16 `struct:"uint16"`
	_                [6]byte
	PagesPerBlock    uint32 `struct:"uint32"`
	BlocksPerLUN     uint32 `struct:"uint32"`
	NumLUNs          uint8  `struct:"uint8"`
	Addressing       uint8  `struct:"uint8"`
	_                [10]byte
	ECCCapability    uint8 `struct:"uint8"`
	_                [141]byte
	CRC              uint16 `struct:"uint16"`
}

// ExtendedSection is one section of the extended ONFI parameter page: a
// type/length header followed by type-specific payload. Section type 2 is
// ECC information, per §6.
type ExtendedSection struct {
	Type   uint8
	Length uint8
	Data   []byte
}

const extendedECCSectionType = 2

// ReadParamPage tries each of up to onfiMaxCopies 256-byte candidate pages
// in turn (as returned consecutively by a command-0xEC read), decoding the
// first whose "ONFI" signature and CRC-16 (poly 0x8005, init 0x4F4E, over
// bytes 0..253) both check out.
func ReadParamPage(copies [][]byte) (*ParamPage, error) {
	for i, raw := range copies {
		if i >= onfiMaxCopies {
			break
		}
		if len(raw) < onfiParamPageSize {
			continue
		}
		if !bytes.Equal(raw[0:4], []byte(onfiSignature)) {
			continue
		}

		computed := crc16BitByBit(raw[0:254], crc16Init, crc16Poly)
		declared := uint16(raw[254]) | uint16(raw[255])<<8
		if computed != declared {
			continue
		}

		var page ParamPage
		if err := restruct.Unpack(raw, binary.LittleEndian, &page); err != nil {
			return nil, emerrors.InitFailure.WrapError(err)
		}
		return &page, nil
	}
	return nil, emerrors.Newf(emerrors.InitFailure, "no valid ONFI parameter page found among %d copies", len(copies))
}

// AdvertisesExtendedECCInfo reports whether the ECC capability byte
// signals that the extended parameter page (read separately, following the
// main page) carries detailed ECC info in a type-2 section.
func (p *ParamPage) AdvertisesExtendedECCInfo() bool {
	return p.ECCCapability == 0xFF
}

// ParseExtendedSections walks a section-type-discriminated extended
// parameter page and returns the ECC section's payload, if present.
func ParseExtendedSections(raw []byte) ([]byte, bool) {
	pos := 0
	for pos+2 <= len(raw) {
		sectionType := raw[pos]
		length := int(raw[pos+1]) * 16 // section length is in 16-byte units
		dataStart := pos + 2
		dataEnd := dataStart + length
		if dataEnd > len(raw) {
			break
		}
		if sectionType == extendedECCSectionType {
			return raw[dataStart:dataEnd], true
		}
		pos = dataEnd
	}
	return nil, false
}
