package fat

import (
	"strings"
	"time"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/internal/bitutil"
)

// Directory entry attribute bits (byte 11).
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDirectory = 0x10
	AttrArchive  = 0x20
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID

	direntFree     = 0xE5
	direntFreeRest = 0x00
)

// DirEntry is the decoded form of one 32-byte raw directory entry.
type DirEntry struct {
	Name        [8]byte
	Ext         [3]byte
	Attr        uint8
	FirstClusterHi uint16
	FirstClusterLo uint16
	FileSize    uint32
	WriteTime   uint16
	WriteDate   uint16
	CreateTime  uint16
	CreateDate  uint16
	CreateTimeTenth uint8
	LastAccessDate  uint16
}

// FirstCluster returns the entry's full first-cluster id (the high 16
// bits are always zero on FAT12/16 volumes, where the field is reserved).
func (e *DirEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusterHi)<<16 | uint32(e.FirstClusterLo)
}

func (e *DirEntry) SetFirstCluster(c uint32) {
	e.FirstClusterHi = uint16(c >> 16)
	e.FirstClusterLo = uint16(c)
}

func (e *DirEntry) IsDirectory() bool { return e.Attr&AttrDirectory != 0 }
func (e *DirEntry) IsVolumeLabel() bool { return e.Attr&AttrVolumeID != 0 }
func (e *DirEntry) IsLongNamePart() bool { return e.Attr&AttrLongName == AttrLongName }

// decodeDirEntry parses one 32-byte raw slot.
func decodeDirEntry(raw []byte) DirEntry {
	var e DirEntry
	copy(e.Name[:], raw[0:8])
	copy(e.Ext[:], raw[8:11])
	e.Attr = raw[11]
	e.CreateTimeTenth = raw[13]
	e.CreateTime = bitutil.LoadU16LE(raw[14:16])
	e.CreateDate = bitutil.LoadU16LE(raw[16:18])
	e.LastAccessDate = bitutil.LoadU16LE(raw[18:20])
	e.FirstClusterHi = bitutil.LoadU16LE(raw[20:22])
	e.WriteTime = bitutil.LoadU16LE(raw[22:24])
	e.WriteDate = bitutil.LoadU16LE(raw[24:26])
	e.FirstClusterLo = bitutil.LoadU16LE(raw[26:28])
	e.FileSize = bitutil.LoadU32LE(raw[28:32])
	return e
}

// encodeDirEntry serializes e into the 32-byte raw slot.
func encodeDirEntry(e *DirEntry, raw []byte) {
	copy(raw[0:8], e.Name[:])
	copy(raw[8:11], e.Ext[:])
	raw[11] = e.Attr
	raw[12] = 0
	raw[13] = e.CreateTimeTenth
	bitutil.StoreU16LE(raw[14:16], e.CreateTime)
	bitutil.StoreU16LE(raw[16:18], e.CreateDate)
	bitutil.StoreU16LE(raw[18:20], e.LastAccessDate)
	bitutil.StoreU16LE(raw[20:22], e.FirstClusterHi)
	bitutil.StoreU16LE(raw[22:24], e.WriteTime)
	bitutil.StoreU16LE(raw[24:26], e.WriteDate)
	bitutil.StoreU16LE(raw[26:28], e.FirstClusterLo)
	bitutil.StoreU32LE(raw[28:32], e.FileSize)
}

// rawSlotState reports whether the raw 32-byte slot is unused (free) and
// whether it ends the directory (terminal): 0x00 means free and marks the
// end of the directory's valid entries, 0xE5 means deleted but more
// entries may follow.
func rawSlotState(raw []byte) (free bool, terminal bool) {
	switch raw[0] {
	case direntFreeRest:
		return true, true
	case direntFree:
		return true, false
	default:
		return false, false
	}
}

// EncodeShortName packs an 8.3 name ("README.TXT") into the fixed 8+3
// space-padded fields, upper-cased, rejecting characters the format
// forbids.
func EncodeShortName(name string) ([8]byte, [3]byte, error) {
	var nameField [8]byte
	var extField [3]byte
	for i := range nameField {
		nameField[i] = ' '
	}
	for i := range extField {
		extField[i] = ' '
	}

	base := name
	ext := ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base = name[:idx]
		ext = name[idx+1:]
	}
	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)

	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return nameField, extField, emerrors.Newf(emerrors.InvalidPara, "name %q does not fit 8.3", name)
	}
	for _, r := range base + ext {
		if !isValidShortNameChar(r) {
			return nameField, extField, emerrors.Newf(emerrors.InvalidPara, "invalid character %q in short name", r)
		}
	}

	copy(nameField[:], base)
	copy(extField[:], ext)
	// A leading 0xE5 byte collides with the deleted-entry marker; the
	// format reassigns it to 0x05 in that one position.
	if nameField[0] == direntFree {
		nameField[0] = 0x05
	}
	return nameField, extField, nil
}

func isValidShortNameChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("$%'-_@~`!(){}^#&", r):
		return true
	default:
		return false
	}
}

// DecodeShortName renders the fixed-width name/ext fields back into
// "NAME.EXT" form (no extension dot if Ext is all spaces), translating a
// stored 0x05 back to the literal 0xE5 byte it stands in for.
func DecodeShortName(nameField [8]byte, extField [3]byte) string {
	name := nameField
	if name[0] == 0x05 {
		name[0] = direntFree
	}
	base := strings.TrimRight(string(name[:]), " ")
	ext := strings.TrimRight(string(extField[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// FATDate/FATTime encode a time.Time into the packed date/time fields
// used by CreateDate/WriteDate and CreateTime/WriteTime. Dates before
// 1980 or after 2107 saturate to the format's representable range.
func FATDate(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	if year > 127 {
		year = 127
	}
	return uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

func FATTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// DecodeFATDateTime converts packed date/time fields back to a time.Time
// in UTC (the format carries no timezone).
func DecodeFATDateTime(date, timeField uint16) time.Time {
	year := 1980 + int(date>>9)
	month := int((date >> 5) & 0x0F)
	day := int(date & 0x1F)
	hour := int(timeField >> 11)
	minute := int((timeField >> 5) & 0x3F)
	second := int(timeField&0x1F) * 2
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}
