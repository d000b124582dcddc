package norphy

import (
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// vendorRow is the CSV-loaded shape of one NOR vendor/family entry. It
// mirrors the teacher's disk-geometry CSV loader, retargeted from floppy
// form factors onto flash vendor id/parameter tuples.
type vendorRow struct {
	Name          string `csv:"name"`
	ManufacturerID string `csv:"manufacturer_id"` // hex, e.g. "EF"
	ReadCmd       string `csv:"read_cmd"`
	ProgramCmd    string `csv:"program_cmd"`
	WriteEnableCmd string `csv:"write_enable_cmd"`
	ReadStatusCmd string `csv:"read_status_cmd"`
	EraseCmd4K    string `csv:"erase_cmd_4k"`
	EraseCmd64K   string `csv:"erase_cmd_64k"`
	DummyCycles   uint   `csv:"dummy_cycles"`
	AddrBytes     uint   `csv:"addr_bytes"`
	SupportsMemMap uint  `csv:"supports_memmap"`
	DualDieCapable uint  `csv:"dual_die_capable"`
}

//go:embed vendors.csv
var vendorsRawCSV string

var vendorDescriptors []*Descriptor

func init() {
	reader := strings.NewReader(vendorsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row vendorRow) error {
		desc, err := row.toDescriptor()
		if err != nil {
			return err
		}
		vendorDescriptors = append(vendorDescriptors, desc)
		return nil
	})
	if err != nil && err != io.EOF {
		panic(fmt.Sprintf("norphy: malformed vendor table: %s", err))
	}
}

// DefaultDescriptors returns the built-in vendor descriptor list, suitable
// as the candidates argument to Open.
func DefaultDescriptors() []*Descriptor {
	out := make([]*Descriptor, len(vendorDescriptors))
	copy(out, vendorDescriptors)
	return out
}

func hexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex byte %q: %w", s, err)
	}
	return byte(v), nil
}

func (row vendorRow) toDescriptor() (*Descriptor, error) {
	mfgID, err := hexByte(row.ManufacturerID)
	if err != nil {
		return nil, err
	}
	readCmd, err := hexByte(row.ReadCmd)
	if err != nil {
		return nil, err
	}
	programCmd, err := hexByte(row.ProgramCmd)
	if err != nil {
		return nil, err
	}
	writeEnableCmd, err := hexByte(row.WriteEnableCmd)
	if err != nil {
		return nil, err
	}
	readStatusCmd, err := hexByte(row.ReadStatusCmd)
	if err != nil {
		return nil, err
	}
	erase4K, err := hexByte(row.EraseCmd4K)
	if err != nil {
		return nil, err
	}
	erase64K, err := hexByte(row.EraseCmd64K)
	if err != nil {
		return nil, err
	}

	name := row.Name

	return &Descriptor{
		Name: name,
		Identify: func(idBytes []byte) bool {
			return len(idBytes) > 0 && idBytes[0] == mfgID
		},
		ReadApplyParams: nil,
		ReadCmd:         readCmd,
		ProgramCmd:      programCmd,
		WriteEnableCmd:  writeEnableCmd,
		ReadStatusCmd:   readStatusCmd,
		EraseEnabledStatusBit: 0x01,
		DummyCyclesRead: int(row.DummyCycles),
		AddrBytes:       int(row.AddrBytes),
		ErasePoll:       PollParams{Budget: 3 * time.Second, CheckInterval: time.Millisecond},
		ProgramPoll:     PollParams{Budget: 5 * time.Millisecond, CheckInterval: time.Microsecond},
		Sectors: []SectorBlock{
			{NumSectors: 16, LdBytesPerSector: 12}, // 16 * 4K boot sectors
			{NumSectors: 127, LdBytesPerSector: 16}, // remaining 64K sectors
		},
		EraseCmdForSector: func(ldBytesPerSector uint8) byte {
			if ldBytesPerSector <= 12 {
				return erase4K
			}
			return erase64K
		},
		DualDieCapable:    row.DualDieCapable != 0,
		SupportsMemoryMap: row.SupportsMemMap != 0,
	}, nil
}
