package hw

import (
	"fmt"
	"time"
)

// MemNAND is an in-memory NANDHardware implementation for tests: one flat
// byte arena holding BytesPerPage+SpareBytes per page, an ID response, and
// a fixed set of ONFI parameter-page copies returned verbatim for command
// 0xEC, matching the way real silicon repeats the page several times.
type MemNAND struct {
	BytesPerPage int
	SpareBytes   int
	NumPages     int

	IDResponse  []byte
	ONFIPages   [][]byte // each exactly 256 bytes; returned concatenated
	pages       [][]byte

	currentDie int
	openPage   int
	openOffset int
	pendingOp  byte // last page/program/erase opcode for a two-phase command

	status byte
	features map[byte]byte
}

func NewMemNAND(bytesPerPage, spareBytes, numPages int, idResponse []byte, onfiPages [][]byte) *MemNAND {
	m := &MemNAND{
		BytesPerPage: bytesPerPage,
		SpareBytes:   spareBytes,
		NumPages:     numPages,
		IDResponse:   idResponse,
		ONFIPages:    onfiPages,
		features:     map[byte]byte{},
		status:       0x40, // ready
	}
	m.pages = make([][]byte, numPages)
	for i := range m.pages {
		buf := make([]byte, bytesPerPage+spareBytes)
		for j := range buf {
			buf[j] = 0xFF
		}
		m.pages[i] = buf
	}
	return m
}

func (m *MemNAND) Init() error  { return nil }
func (m *MemNAND) Reset() error { m.openPage = -1; return nil }

func (m *MemNAND) SelectDie(die int) error {
	m.currentDie = die
	return nil
}

func (m *MemNAND) ExecCommand(cmd Command, writeData []byte, readLen int) ([]byte, error) {
	switch cmd.Opcode {
	case 0x90:
		out := make([]byte, readLen)
		copy(out, m.IDResponse)
		return out, nil
	case 0xEC:
		var flat []byte
		for _, p := range m.ONFIPages {
			flat = append(flat, p...)
		}
		if readLen == 0 {
			return flat, nil
		}
		out := make([]byte, readLen)
		copy(out, flat)
		return out, nil
	case 0x00: // read-page-start
		m.openPage = int(pageFromAddr(cmd.Addr))
		m.openOffset = columnFromAddr(cmd.Addr)
		return nil, nil
	case 0x30: // read-page-confirm
		return nil, nil
	case 0x31: // random-data-output: read from the loaded page register
		pageIdx := int(pageFromAddr(cmd.Addr))
		col := columnFromAddr(cmd.Addr)
		page := m.pages[pageIdx]
		n := readLen
		if col+n > len(page) {
			n = len(page) - col
		}
		out := make([]byte, readLen)
		copy(out, page[col:col+n])
		return out, nil
	case 0x80: // program-page-start
		page := int(pageFromAddr(cmd.Addr))
		col := columnFromAddr(cmd.Addr)
		copy(m.pages[page][col:col+len(writeData)], writeData)
		return nil, nil
	case 0x10: // program-page-confirm
		return nil, nil
	case 0x85: // copy-back program-start
		page := int(pageFromAddr(cmd.Addr))
		if m.openPage >= 0 {
			copy(m.pages[page], m.pages[m.openPage])
		}
		return nil, nil
	case 0x60: // erase-block-start
		block := pageFromAddr(cmd.Addr)
		pagesPerBlock := 64
		start := int(block)
		for p := start; p < start+pagesPerBlock && p < len(m.pages); p++ {
			for i := range m.pages[p] {
				m.pages[p][i] = 0xFF
			}
		}
		return nil, nil
	case 0xD0: // erase-block-confirm
		return nil, nil
	case 0x70: // read status
		return []byte{m.status}, nil
	case 0xFF: // reset status
		m.status = 0x40
		return nil, nil
	case 0xEF: // set feature
		if len(cmd.Addr) > 0 && len(writeData) > 0 {
			m.features[cmd.Addr[0]] = writeData[0]
		}
		return nil, nil
	case 0xEE: // get feature
		if len(cmd.Addr) > 0 {
			return []byte{m.features[cmd.Addr[0]]}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("memnand: unsupported opcode 0x%02X", cmd.Opcode)
	}
}

// pageFromAddr extracts the page/block row address. 5-byte addresses
// (column+row, used by read/program commands) carry it in bytes 2-4;
// 3-byte addresses (row only, used by erase) carry it in bytes 0-2.
func pageFromAddr(addr []byte) uint32 {
	switch len(addr) {
	case 5:
		return uint32(addr[2]) | uint32(addr[3])<<8 | uint32(addr[4])<<16
	case 3:
		return uint32(addr[0]) | uint32(addr[1])<<8 | uint32(addr[2])<<16
	default:
		return 0
	}
}

func columnFromAddr(addr []byte) int {
	if len(addr) < 2 {
		return 0
	}
	return int(addr[0]) | int(addr[1])<<8
}

func (m *MemNAND) Poll(budget time.Duration, statusFn func() (bool, error)) error {
	done, err := statusFn()
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("memnand: poll timed out after %s", budget)
	}
	return nil
}

func (m *MemNAND) Delay(d time.Duration) {}
