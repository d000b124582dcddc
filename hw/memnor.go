package hw

import (
	"fmt"
	"time"
)

// MemNOR is an in-memory NORHardware implementation for tests, modeled on
// the teacher's io.ReadWriteSeeker-backed block stream: a flat byte arena
// standing in for the flash array, with reset-to-0xFF erase semantics and a
// fixed manufacturer/device ID response.
type MemNOR struct {
	Data        []byte
	IDResponse  []byte
	mapped      bool
	SupportsMap bool
}

// NewMemNOR creates a MemNOR of the given size, pre-erased to 0xFF as real
// NOR flash reads after a bulk erase.
func NewMemNOR(size int, idResponse []byte) *MemNOR {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemNOR{Data: data, IDResponse: idResponse, SupportsMap: true}
}

func (m *MemNOR) Init() error  { return nil }
func (m *MemNOR) Reset() error { return nil }

func (m *MemNOR) SupportsMemoryMap() bool { return m.SupportsMap }

func (m *MemNOR) Map() error {
	m.mapped = true
	return nil
}

func (m *MemNOR) Unmap() error {
	m.mapped = false
	return nil
}

func (m *MemNOR) MapRead(offset int64, buf []byte) error {
	if !m.mapped {
		return fmt.Errorf("memnor: not mapped")
	}
	return m.rawRead(offset, buf)
}

func (m *MemNOR) rawRead(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > int64(len(m.Data)) {
		return fmt.Errorf("memnor: read [%d, %d) out of bounds (size %d)", offset, offset+int64(len(buf)), len(m.Data))
	}
	copy(buf, m.Data[offset:offset+int64(len(buf))])
	return nil
}

// ExecCommand implements a tiny fake protocol sufficient for tests:
// opcode 0x9F = read-id, opcode 0x03 = read at cmd.Addr, opcode 0x02 =
// program at cmd.Addr with writeData, opcode 0xD8 (64K) or 0x20 (4K) = erase
// sector [cmd.Addr, cmd.Addr+sectorSize) where sectorSize is passed via DummyBytes
// (reused as a length field for this fake device since NOR erase commands
// carry no explicit length on real hardware either).
func (m *MemNOR) ExecCommand(cmd Command, writeData []byte, readLen int) ([]byte, error) {
	switch cmd.Opcode {
	case 0x9F:
		out := make([]byte, readLen)
		copy(out, m.IDResponse)
		return out, nil
	case 0x03:
		offset := addrToOffset(cmd.Addr)
		out := make([]byte, readLen)
		if err := m.rawRead(offset, out); err != nil {
			return nil, err
		}
		return out, nil
	case 0x02:
		offset := addrToOffset(cmd.Addr)
		if offset+int64(len(writeData)) > int64(len(m.Data)) {
			return nil, fmt.Errorf("memnor: write out of bounds")
		}
		for i, b := range writeData {
			// NOR program can only clear bits, never set them, until erased.
			m.Data[offset+int64(i)] &= b
		}
		return nil, nil
	case 0xD8, 0x20:
		offset := addrToOffset(cmd.Addr)
		length := int64(cmd.DummyBytes)
		if offset+length > int64(len(m.Data)) {
			return nil, fmt.Errorf("memnor: erase out of bounds")
		}
		for i := offset; i < offset+length; i++ {
			m.Data[i] = 0xFF
		}
		return nil, nil
	case 0x06, 0x04: // write-enable / write-disable, no-ops for the fake
		return nil, nil
	case 0x05: // read status
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("memnor: unsupported opcode 0x%02X", cmd.Opcode)
	}
}

func addrToOffset(addr []byte) int64 {
	var v int64
	for _, b := range addr {
		v = (v << 8) | int64(b)
	}
	return v
}

func (m *MemNOR) Poll(budget time.Duration, statusFn func() (bool, error)) error {
	done, err := statusFn()
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("memnor: poll timed out after %s", budget)
	}
	return nil
}

func (m *MemNOR) Delay(d time.Duration) {}
