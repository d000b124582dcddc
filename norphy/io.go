package norphy

import (
	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/hw"
)

// Read returns length bytes starting at offset (relative to the mapped
// window). It prefers memory-mapped access when the device and hardware
// layer both support it.
func (d *Device) Read(offset int64, length int) ([]byte, error) {
	if d.Descriptor.SupportsMemoryMap && d.HW.SupportsMemoryMap() {
		buf := make([]byte, length)
		if err := d.ensureMapped(); err != nil {
			return nil, err
		}
		if err := d.HW.MapRead(d.UsedStart+offset, buf); err != nil {
			return nil, emerrors.ReadFailure.WrapError(err)
		}
		return buf, nil
	}

	if err := d.ensureUnmapped(); err != nil {
		return nil, err
	}

	if d.DualDie && isOddLength(offset, length) {
		return d.dualDieRead(offset, length)
	}

	addr := d.encodeAddr(d.UsedStart + offset)
	out, err := d.HW.ExecCommand(hw.Command{
		Opcode:     d.Descriptor.ReadCmd,
		Addr:       addr,
		DummyBytes: d.Descriptor.DummyCyclesRead,
		Width:      d.selectBusWidth(hw.BusWidth111),
	}, nil, length)
	if err != nil {
		return nil, emerrors.ReadFailure.WrapError(err)
	}
	return out, nil
}

// dualDieRead handles an odd-aligned/odd-length read in dual-die mode: the
// padding byte the write side added on the unmodified die is discarded.
func (d *Device) dualDieRead(offset int64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	pos := offset
	remaining := length
	for remaining > 0 {
		chunk := 1
		if remaining >= 2 {
			chunk = 2
		}
		addr := d.encodeAddr(d.UsedStart + pos)
		raw, err := d.HW.ExecCommand(hw.Command{
			Opcode:     d.Descriptor.ReadCmd,
			Addr:       addr,
			DummyBytes: d.Descriptor.DummyCyclesRead,
			Width:      d.selectBusWidth(hw.BusWidth111),
		}, nil, chunk)
		if err != nil {
			return nil, emerrors.ReadFailure.WrapError(err)
		}
		if chunk == 1 {
			out = append(out, raw[0])
		} else {
			out = append(out, raw...)
		}
		pos += int64(chunk)
		remaining -= chunk
	}
	if len(out) > length {
		out = out[:length]
	}
	return out, nil
}

func isOddLength(offset int64, length int) bool {
	return offset%2 != 0 || length%2 != 0
}

// Write programs data starting at offset, splitting at 256-byte page
// boundaries and polling for completion after every sub-write.
func (d *Device) Write(offset int64, data []byte) error {
	if err := d.ensureUnmapped(); err != nil {
		return err
	}

	if d.DualDie {
		return d.dualDieWrite(offset, data)
	}

	pos := offset
	remaining := data
	for len(remaining) > 0 {
		pageOffsetInPage := int(pos % BytesPerPage)
		chunkLen := BytesPerPage - pageOffsetInPage
		if chunkLen > len(remaining) {
			chunkLen = len(remaining)
		}
		if err := d.writeChunk(pos, remaining[:chunkLen]); err != nil {
			return err
		}
		pos += int64(chunkLen)
		remaining = remaining[chunkLen:]
	}
	return nil
}

// dualDieWrite splits data so that every underlying per-die access is
// aligned, padding unaligned edge bytes with 0xFF on the die that isn't
// being modified so the other die's data survives.
func (d *Device) dualDieWrite(offset int64, data []byte) error {
	pos := offset
	remaining := data

	if pos%2 != 0 {
		pair := []byte{0xFF, remaining[0]}
		if err := d.writeChunk(pos-1, pair); err != nil {
			return err
		}
		pos++
		remaining = remaining[1:]
	}

	for len(remaining) >= 2 {
		n := len(remaining) - (len(remaining) % 2)
		if room := BytesPerPage - int(pos%BytesPerPage); n > room {
			n = room // pos is even here, so room is too
		}
		if n == 0 {
			break
		}
		if err := d.writeChunk(pos, remaining[:n]); err != nil {
			return err
		}
		pos += int64(n)
		remaining = remaining[n:]
	}

	if len(remaining) == 1 {
		pair := []byte{remaining[0], 0xFF}
		if err := d.writeChunk(pos, pair); err != nil {
			return err
		}
	}

	return nil
}

func (d *Device) writeChunk(offset int64, data []byte) error {
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: d.Descriptor.WriteEnableCmd}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	addr := d.encodeAddr(d.UsedStart + offset)
	if _, err := d.HW.ExecCommand(hw.Command{
		Opcode: d.Descriptor.ProgramCmd,
		Addr:   addr,
		Width:  d.selectBusWidth(hw.BusWidth111),
	}, data, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	return d.pollStatus(d.Descriptor.ProgramPoll)
}

// EraseSector erases the sector at index within the mapped window.
func (d *Device) EraseSector(index int) error {
	if err := d.ensureUnmapped(); err != nil {
		return err
	}

	offset, _, err := d.SectorInfo(index)
	if err != nil {
		return err
	}

	if _, err := d.HW.ExecCommand(hw.Command{Opcode: d.Descriptor.WriteEnableCmd}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	eraseCmd := d.Descriptor.EraseCmdForSector(d.sectors[index].ldBytesPerSector)
	addr := d.encodeAddr(d.UsedStart + offset)
	_, size, _ := d.SectorInfo(index)
	if _, err := d.HW.ExecCommand(hw.Command{
		Opcode:     eraseCmd,
		Addr:       addr,
		DummyBytes: int(size), // reused by the fake harness as an erase length
	}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	return d.pollStatus(d.Descriptor.ErasePoll)
}

func (d *Device) pollStatus(params PollParams) error {
	return d.HW.Poll(params.Budget, func() (bool, error) {
		status, err := d.HW.ExecCommand(hw.Command{Opcode: d.Descriptor.ReadStatusCmd}, nil, 1)
		if err != nil {
			return false, err
		}
		return status[0]&d.Descriptor.EraseEnabledStatusBit == 0, nil
	})
}

func (d *Device) ensureMapped() error {
	if d.mapped {
		return nil
	}
	if err := d.HW.Map(); err != nil {
		return emerrors.InitFailure.WrapError(err)
	}
	d.mapped = true
	return nil
}

func (d *Device) ensureUnmapped() error {
	if !d.mapped {
		return nil
	}
	if err := d.HW.Unmap(); err != nil {
		return emerrors.InitFailure.WrapError(err)
	}
	d.mapped = false
	return nil
}
