package norphy

import (
	"github.com/segger-go/emfile/hw"
)

// selectBusWidth picks the widest variant the policy allows, since device
// capability is folded into the descriptor at open time via its command
// fields; here we only gate on the runtime policy bits.
func (d *Device) selectBusWidth(preferred hw.BusWidth) hw.BusWidth {
	w := preferred
	if w.DataLines >= 8 && !d.Policy.AllowOctalMode {
		w.DataLines = 4
	}
	if w.DataLines >= 4 && !d.Policy.Allow4bitMode {
		w.DataLines = 2
	}
	if w.DataLines >= 2 && !d.Policy.Allow2bitMode {
		w.DataLines = 1
	}
	if w.DTR && !d.Policy.AllowDTRMode {
		w.DTR = false
	}
	return w
}

// encodeAddr renders offset as Descriptor.AddrBytes bytes, big-endian, as
// NOR command frames expect.
//
// On real dual-die hardware, each command's address line is shared by both
// dies and addresses them at offset/2 (every command transfers one byte
// to/from each die, so the pair of dies together covers twice the address
// range of either die alone); a 3-byte address auto-extends to 4 bytes once
// that halved value exceeds 24 bits. The read/write padding logic in io.go
// is where dual-die's externally visible behavior — padding unaligned edge
// bytes with 0xFF on the die that isn't being touched — actually lives.
func (d *Device) encodeAddr(offset int64) []byte {
	byteOffset := offset
	addrBytes := d.Descriptor.AddrBytes
	if d.DualDie {
		halved := offset / 2
		if halved > 0xFFFFFF && addrBytes == 3 {
			addrBytes = 4
		}
	}
	out := make([]byte, addrBytes)
	for i := addrBytes - 1; i >= 0; i-- {
		out[i] = byte(byteOffset)
		byteOffset >>= 8
	}
	return out
}
