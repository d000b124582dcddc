package nandphy

import (
	"time"

	emerrors "github.com/segger-go/emfile/errors"
	"github.com/segger-go/emfile/hw"
)

const (
	cmdReadPageStart = 0x00
	cmdReadPageEnd   = 0x30
	cmdProgramStart  = 0x80
	cmdProgramEnd    = 0x10
	cmdEraseStart    = 0x60
	cmdEraseEnd      = 0xD0
	cmdReadStatus    = 0x70
	cmdReadData      = 0x31 // random-data-output: fetch bytes from the already-loaded page register

	statusFail = 0x01
	statusReady = 0x40
)

// ReadPage reads length bytes at column offset within page, via the
// device-internal page-register two-step read. If the same page is
// already in the register (no intervening write/erase/reset/die-switch),
// the array-to-register step is skipped. A read that falls entirely
// within the spare area (offset >= BytesPerPage) comes back translated
// out of the vendor's physical spare layout when HW ECC is enabled, and a
// read of any page is checked against the HW ECC result.
func (d *Device) ReadPage(page uint32, offset, length int) ([]byte, error) {
	page = d.remapPage(page)

	if d.readCachePage != int32(page) {
		if _, err := d.HW.ExecCommand(hw.Command{
			Opcode: cmdReadPageStart,
			Addr:   encodePageAddr(page, 0),
		}, nil, 0); err != nil {
			return nil, emerrors.ReadFailure.WrapError(err)
		}
		if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdReadPageEnd}, nil, 0); err != nil {
			return nil, emerrors.ReadFailure.WrapError(err)
		}
		if err := d.HW.Poll(5*time.Millisecond, func() (bool, error) {
			st, err := d.statusByte()
			return err == nil && st&statusReady != 0, err
		}); err != nil {
			return nil, emerrors.ReadFailure.WrapError(err)
		}
		d.readCachePage = int32(page)
	}

	hwLength := length
	translateSpare := d.IsECCEnabled && d.Layout != nil && offset >= int(d.Geometry.BytesPerPage) && length > 0 && length%4 == 0
	if translateSpare {
		// The vendor spare layout is stripe-addressed from the start of the
		// spare area, so the physical read must fetch whole stripes rather
		// than the caller's logical byte count.
		hwLength = (length / 4) * eccStripeSize
	}

	out, err := d.HW.ExecCommand(hw.Command{
		Opcode: cmdReadData,
		Addr:   encodePageAddr(page, offset),
	}, nil, hwLength)
	if err != nil {
		return nil, emerrors.ReadFailure.WrapError(err)
	}

	if translateSpare {
		out = d.translateSpareRead(page, out)
	}

	if d.HasHWECC && d.IsECCEnabled {
		if result, err := d.GetEccResult(); err == nil && result.CorrectionStatus == EccFailure {
			return out, emerrors.Newf(emerrors.ReadFailure, "uncorrectable ECC error at page %d", page)
		}
	}

	return out, nil
}

// translateSpareRead runs a raw spare-area read through Layout, stripe by
// stripe, returning just the logical 4 bytes of user data per stripe.
func (d *Device) translateSpareRead(page uint32, raw []byte) []byte {
	firstOrLast := isFirstPage(d.Geometry.LdPagesPerBlock, page) || isLastPage(d.Geometry.LdPagesPerBlock, page)
	numStripes := len(raw) / eccStripeSize
	out := make([]byte, 0, numStripes*4)
	for s := 0; s < numStripes; s++ {
		chunk := d.Layout.TranslateRead(raw, s, firstOrLast)
		out = append(out, chunk[:]...)
	}
	return out
}

// translateSpareWrite expands the caller's logical spare user bytes (4
// per stripe) into a full physical spare-area image via Layout, stripe by
// stripe, leaving everything outside the user-data positions at the NAND
// unprogrammed value.
func (d *Device) translateSpareWrite(page uint32, userData []byte) []byte {
	numStripes := len(userData) / 4
	raw := make([]byte, numStripes*eccStripeSize)
	for i := range raw {
		raw[i] = 0xFF
	}
	if gd, ok := d.Layout.(*gigaDeviceLayout); ok {
		gd.mainArea = nil
	}
	firstOrLast := isFirstPage(d.Geometry.LdPagesPerBlock, page) || isLastPage(d.Geometry.LdPagesPerBlock, page)
	for s := 0; s < numStripes; s++ {
		var chunk [4]byte
		copy(chunk[:], userData[s*4:s*4+4])
		d.Layout.TranslateWrite(raw, s, chunk, firstOrLast)
	}
	return raw
}

// WritePage programs length bytes at column offset within page. A write
// that falls entirely within the spare area is translated into the
// vendor's physical layout first, when HW ECC is enabled. A program
// failure retires the block: its surviving pages are evacuated to the
// next block and it's marked bad.
func (d *Device) WritePage(page uint32, offset int, data []byte) error {
	logicalPage := page
	page = d.remapPage(page)

	physData := data
	if d.IsECCEnabled && d.Layout != nil && offset >= int(d.Geometry.BytesPerPage) && len(data) > 0 && len(data)%4 == 0 {
		physData = d.translateSpareWrite(page, data)
	}

	if _, err := d.HW.ExecCommand(hw.Command{
		Opcode: cmdProgramStart,
		Addr:   encodePageAddr(page, offset),
	}, physData, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdProgramEnd}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	if err := d.HW.Poll(2*time.Millisecond, func() (bool, error) {
		st, err := d.statusByte()
		return err == nil && st&statusReady != 0, err
	}); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}

	d.readCachePage = -1

	st, err := d.statusByte()
	if err == nil && st&statusFail != 0 {
		// Status-register clearing after a failed write is done
		// automatically, per the propagation-policy exception in §7.
		d.clearStatus()
		d.retireFailedBlock(logicalPage)
		return emerrors.Newf(emerrors.WriteFailure, "program failure at page %d", page)
	}
	return nil
}

// retireFailedBlock best-effort evacuates the block containing logicalPage
// to the next block and marks it bad, after a program failure. logicalPage
// must be the caller's original, unremapped page number: MoveBlock's own
// calls into CopyPage/ReadPage/WritePage/EraseBlock each remap their
// addresses, so remapping here too would apply RemapBlock twice.
// Evacuation failure is not reported: the original write has already
// failed, and the block is marked bad regardless so nothing is allocated
// onto it again. Guarded against re-entry so a failure while evacuating
// doesn't chain into retiring every subsequent block.
func (d *Device) retireFailedBlock(logicalPage uint32) {
	if d.retiring {
		return
	}
	d.retiring = true
	defer func() { d.retiring = false }()

	block := logicalPage >> d.Geometry.LdPagesPerBlock
	physBlock := d.remapPage(logicalPage) >> d.Geometry.LdPagesPerBlock
	if block+1 < d.Geometry.NumBlocks && !d.IsBadBlock(physBlock+1) {
		_ = d.MoveBlock(block, block+1)
	}
	d.MarkBadBlock(physBlock)
}

// EraseBlock erases the block containing page startPage.
func (d *Device) EraseBlock(startPage uint32) error {
	startPage = d.remapPage(startPage)
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdEraseStart, Addr: encodeBlockAddr(startPage)}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdEraseEnd}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	if err := d.HW.Poll(3*time.Second, func() (bool, error) {
		st, err := d.statusByte()
		return err == nil && st&statusReady != 0, err
	}); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	d.readCachePage = -1
	return nil
}

// CopyPage issues a device-internal read-then-program from srcPage to
// dstPage without shipping data through the MCU, when HW ECC is enabled
// and both pages are on the same plane. When ECC is disabled, this is
// forbidden — bit errors would propagate uncorrected — and the caller
// must fall back to a normal read+write through the MCU.
func (d *Device) CopyPage(srcPage, dstPage uint32) error {
	srcPage = d.remapPage(srcPage)
	dstPage = d.remapPage(dstPage)

	if !d.IsECCEnabled {
		return emerrors.Newf(emerrors.NotSupported, "internal page copy requires HW ECC enabled")
	}
	if !isSamePlane(d.Geometry.LdNumDies, d.Geometry.LdBlocksPerDie, d.Geometry.LdPagesPerBlock, d.Geometry.LdNumPlanes, srcPage, dstPage) {
		return emerrors.Newf(emerrors.NotSupported, "pages %d and %d are not on the same plane", srcPage, dstPage)
	}

	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdReadPageStart, Addr: encodePageAddr(srcPage, 0)}, nil, 0); err != nil {
		return emerrors.ReadFailure.WrapError(err)
	}
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdReadPageEnd}, nil, 0); err != nil {
		return emerrors.ReadFailure.WrapError(err)
	}
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: 0x85, Addr: encodePageAddr(dstPage, 0)}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	if _, err := d.HW.ExecCommand(hw.Command{Opcode: cmdProgramEnd}, nil, 0); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	if err := d.HW.Poll(2*time.Millisecond, func() (bool, error) {
		st, err := d.statusByte()
		return err == nil && st&statusReady != 0, err
	}); err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	d.readCachePage = -1
	return nil
}

// MoveBlock relocates every page of srcBlock to the corresponding page of
// dstBlock — via CopyPage when HW ECC is enabled and the pages share a
// plane, falling back to a read/write through the MCU otherwise — then
// erases srcBlock. Used to evacuate a block before it's retired.
func (d *Device) MoveBlock(srcBlock, dstBlock uint32) error {
	pagesPerBlock := uint32(1) << d.Geometry.LdPagesPerBlock
	srcBase := srcBlock << d.Geometry.LdPagesPerBlock
	dstBase := dstBlock << d.Geometry.LdPagesPerBlock

	for i := uint32(0); i < pagesPerBlock; i++ {
		srcPage := srcBase + i
		dstPage := dstBase + i
		if err := d.CopyPage(srcPage, dstPage); err == nil {
			continue
		}
		data, err := d.ReadPage(srcPage, 0, int(d.Geometry.BytesPerPage))
		if err != nil {
			return err
		}
		if err := d.WritePage(dstPage, 0, data); err != nil {
			return err
		}
	}
	return d.EraseBlock(srcBase)
}

func (d *Device) statusByte() (byte, error) {
	out, err := d.HW.ExecCommand(hw.Command{Opcode: cmdReadStatus}, nil, 1)
	if err != nil || len(out) == 0 {
		return 0, err
	}
	return out[0], nil
}

func (d *Device) clearStatus() {
	_, _ = d.HW.ExecCommand(hw.Command{Opcode: 0xFF}, nil, 0)
}

func encodePageAddr(page uint32, column int) []byte {
	return []byte{byte(column), byte(column >> 8), byte(page), byte(page >> 8), byte(page >> 16)}
}

func encodeBlockAddr(page uint32) []byte {
	return []byte{byte(page), byte(page >> 8), byte(page >> 16)}
}

// IsBadBlock reports the factory/runtime bad-block status recorded for
// block, via the free-cluster-style allocator bitmap reused here as a
// bad-block table. The table starts empty at Open and is filled only by
// MarkBadBlock; the factory bad-block markers are not scanned.
func (d *Device) IsBadBlock(block uint32) bool {
	if block >= d.Geometry.NumBlocks {
		return false
	}
	return d.badBlocks.Get(int(block))
}

func (d *Device) MarkBadBlock(block uint32) {
	if block < d.Geometry.NumBlocks {
		d.badBlocks.Set(int(block), true)
	}
}
