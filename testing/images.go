// Package testing provides fixture helpers shared by this module's own
// package tests: building in-memory volume images and wiring them up as a
// fat.SectorDevice for round-trip tests without touching the real
// file system.
package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/segger-go/emfile/fat"
	"github.com/segger-go/emfile/internal/bitutil"
	"github.com/segger-go/emfile/sectorbuffer"
	"github.com/segger-go/emfile/utilities/compression"
)

// LoadDiskImage takes a compressed disk image and returns a stream to
// access the uncompressed data.
//
//   - Writes to the stream do not affect compressedImageBytes.
//   - The stream's size is fixed to sectorSize*totalSectors; writing past
//     the end of it returns an error from the underlying buffer.
func LoadDiskImage(t *testing.T, compressedImageBytes []byte, sectorSize, totalSectors uint) io.ReadWriteSeeker {
	t.Helper()
	compressedBuf := bytes.NewBuffer(compressedImageBytes)
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(compressedBuf)
	require.NoError(t, err)

	require.Equal(
		t,
		totalSectors*sectorSize,
		uint(len(imageBytes)),
		"uncompressed image is wrong size",
	)
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// BlankImage builds a zero-filled image of the given size backed by an
// in-memory buffer, for tests that format a fresh volume rather than load
// a pre-built fixture.
func BlankImage(t *testing.T, totalBytes uint) io.ReadWriteSeeker {
	t.Helper()
	return bytesextra.NewReadWriteSeeker(make([]byte, totalBytes))
}

// seekerDevice adapts an io.ReadWriteSeeker (which bytesextra's buffers
// implement, but which has no ReadAt/WriteAt of its own) into a
// fat.SectorDevice. It holds no lock: each access is a Seek followed by a
// Read or Write, which is not atomic, so a seekerDevice is not safe for
// concurrent use.
type seekerDevice struct {
	rw             io.ReadWriteSeeker
	bytesPerSector uint32
}

// NewSectorDevice wraps rw as a fat.SectorDevice of the given sector size.
func NewSectorDevice(rw io.ReadWriteSeeker, bytesPerSector uint32) fat.SectorDevice {
	return &seekerDevice{rw: rw, bytesPerSector: bytesPerSector}
}

func (d *seekerDevice) ReadSector(index uint32, buf []byte) error {
	if _, err := d.rw.Seek(int64(index)*int64(d.bytesPerSector), io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.rw, buf[:d.bytesPerSector])
	return err
}

func (d *seekerDevice) WriteSector(index uint32, buf []byte) error {
	if _, err := d.rw.Seek(int64(index)*int64(d.bytesPerSector), io.SeekStart); err != nil {
		return err
	}
	_, err := d.rw.Write(buf[:d.bytesPerSector])
	return err
}

// FormatBlankFAT16 writes a minimal FAT12/16-style BPB into the first
// sector of dev (512-byte sectors, one reserved sector, two FATs, the given
// cluster size, root entry count and FAT size, and the 0xAA55 signature),
// for tests that need a mountable image without going through the full
// format-preset/cmd-line path. It leaves both total-sector fields at zero,
// so the caller fills one in before parsing; the FAT type then follows
// from the resulting cluster count, not from this function's name.
func FormatBlankFAT16(t *testing.T, dev fat.SectorDevice, sectorsPerCluster uint8, fatSizeSectors uint16, rootEntCnt uint16) {
	t.Helper()
	sector := make([]byte, 512)
	bitutil.StoreU16LE(sector[11:13], 512)
	sector[13] = sectorsPerCluster
	bitutil.StoreU16LE(sector[14:16], 1)
	sector[16] = 2
	bitutil.StoreU16LE(sector[17:19], rootEntCnt)
	bitutil.StoreU16LE(sector[22:24], fatSizeSectors)
	bitutil.StoreU16LE(sector[510:512], 0xAA55)
	require.NoError(t, dev.WriteSector(0, sector))
}

// NewPool is a small convenience constructor so package tests don't all
// repeat the same sectorbuffer.New call.
func NewPool(count uint) *sectorbuffer.Pool {
	return sectorbuffer.New(count, 512)
}
