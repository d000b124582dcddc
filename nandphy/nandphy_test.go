package nandphy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/hw"
)

func makeOnfiPage(pagesPerBlock, bytesPerPage, bytesPerSpare uint32, blocksPerLUN uint32, numLUNs, eccCap uint8, corrupt bool) []byte {
	buf := make([]byte, 256)
	copy(buf[0:4], []byte("ONFI"))
	putU32 := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	putU32(80, bytesPerPage)
	buf[84] = byte(bytesPerSpare)
	buf[85] = byte(bytesPerSpare >> 8)
	putU32(92, pagesPerBlock)
	putU32(96, blocksPerLUN)
	buf[100] = numLUNs
	buf[112] = eccCap

	crc := crc16BitByBit(buf[0:254], crc16Init, crc16Poly)
	if corrupt {
		crc ^= 0xFFFF
	}
	buf[254] = byte(crc)
	buf[255] = byte(crc >> 8)
	return buf
}

func TestOpenIdentifiesONFIDevice(t *testing.T) {
	page := makeOnfiPage(64, 2048, 64, 1024, 1, 4, false)
	mem := hw.NewMemNAND(2048, 64, 1024*64, []byte{0x2C, 0x14, 0x00, 0x00, 0x00}, [][]byte{page})

	dev, err := Open(mem, DefaultVendors())
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), dev.Geometry.BytesPerPage)
	assert.Equal(t, uint32(64), dev.Geometry.PagesPerBlock)
	assert.Equal(t, "Micron MT29F1G01ABAFD", dev.Geometry.VendorName)
}

func TestOpenSkipsCorruptFirstCopy(t *testing.T) {
	good := makeOnfiPage(64, 2048, 64, 1024, 1, 4, false)
	bad := makeOnfiPage(64, 2048, 64, 1024, 1, 4, true)
	mem := hw.NewMemNAND(2048, 64, 1024*64, []byte{0x2C, 0x14, 0x00, 0x00, 0x00}, [][]byte{bad, good})

	dev, err := Open(mem, DefaultVendors())
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), dev.Geometry.BytesPerPage)
}

func TestWriteReadPageRoundTrip(t *testing.T) {
	page := makeOnfiPage(64, 2048, 64, 1024, 1, 4, false)
	mem := hw.NewMemNAND(2048, 64, 1024*64, []byte{0x2C, 0x14, 0x00, 0x00, 0x00}, [][]byte{page})
	dev, err := Open(mem, DefaultVendors())
	require.NoError(t, err)

	data := []byte("hello nand page")
	require.NoError(t, dev.WritePage(5, 0, data))

	got, err := dev.ReadPage(5, 0, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPlanePredicates(t *testing.T) {
	assert.True(t, isFirstPage(6, 0))
	assert.False(t, isFirstPage(6, 1))
	assert.True(t, isLastPage(6, 63))
	assert.False(t, isLastPage(6, 62))
	assert.True(t, isFirstBlock(6, 10))
	assert.False(t, isFirstBlock(6, 64))
}

func TestRemapBlockInterleavesPlanes(t *testing.T) {
	assert.Equal(t, uint32(0), RemapBlock(0, 4))
	assert.Equal(t, uint32(1), RemapBlock(4, 4))
	assert.Equal(t, uint32(2), RemapBlock(1, 4))
	assert.Equal(t, uint32(3), RemapBlock(5, 4))
}

func TestSpareAreaRoundTripThroughDeviceLayout(t *testing.T) {
	page := makeOnfiPage(64, 2048, 64, 1024, 1, 4, false)
	mem := hw.NewMemNAND(2048, 64, 1024*64, []byte{0xC8, 0x00, 0x00, 0x00, 0x00}, [][]byte{page})

	dev, err := Open(mem, DefaultVendors())
	require.NoError(t, err)
	assert.Equal(t, "GigaDevice GD5F", dev.Geometry.VendorName)
	assert.True(t, dev.IsECCEnabled, "HasHWECC vendors should come out of Open with ECC on")

	spareUser := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xA0, 0xA1, 0xA2}
	require.NoError(t, dev.WritePage(0, int(dev.Geometry.BytesPerPage), spareUser))

	got, err := dev.ReadPage(0, int(dev.Geometry.BytesPerPage), len(spareUser))
	require.NoError(t, err)
	assert.Equal(t, spareUser, got, "spare data must survive a round trip through Device.Layout, not just spare.go in isolation")
}

func TestRemapPageAppliesBlockInterleave(t *testing.T) {
	dev := &Device{Geometry: Geometry{LdPagesPerBlock: 6, LdBlocksPerDie: 4, LdNumPlanes: 1}}

	block, offset := uint32(1), uint32(3)
	page := block<<6 | offset

	got := dev.remapPage(page)
	wantBlock := RemapBlock(block, 8)
	assert.Equal(t, wantBlock<<6|offset, got)
}

func TestMicronSpareRelocation(t *testing.T) {
	layout := micronLayout{numStripes: 4, Compat: MicronNewLayoutOnly}
	raw := make([]byte, 4*eccStripeSize)
	for i := range raw {
		raw[i] = 0xFF
	}

	layout.TranslateWrite(raw, 1, [4]byte{1, 2, 3, 4}, false)
	got := layout.TranslateRead(raw, 1, false)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, got)

	// Physically stored at stripe 1+4/2=3, offset 0..4, not at stripe 1.
	assert.Equal(t, []byte{1, 2, 3, 4}, raw[3*eccStripeSize:3*eccStripeSize+4])
}
