package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/internal/bitutil"
)

func makeBootSector(bytesPerSector uint16, sectorsPerCluster uint8, fat32 bool) []byte {
	buf := make([]byte, 512)
	bitutil.StoreU16LE(buf[11:13], bytesPerSector)
	buf[13] = sectorsPerCluster
	bitutil.StoreU16LE(buf[14:16], 1)
	buf[16] = 2
	bitutil.StoreU16LE(buf[17:19], 512)
	bitutil.StoreU32LE(buf[32:36], 65536)
	if fat32 {
		bitutil.StoreU16LE(buf[22:24], 0) // FATSz16 == 0 signals FAT32
		bitutil.StoreU32LE(buf[36:40], 1000)
		bitutil.StoreU32LE(buf[44:48], 2)
		bitutil.StoreU16LE(buf[48:50], 1)
	} else {
		bitutil.StoreU16LE(buf[22:24], 32)
	}
	bitutil.StoreU16LE(buf[510:512], 0xAA55)
	return buf
}

func TestParseBPBFAT16(t *testing.T) {
	buf := makeBootSector(512, 4, false)
	bpb, err := ParseBPB(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(512), bpb.BytesPerSector)
	assert.Equal(t, uint8(4), bpb.SectorsPerCluster)
	assert.Equal(t, uint16(32), bpb.FATSz16)
}

func TestParseBPBFAT32(t *testing.T) {
	buf := makeBootSector(512, 8, true)
	bpb, err := ParseBPB(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), bpb.FATSz32)
	assert.Equal(t, uint32(2), bpb.RootCluster)
}

func TestParseBPBRejectsBadSignature(t *testing.T) {
	buf := makeBootSector(512, 4, false)
	buf[510] = 0
	_, err := ParseBPB(buf)
	assert.Error(t, err)
}

func TestParseBPBRejectsNonPowerOfTwoSectorSize(t *testing.T) {
	buf := makeBootSector(500, 4, false)
	_, err := ParseBPB(buf)
	assert.Error(t, err)
}

func TestDetermineType(t *testing.T) {
	assert.Equal(t, FAT12, DetermineType(100))
	assert.Equal(t, FAT16, DetermineType(5000))
	assert.Equal(t, FAT32, DetermineType(70000))
}
