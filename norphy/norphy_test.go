package norphy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/hw"
)

func openTestDevice(t *testing.T) *Device {
	t.Helper()
	mem := hw.NewMemNOR(2*1024*1024, []byte{0xEF, 0x40, 0x18})
	dev, err := Open(mem, DefaultDescriptors(), 0, 0, int64(len(mem.Data)), Policy{})
	require.NoError(t, err)
	return dev
}

func TestOpenIdentifiesByManufacturerID(t *testing.T) {
	dev := openTestDevice(t)
	assert.Equal(t, "Winbond W25Q", dev.Descriptor.Name)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev := openTestDevice(t)

	data := []byte("hello, nor flash")
	err := dev.Write(0, data)
	require.NoError(t, err)

	got, err := dev.Read(0, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEraseSectorResetsTo0xFF(t *testing.T) {
	dev := openTestDevice(t)

	require.NoError(t, dev.Write(10, []byte{0x00, 0x00, 0x00}))

	err := dev.EraseSector(0)
	require.NoError(t, err)

	_, size, err := dev.SectorInfo(0)
	require.NoError(t, err)

	data, err := dev.Read(0, int(size))
	require.NoError(t, err)
	for i, b := range data {
		assert.Equal(t, byte(0xFF), b, "byte %d not erased", i)
	}
}

func TestDualDieWriteReadOddOffset(t *testing.T) {
	mem := hw.NewMemNOR(2*1024*1024, []byte{0x20, 0xBA, 0x19})
	dev, err := Open(mem, DefaultDescriptors(), 0, 0, int64(len(mem.Data)), Policy{})
	require.NoError(t, err)
	dev.DualDie = true

	data := []byte{0xAA, 0xBB, 0xCC}
	require.NoError(t, dev.Write(1, data))

	got, err := dev.Read(1, 3)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
