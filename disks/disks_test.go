package disks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/fat"
)

func TestPresetForCapacitySmall(t *testing.T) {
	p, err := PresetForCapacity(2 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, fat.FAT12, p.FATType())
}

func TestPresetForCapacityLarge(t *testing.T) {
	p, err := PresetForCapacity(20 * 1024 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, fat.FAT32, p.FATType())
	assert.EqualValues(t, 16, p.SectorsPerCluster)
}

func TestPresetForCapacityTooLarge(t *testing.T) {
	_, err := PresetForCapacity(1 << 62)
	assert.Error(t, err)
}
