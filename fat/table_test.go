package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/sectorbuffer"
)

func TestNewTableFromBPBFAT16(t *testing.T) {
	buf := makeBootSector(512, 4, false)
	// RsvdSecCnt=1 is already baked into makeBootSector via offset 14:16.
	bpb, err := ParseBPB(buf)
	require.NoError(t, err)

	dev := newMemSectorDevice(2000, 512)
	pool := sectorbuffer.New(16, 512)

	table, err := NewTableFromBPB(bpb, dev, pool)
	require.NoError(t, err)
	assert.Equal(t, FAT16, table.Type)
	assert.EqualValues(t, 1, table.FATStartSector)
	assert.True(t, table.MaintainFATCopy)
}

func TestTableRootFAT32UsesRootCluster(t *testing.T) {
	buf := makeBootSector(512, 8, true)
	bpb, err := ParseBPB(buf)
	require.NoError(t, err)

	dev := newMemSectorDevice(200000, 512)
	pool := sectorbuffer.New(16, 512)
	table, err := NewTableFromBPB(bpb, dev, pool)
	require.NoError(t, err)

	root := table.Root()
	assert.False(t, root.IsFixedRoot)
	assert.EqualValues(t, 2, root.StartCluster)
}
