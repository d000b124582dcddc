package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segger-go/emfile/fat"
)

func TestMountAndLookup(t *testing.T) {
	r := NewRegistry()
	table := &fat.Table{}
	v, err := r.Mount("A", table, fat.DirCursor{IsFixedRoot: true})
	require.NoError(t, err)
	assert.Equal(t, "A", v.Name)

	found, err := r.Lookup("A")
	require.NoError(t, err)
	assert.Same(t, v, found)
}

func TestMountDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Mount("A", &fat.Table{}, fat.DirCursor{})
	require.NoError(t, err)
	_, err = r.Mount("A", &fat.Table{}, fat.DirCursor{})
	assert.Error(t, err)
}

func TestUnmountRemovesVolume(t *testing.T) {
	r := NewRegistry()
	_, err := r.Mount("A", &fat.Table{}, fat.DirCursor{})
	require.NoError(t, err)
	require.NoError(t, r.Unmount("A"))
	_, err = r.Lookup("A")
	assert.Error(t, err)
}

func TestLookupMissingVolume(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")
	assert.Error(t, err)
}

func TestSessionReentrancy(t *testing.T) {
	r := NewRegistry()
	v, err := r.Mount("A", &fat.Table{}, fat.DirCursor{})
	require.NoError(t, err)

	s1 := r.Begin(v)
	defer s1.Close()

	s2 := s1.Reenter()
	defer s2.Close()
	// Both sessions must be closeable without deadlocking: the recursive
	// lock only releases once depth returns to zero.
}

func TestIndependentVolumesDoNotBlock(t *testing.T) {
	r := NewRegistry()
	v1, err := r.Mount("A", &fat.Table{}, fat.DirCursor{})
	require.NoError(t, err)
	v2, err := r.Mount("B", &fat.Table{}, fat.DirCursor{})
	require.NoError(t, err)

	s1 := r.Begin(v1)
	defer s1.Close()
	s2 := r.Begin(v2)
	defer s2.Close()
}
