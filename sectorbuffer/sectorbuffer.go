// Package sectorbuffer implements the fixed-size scratch-buffer pool the
// FAT layer's allocation-table code reads and writes sectors through. The
// NAND and NOR physical layers do not use it; they allocate their own
// transfer buffers.
//
// A pool entry doubles as a single-slot read cache: a buffer not currently
// InUse but still tagged with the (volume, sector) pair a caller wants is
// handed back without going to the device. This mirrors the block-cache
// loaded/dirty bitmap pattern the teacher repo uses for its file-backed
// caches, but reshaped into a pool of independently-tagged slots rather than
// one contiguous array, since sector buffers are not addressed by a single
// linear index the way cached file blocks are.
package sectorbuffer

import (
	"github.com/boljen/go-bitmap"

	emerrors "github.com/segger-go/emfile/errors"
)

// VolumeID identifies the volume a buffer is tagged for. The zero value is
// never a valid tag.
type VolumeID uint32

// Invalid marks a sector index or volume ID as "no association".
const Invalid = ^uint32(0)

// Buffer is one slot in the pool.
type Buffer struct {
	Data    []byte
	InUse   bool
	Volume  VolumeID
	Sector  uint32
	isValid bool // whether (Volume, Sector) is a live cache tag
}

// Pool is a fixed-size collection of Buffers, all the same size, allocated
// once at mount/init time the way the original firmware carves them out of
// its memory-manager region.
type Pool struct {
	buffers      []Buffer
	inUseBitmap  bitmap.Bitmap
	bytesPerSlot uint
}

// New allocates a pool of count buffers, each bytesPerSlot bytes.
func New(count, bytesPerSlot uint) *Pool {
	p := &Pool{
		buffers:      make([]Buffer, count),
		inUseBitmap:  bitmap.New(int(count)),
		bytesPerSlot: bytesPerSlot,
	}
	for i := range p.buffers {
		p.buffers[i].Data = make([]byte, bytesPerSlot)
	}
	return p
}

// Len returns the number of buffers in the pool.
func (p *Pool) Len() int {
	return len(p.buffers)
}

// BytesPerSlot returns the fixed size of every buffer in the pool.
func (p *Pool) BytesPerSlot() uint {
	return p.bytesPerSlot
}

// Alloc returns the first buffer with InUse == false, invalidating any
// stale (volume, sector) tag it carried. It returns BufferNotAvailable if
// every buffer is in use.
func (p *Pool) Alloc() (*Buffer, error) {
	for i := range p.buffers {
		if !p.inUseBitmap.Get(i) {
			p.inUseBitmap.Set(i, true)
			buf := &p.buffers[i]
			buf.InUse = true
			buf.isValid = false
			return buf, nil
		}
	}
	return nil, emerrors.New(emerrors.BufferNotAvailable)
}

// AllocEx allocates a buffer for (vol, sector), preferring one already
// carrying that exact tag (matched=true, the caller may skip its read),
// then one previously used for the same volume, then any free buffer.
func (p *Pool) AllocEx(vol VolumeID, sector uint32) (buf *Buffer, matched bool, err error) {
	sameVolumeIdx := -1

	for i := range p.buffers {
		if p.inUseBitmap.Get(i) {
			continue
		}
		b := &p.buffers[i]
		if b.isValid && b.Volume == vol && b.Sector == sector {
			p.inUseBitmap.Set(i, true)
			b.InUse = true
			return b, true, nil
		}
		if sameVolumeIdx < 0 && b.isValid && b.Volume == vol {
			sameVolumeIdx = i
		}
	}

	if sameVolumeIdx >= 0 {
		b := &p.buffers[sameVolumeIdx]
		p.inUseBitmap.Set(sameVolumeIdx, true)
		b.InUse = true
		b.isValid = false
		return b, false, nil
	}

	buf, err = p.Alloc()
	return buf, false, err
}

// Free releases buf back to the pool. If valid is true, the buffer keeps
// its (vol, sector) tag as a read-cache entry, and any other buffer
// aliasing the same pair is invalidated (the pool's core invariant is that
// at most one buffer holds a given (vol, sector) pair at a time). If
// valid is false, the tag is cleared.
func (p *Pool) Free(buf *Buffer, vol VolumeID, sector uint32, valid bool) {
	idx := p.indexOf(buf)
	if idx < 0 {
		return
	}

	buf.InUse = false
	p.inUseBitmap.Set(idx, false)

	if !valid {
		buf.isValid = false
		return
	}

	buf.Volume = vol
	buf.Sector = sector
	buf.isValid = true

	for i := range p.buffers {
		if i == idx {
			continue
		}
		other := &p.buffers[i]
		if !p.inUseBitmap.Get(i) && other.isValid && other.Volume == vol && other.Sector == sector {
			other.isValid = false
		}
	}
}

// Invalidate clears any cached (vol, idx') tag for idx' in [sector,
// sector+count) that isn't currently in use. count == 0 invalidates every
// tag for the volume.
func (p *Pool) Invalidate(vol VolumeID, sector uint32, count uint32) {
	for i := range p.buffers {
		if p.inUseBitmap.Get(i) {
			continue
		}
		b := &p.buffers[i]
		if !b.isValid || b.Volume != vol {
			continue
		}
		if count == 0 || sector == Invalid {
			b.isValid = false
			continue
		}
		if b.Sector >= sector && b.Sector < sector+count {
			b.isValid = false
		}
	}
}

func (p *Pool) indexOf(buf *Buffer) int {
	for i := range p.buffers {
		if &p.buffers[i] == buf {
			return i
		}
	}
	return -1
}
