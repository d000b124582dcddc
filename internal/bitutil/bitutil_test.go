package bitutil

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadStoreRoundTrip(t *testing.T) {
	buf16 := make([]byte, 2)
	buf24 := make([]byte, 3)
	buf32 := make([]byte, 4)
	buf64 := make([]byte, 8)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		v16 := uint16(r.Uint32())
		StoreU16LE(buf16, v16)
		assert.Equal(t, v16, LoadU16LE(buf16))
		StoreU16BE(buf16, v16)
		assert.Equal(t, v16, LoadU16BE(buf16))

		v24 := r.Uint32() & 0xFFFFFF
		StoreU24LE(buf24, v24)
		assert.Equal(t, v24, LoadU24LE(buf24))
		StoreU24BE(buf24, v24)
		assert.Equal(t, v24, LoadU24BE(buf24))

		v32 := r.Uint32()
		StoreU32LE(buf32, v32)
		assert.Equal(t, v32, LoadU32LE(buf32))
		StoreU32BE(buf32, v32)
		assert.Equal(t, v32, LoadU32BE(buf32))

		v64 := r.Uint64()
		StoreU64LE(buf64, v64)
		assert.Equal(t, v64, LoadU64LE(buf64))
		StoreU64BE(buf64, v64)
		assert.Equal(t, v64, LoadU64BE(buf64))
	}
}

func TestDivModU32(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		v := r.Uint32()
		d := r.Uint32()%1000 + 1
		q, rem := DivModU32(v, d)
		assert.Equal(t, v, q*d+rem)
		assert.Less(t, rem, d)
	}
}

func TestBitfieldRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for n := uint(1); n <= 32; n++ {
		for trial := 0; trial < 50; trial++ {
			var i uint
			if n < 32 {
				i = uint(r.Intn(int(32 - n + 1)))
			}
			base := r.Uint32()
			v := r.Uint32()
			written := BitfieldWrite(base, i, n, v)
			got := BitfieldRead(written, i, n)
			want := v & fieldMask(n)
			assert.Equal(t, want, got, "n=%d i=%d", n, i)
		}
	}
}
