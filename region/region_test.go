package region_test

import (
	"sync"
	"testing"

	"github.com/aacfactory/sharedcache/region"
	"github.com/stretchr/testify/assert"
)

func TestNewSizesAndIdentity(t *testing.T) {
	r1 := region.New(12)
	assert.Equal(t, 12, r1.Len())
	r2 := region.New(12)
	assert.NotEqual(t, r1.ID(), r2.ID())
}

func TestBytesAreSharedByReference(t *testing.T) {
	r := region.New(64)
	r.Bytes()[0] = 0xAB
	// A second handle holding the same *Region pointer sees the mutation;
	// this is the identity-preservation the Channel relies on.
	alias := r
	assert.Equal(t, byte(0xAB), alias.Bytes()[0])
}

func TestCopyOutDecouplesFromBacking(t *testing.T) {
	r := region.New(16)
	copy(r.Bytes(), []byte("hello"))
	out := r.CopyOut(5)
	assert.Equal(t, []byte("hello"), out)
	r.Bytes()[0] = 'X'
	assert.Equal(t, byte('h'), out[0], "copy-out must not alias the region's backing array")
}

func TestCopyOutClampsToLength(t *testing.T) {
	r := region.New(4)
	out := r.CopyOut(100)
	assert.Len(t, out, 4)
}

func TestAtomicWordsConcurrent(t *testing.T) {
	r := region.New(12)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddWord(0, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, r.LoadWord(0))
}

func TestCompareAndSwapWord(t *testing.T) {
	r := region.New(8)
	assert.True(t, r.CompareAndSwapWord(4, 0, 1))
	assert.False(t, r.CompareAndSwapWord(4, 0, 1))
	assert.EqualValues(t, 1, r.LoadWord(4))
}

func TestMultiChunkRegionRoundTripsThroughRelease(t *testing.T) {
	const size = 10_000 // spans multiple 4KB chunks
	r := region.New(size)
	assert.Equal(t, size, r.Len())

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	copy(r.Bytes(), payload)
	out := r.CopyOut(size)
	assert.Equal(t, payload, out)

	region.Release(r)

	// The chunks just freed must be reusable: allocating fresh regions that
	// add up to the same byte count must not panic or corrupt data, which
	// would indicate the freed chunks were stale heap copies rather than the
	// real backing mmap memory.
	for off := 0; off < size; off += 4096 {
		n := size - off
		if n > 4096 {
			n = 4096
		}
		r2 := region.New(n)
		copy(r2.Bytes(), payload[off:off+n])
		assert.Equal(t, payload[off:off+n], r2.CopyOut(n))
	}
}
