/*
 * Copyright 2024 Wang Min Xiang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * 	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package region implements the SharedRegion abstraction: a fixed-size byte
// buffer that every peer handle of a store addresses by the same identity.
// A Region is never copied across a Channel broadcast, only referenced; two
// peers holding the same *Region observe each other's writes to it.
package region

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/valyala/bytebufferpool"
)

// Region is an opaque, fixed-byte-length shared buffer. Its identity (the
// pointer) is what gets transported over the Channel; its contents are
// mutated in place by whoever holds the paired MetaRegion's lock.
type Region struct {
	buf  []byte
	id   uint64
	once sync.Once
	cond *sync.Cond
}

var nextID uint64

// New allocates a Region of exactly size bytes, sourced from the process
// arena (see arena_mmap.go / arena_heap.go). size must be > 0.
func New(size int) *Region {
	if size <= 0 {
		size = 1
	}
	return &Region{
		buf: alloc(size),
		id:  atomic.AddUint64(&nextID, 1),
	}
}

// Bytes returns the full backing slice. Callers under the paired lock may
// read or write it directly; callers without a lock must not.
func (r *Region) Bytes() []byte {
	return r.buf
}

// Len reports the byte length the Region was allocated with.
func (r *Region) Len() int {
	return len(r.buf)
}

// ID is a process-local identity distinguishing one allocation from another,
// used by tests and Membership debugging to tell "same region" from
// "equal-looking but distinct region".
func (r *Region) ID() uint64 {
	return r.id
}

// Notifier returns the sync.Cond a lock built over this Region's words
// parks waiters on. It is created lazily and lives on the Region itself, so
// it is reclaimed with the Region instead of accumulating in a process-wide
// table keyed by an ever-growing id space.
func (r *Region) Notifier() *sync.Cond {
	r.once.Do(func() {
		r.cond = sync.NewCond(&sync.Mutex{})
	})
	return r.cond
}

// CopyOut copies the first n bytes of the Region into a freshly owned slice,
// decoupling the caller from a buffer that may be mutated or reallocated the
// instant the paired lock is released. This copy is mandatory on every read
// path (spec open question (b)): never hand out r.buf itself to a decoder.
// The copy stages through a pooled buffer rather than allocating directly,
// the same Get/Write/Bytes/Put shape codec.jsonCodec.Pack uses.
func (r *Region) CopyOut(n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(r.buf[:n])
	out := append([]byte(nil), buf.Bytes()...)
	bytebufferpool.Put(buf)
	return out
}

// wordPtr returns an *int32 at the given 4-byte-aligned byte offset into the
// Region. All Regions handed out by alloc are 8-byte aligned at offset 0, so
// any 4-byte-aligned offset within the buffer is safe for atomic ops.
func (r *Region) wordPtr(offset int) *int32 {
	return (*int32)(unsafe.Pointer(&r.buf[offset]))
}

// LoadWord atomically loads the int32 word at byte offset.
func (r *Region) LoadWord(offset int) int32 {
	return atomic.LoadInt32(r.wordPtr(offset))
}

// StoreWord atomically stores an int32 word at byte offset.
func (r *Region) StoreWord(offset int, v int32) {
	atomic.StoreInt32(r.wordPtr(offset), v)
}

// AddWord atomically adds delta to the int32 word at byte offset, returning
// the new value.
func (r *Region) AddWord(offset int, delta int32) int32 {
	return atomic.AddInt32(r.wordPtr(offset), delta)
}

// CompareAndSwapWord atomically CASes the int32 word at byte offset.
func (r *Region) CompareAndSwapWord(offset int, old, new int32) bool {
	return atomic.CompareAndSwapInt32(r.wordPtr(offset), old, new)
}

// LoadUint32 atomically loads the uint32 at byte offset.
func (r *Region) LoadUint32(offset int) uint32 {
	return uint32(atomic.LoadInt32(r.wordPtr(offset)))
}

// StoreUint32 atomically stores a uint32 at byte offset.
func (r *Region) StoreUint32(offset int, v uint32) {
	atomic.StoreInt32(r.wordPtr(offset), int32(v))
}

// Release returns r's backing storage to the arena for reuse. Callers must
// hold no further references to r afterwards. The store package never calls
// it, since other handles may still hold the same *Region.
func Release(r *Region) {
	if r == nil {
		return
	}
	release(r.buf)
}
