//go:build !appengine && !windows

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

package region

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// chunkSize is the arena's allocation granularity. Every Region, however
// small, is carved out of one or more 4KB chunks mapped anonymously so the
// resulting address range is distinct from the ordinary Go heap and can be
// madvise'd independently in a future revision.
const chunkSize = 4096

const chunksPerMmap = 256

var (
	freeChunks     [][]byte
	freeChunksLock chunkListLock
)

func getChunk() []byte {
	freeChunksLock.Lock()
	if len(freeChunks) == 0 {
		data, err := unix.Mmap(-1, 0, chunkSize*chunksPerMmap, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			freeChunksLock.Unlock()
			panic(fmt.Errorf("region: cannot mmap %d bytes: %s", chunkSize*chunksPerMmap, err))
		}
		for len(data) > 0 {
			freeChunks = append(freeChunks, data[:chunkSize:chunkSize])
			data = data[chunkSize:]
		}
	}
	n := len(freeChunks) - 1
	c := freeChunks[n]
	freeChunks[n] = nil
	freeChunks = freeChunks[:n]
	freeChunksLock.Unlock()
	return c
}

func putChunk(chunk []byte) {
	if chunk == nil {
		return
	}
	chunk = chunk[:chunkSize]
	freeChunksLock.Lock()
	freeChunks = append(freeChunks, chunk)
	freeChunksLock.Unlock()
}

// alloc returns an 8-byte-aligned slice of exactly size bytes, backed by one
// or more mmap chunks. Chunks are never individually freed back to the OS
// here (matching the teacher's chunk-pool discipline); Region garbage
// collection is left to the Go runtime once the last reference drops.
//
// A region larger than one chunk is mapped as a single contiguous mmap
// region rather than stitched together from individually pooled chunks:
// stitching would mean copying each chunk's bytes into a separate heap
// slice and losing every reference to the original mmap'd chunks, leaking
// them and letting release() push heap memory into freeChunks as if it
// were real chunks. Mapping n*chunkSize bytes in one call keeps buf's
// capacity a contiguous, chunkSize-aligned run of mmap'd memory, so
// release can hand the same chunks back to the pool exactly like it does
// for a single-chunk Region.
func alloc(size int) []byte {
	if size <= chunkSize {
		c := getChunk()
		if off := int(uintptr(unsafe.Pointer(&c[0]))) % 8; off != 0 {
			// mmap pages are always page-aligned (far stricter than 8
			// bytes), so this branch is unreachable in practice; kept as
			// a defensive fallback to a heap slice.
			return make([]byte, size)
		}
		return c[:size]
	}
	n := (size + chunkSize - 1) / chunkSize
	data, err := unix.Mmap(-1, 0, chunkSize*n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic(fmt.Errorf("region: cannot mmap %d bytes: %s", chunkSize*n, err))
	}
	return data[:size]
}

// release returns buf's backing chunks to the free list so a future alloc
// can reuse the mapping instead of growing the arena further. buf's capacity
// must be a multiple of chunkSize, which alloc guarantees.
func release(buf []byte) {
	full := buf[:cap(buf)]
	for len(full) >= chunkSize {
		putChunk(full[:chunkSize:chunkSize])
		full = full[chunkSize:]
	}
}
