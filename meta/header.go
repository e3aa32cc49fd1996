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

// Package meta defines the layout of the per-key control block (MetaRegion)
// and the coarser store-wide control block (StoreLockRegion). Both share the
// same first eight bytes: a readers count and a writer flag, each a 32-bit
// word accessed only through atomics.
package meta

import "github.com/aacfactory/sharedcache/region"

const (
	offsetReaders    = 0
	offsetWriter     = 4
	offsetPayloadLen = 8

	// HeaderSize is the byte length of a per-key MetaRegion.
	HeaderSize = 12
	// LockSize is the byte length of the store-wide StoreLockRegion.
	LockSize = 8
)

// Words is the readers+writer pair shared by both Header and the store-wide
// lock region. It is not safe for use until its Region is at least
// LockSize bytes.
type Words struct {
	Region *region.Region
}

// Readers atomically reads the readers count.
func (w Words) Readers() int32 { return w.Region.LoadWord(offsetReaders) }

// AddReaders atomically adds delta to the readers count and returns the new
// value.
func (w Words) AddReaders(delta int32) int32 { return w.Region.AddWord(offsetReaders, delta) }

// Writer atomically reads the writer flag (0 or 1).
func (w Words) Writer() int32 { return w.Region.LoadWord(offsetWriter) }

// CompareAndSwapWriter atomically CASes the writer flag.
func (w Words) CompareAndSwapWriter(old, new int32) bool {
	return w.Region.CompareAndSwapWord(offsetWriter, old, new)
}

// StoreWriter atomically sets the writer flag unconditionally.
func (w Words) StoreWriter(v int32) { w.Region.StoreWord(offsetWriter, v) }

// Header is the 12-byte MetaRegion: a Words pair plus the payload length of
// the paired DataRegion's live bytes.
type Header struct {
	Words
}

// New wraps r as a Header. r must be at least HeaderSize bytes.
func New(r *region.Region) *Header {
	return &Header{Words{Region: r}}
}

// PayloadLen atomically reads the payload length field.
func (h *Header) PayloadLen() uint32 { return h.Region.LoadUint32(offsetPayloadLen) }

// SetPayloadLen atomically writes the payload length field.
func (h *Header) SetPayloadLen(n uint32) { h.Region.StoreUint32(offsetPayloadLen, n) }

// NewRegion allocates a fresh, zeroed MetaRegion-sized Region.
func NewRegion() *region.Region { return region.New(HeaderSize) }

// NewStoreLockWords allocates and wraps a fresh StoreLockRegion.
func NewStoreLockWords() Words { return Words{Region: region.New(LockSize)} }
