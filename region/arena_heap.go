//go:build appengine || windows

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

// Build targets without an anonymous-mmap syscall (or that forbid it, like
// appengine) fall back to ordinary GC-managed allocation. Go's allocator
// aligns any allocation of this size to at least 8 bytes, so the atomic word
// access in region.go remains valid.
package region

func alloc(size int) []byte {
	return make([]byte, size)
}

// release is a no-op on the heap arena: the Go garbage collector reclaims
// the backing array once the last Region referencing it is gone.
func release(_ []byte) {}
