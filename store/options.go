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

package store

import "time"

// SetOptions mirrors spec §4.2's `set` options: a capacity hint, a forced
// reallocation flag, a TTL, and a hint that the caller already holds the
// key's exclusive lock.
type SetOptions struct {
	MinBufferSize int
	Immutable     bool
	TTL           time.Duration
	SkipLock      bool
}

// SetOption mutates a SetOptions; functional-options style, consistent with
// how this corpus threads per-call options (see shareds.Option in the
// teacher's shared store).
type SetOption func(*SetOptions)

// WithMinBufferSize hints the initial DataRegion capacity.
func WithMinBufferSize(n int) SetOption {
	return func(o *SetOptions) { o.MinBufferSize = n }
}

// WithImmutable forces reallocation instead of in-place reuse, even when
// the existing DataRegion has enough capacity.
func WithImmutable() SetOption {
	return func(o *SetOptions) { o.Immutable = true }
}

// WithTTL sets the key's expiry, measured from the moment Set executes.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *SetOptions) { o.TTL = ttl }
}

// WithSkipLock tells Set the caller already holds the key's exclusive lock
// (acquired via Store.Lock), so Set must not acquire or release it.
func WithSkipLock() SetOption {
	return func(o *SetOptions) { o.SkipLock = true }
}

func buildSetOptions(opts []SetOption) SetOptions {
	var o SetOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
