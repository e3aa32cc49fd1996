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

import (
	"time"

	"github.com/aacfactory/sharedcache/lock"
)

// storeLockRWSnapshot reads the current storeLockRW pointer under s.mu.
// Adopt (store/membership_adopter.go) can swap it out from the bus's
// subscriber goroutine at any point after New returns, so every read has to
// go through this instead of touching the field directly.
func (s *Store) storeLockRWSnapshot() *lock.RW {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storeLockRW
}

func (s *Store) acquireStoreLock(timeout time.Duration) bool {
	return s.storeLockRWSnapshot().AcquireExclusive(timeout)
}

func (s *Store) releaseStoreLock() {
	s.storeLockRWSnapshot().ReleaseExclusive()
}
