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

	"github.com/aacfactory/sharedcache/channel"
	"github.com/aacfactory/sharedcache/lock"
	"github.com/aacfactory/sharedcache/meta"
	"github.com/aacfactory/sharedcache/region"
)

// Snapshot implements membership.Adopter: it hands a younger requester this
// handle's store-lock region and every live binding, by reference — the
// requester ends up sharing the exact same Region backing arrays, so future
// in-place mutations are visible to it without another message.
func (s *Store) Snapshot() (storeLock *region.Region, keys []channel.KeyState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys = make([]channel.KeyState, 0, len(s.bindings))
	for key, b := range s.bindings {
		var ttlPtr *int64
		if exp, has := s.ttl[key]; has {
			ms := exp.UnixMilli()
			ttlPtr = &ms
		}
		keys = append(keys, channel.KeyState{
			Key:  key,
			Meta: b.header.Region,
			Data: b.data,
			TTL:  ttlPtr,
		})
	}
	return s.storeLock.Region, keys
}

// Adopt implements membership.Adopter: install a strictly older donor's
// snapshot wholesale, replacing this handle's store-lock identity and
// merging every donated binding into the local map.
func (s *Store) Adopt(storeLock *region.Region, keys []channel.KeyState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if storeLock != nil {
		s.storeLock = meta.Words{Region: storeLock}
		s.storeLockRW = lock.New(s.storeLock)
	}
	for _, ks := range keys {
		s.bindings[ks.Key] = &binding{header: meta.New(ks.Meta), data: ks.Data}
		if ks.TTL != nil {
			expiry := time.UnixMilli(*ks.TTL)
			if _, has := s.ttl[ks.Key]; !has {
				s.ttlOrder = append(s.ttlOrder, ks.Key)
			}
			s.ttl[ks.Key] = expiry
		}
	}
}
