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
	"github.com/aacfactory/sharedcache/meta"
	"github.com/aacfactory/sharedcache/pattern"
)

// onMessage is the Bus subscriber every Store installs for its own origin.
// It never sees its own publishes (the Bus filters those out), only what
// other handles of the same store name broadcast.
func (s *Store) onMessage(msg channel.Message) {
	switch msg.Action {
	case channel.ActionInitializeRequest, channel.ActionInitializeResponse:
		s.membership.HandleMessage(msg)
	case channel.ActionSet:
		s.applyRemoteSet(msg)
	case channel.ActionTTLSet:
		s.applyRemoteTTLSet(msg)
	case channel.ActionDelete:
		s.applyRemoteDelete(msg)
	case channel.ActionClear:
		s.applyRemoteClear()
	}
}

// applyRemoteSet installs a binding a peer just created or reallocated. The
// Region pointers are shared, so this handle now sees every future in-place
// mutation too, without further messages.
func (s *Store) applyRemoteSet(msg channel.Message) {
	s.mu.Lock()
	s.bindings[msg.Key] = &binding{header: meta.New(msg.Meta), data: msg.Data}
	if msg.TTL != nil {
		expiry := time.UnixMilli(*msg.TTL)
		if _, has := s.ttl[msg.Key]; !has {
			s.ttlOrder = append(s.ttlOrder, msg.Key)
		}
		s.ttl[msg.Key] = expiry
	} else {
		delete(s.ttl, msg.Key)
	}
	s.mu.Unlock()
}

func (s *Store) applyRemoteTTLSet(msg channel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, has := s.bindings[msg.Key]; !has {
		// A ttl_set that outran its set (or arrived for a key this handle
		// never adopted) has nothing to attach to; drop it.
		return
	}
	if msg.TTL == nil {
		delete(s.ttl, msg.Key)
		return
	}
	expiry := time.UnixMilli(*msg.TTL)
	if _, has := s.ttl[msg.Key]; !has {
		s.ttlOrder = append(s.ttlOrder, msg.Key)
	}
	s.ttl[msg.Key] = expiry
}

func (s *Store) applyRemoteDelete(msg channel.Message) {
	if msg.Pattern != "" {
		re, err := pattern.Compile(msg.Pattern)
		if err != nil {
			return
		}
		s.mu.Lock()
		for k := range s.bindings {
			if re.MatchString(k) {
				delete(s.bindings, k)
				delete(s.ttl, k)
			}
		}
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	delete(s.bindings, msg.Key)
	delete(s.ttl, msg.Key)
	s.mu.Unlock()
}

func (s *Store) applyRemoteClear() {
	s.mu.Lock()
	s.bindings = make(map[string]*binding)
	s.ttl = make(map[string]time.Time)
	s.ttlOrder = nil
	s.mu.Unlock()
}
