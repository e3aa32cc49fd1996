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

// Package channel implements the named broadcast bus: every handle opened
// against the same store name receives every message any handle with that
// name publishes. Messages carry shared regions by reference (the pointer
// crosses the bus, never the bytes), so delivery is cheap and torn payloads
// are impossible by construction.
//
// Delivery is best-effort and unordered, and may drop messages under
// sustained backpressure; every Store-side handler this feeds is written to
// be idempotent, matching the design's tolerance for redundant or
// out-of-order messages (installing the same region twice is a no-op,
// deletes are set-difference operations).
package channel

import (
	"sync"

	"github.com/aacfactory/sharedcache/region"
)

// Action tags the kind of a Message, mirroring the wire schema in spec §6.
type Action string

const (
	ActionSet                Action = "set"
	ActionTTLSet             Action = "ttl_set"
	ActionDelete             Action = "delete"
	ActionClear              Action = "clear"
	ActionInitializeRequest  Action = "initialize_request"
	ActionInitializeResponse Action = "initialize_response"
)

// KeyState is one entry of an initialize_response's keys list: a full
// binding snapshot handed to a newcomer during Membership handoff.
type KeyState struct {
	Key  string
	Meta *region.Region
	Data *region.Region
	TTL  *int64 // absolute expiry, Unix milliseconds; nil means no expiry
}

// Message is the payload carried on the bus. Only the fields relevant to
// Action are populated; the rest are zero.
type Message struct {
	Action Action

	Key     string // set, ttl_set, delete
	Pattern string // delete (pattern form)

	Meta *region.Region // set
	Data *region.Region // set
	TTL  *int64         // set, ttl_set: absolute expiry, Unix milliseconds

	Timestamp int64 // initialize_request, initialize_response

	StoreLock *region.Region // initialize_response
	Keys      []KeyState     // initialize_response

	// Origin distinguishes the publishing handle so a Bus can skip
	// delivering a message back to its own publisher; self-delivery is
	// harmless (handlers are idempotent) but wasteful.
	Origin uint64
}

// subscriberQueueSize bounds how many undelivered messages a slow
// subscriber tolerates before new publishes are dropped for it; broadcast is
// explicitly lossy-tolerant (spec §4.3, §4.4), so dropping here is
// acceptable rather than blocking the publisher.
const subscriberQueueSize = 1024

type subscriber struct {
	id     uint64
	queue  chan Message
	closed chan struct{}
}

// Bus is the broadcast bus for a single store name.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
}

func newBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers handler to receive every future Publish on this Bus
// whose Origin does not equal id. It returns an unsubscribe func.
func (b *Bus) Subscribe(id uint64, handler func(Message)) (unsubscribe func()) {
	s := &subscriber{
		id:     id,
		queue:  make(chan Message, subscriberQueueSize),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	go func() {
		for {
			select {
			case msg := <-s.queue:
				handler(msg)
			case <-s.closed:
				return
			}
		}
	}()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(s.closed)
	}
}

// Publish delivers msg to every subscriber except the one matching
// msg.Origin. Delivery to any one subscriber never blocks the publisher or
// other subscribers: a full subscriber queue drops the message for that
// subscriber only.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, s := range b.subs {
		if id == msg.Origin {
			continue
		}
		select {
		case s.queue <- msg:
		default:
		}
	}
}
