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

// Package membership implements the "youngest donor wins" handshake: a
// newly constructed handle broadcasts its init timestamp, and any strictly
// older peer donates its current binding set and store-lock identity. The
// handshake is lossy-tolerant by construction — adoption is a monotonic,
// idempotent operation, so a dropped or duplicated response never corrupts
// state, only delays convergence.
package membership

import (
	"sync/atomic"
	"time"

	"github.com/aacfactory/sharedcache/channel"
	"github.com/aacfactory/sharedcache/region"
)

// Adopter is implemented by the Store side of a handle: it knows how to
// snapshot its current bindings for a younger requester, and how to install
// a donated snapshot from an older one.
type Adopter interface {
	// Snapshot returns this handle's store-lock region and every current
	// binding, for inclusion in an initialize_response.
	Snapshot() (storeLock *region.Region, keys []channel.KeyState)
	// Adopt installs a donated snapshot. Called only when the donor's
	// timestamp is strictly older than what this handle has seen so far.
	Adopt(storeLock *region.Region, keys []channel.KeyState)
}

// Membership runs the handshake for one handle of one named store.
type Membership struct {
	bus           *channel.Bus
	origin        uint64
	initTimestamp int64
	adopter       Adopter
}

// New creates a Membership whose init timestamp is now (wall-clock Unix
// nanoseconds — only relative order matters for election).
func New(bus *channel.Bus, origin uint64, now time.Time, adopter Adopter) *Membership {
	return &Membership{
		bus:           bus,
		origin:        origin,
		initTimestamp: now.UnixNano(),
		adopter:       adopter,
	}
}

// InitTimestamp returns the handle's current election timestamp. It only
// ever decreases, each decrease marking a successful adoption.
func (m *Membership) InitTimestamp() int64 {
	return atomic.LoadInt64(&m.initTimestamp)
}

// Announce broadcasts this handle's initialize_request. Any strictly older
// peer on the bus will respond asynchronously; HandleMessage processes that
// response whenever the bus delivers it.
func (m *Membership) Announce() {
	m.bus.Publish(channel.Message{
		Action:    channel.ActionInitializeRequest,
		Timestamp: atomic.LoadInt64(&m.initTimestamp),
		Origin:    m.origin,
	})
}

// HandleMessage reacts to initialize_request and initialize_response
// messages observed on the bus; the Store wires this into its dispatch of
// every inbound Message. Other actions are ignored.
func (m *Membership) HandleMessage(msg channel.Message) {
	switch msg.Action {
	case channel.ActionInitializeRequest:
		m.respondIfOlder(msg.Timestamp)
	case channel.ActionInitializeResponse:
		m.adoptIfOlder(msg)
	}
}

func (m *Membership) respondIfOlder(requesterTimestamp int64) {
	mine := atomic.LoadInt64(&m.initTimestamp)
	if mine >= requesterTimestamp {
		// We are not older than the requester; the spec assigns the
		// donor role only to strictly older peers.
		return
	}
	storeLock, keys := m.adopter.Snapshot()
	m.bus.Publish(channel.Message{
		Action:    channel.ActionInitializeResponse,
		Timestamp: mine,
		StoreLock: storeLock,
		Keys:      keys,
		Origin:    m.origin,
	})
}

func (m *Membership) adoptIfOlder(msg channel.Message) {
	for {
		mine := atomic.LoadInt64(&m.initTimestamp)
		if msg.Timestamp >= mine {
			// Not strictly older than what we have already adopted (or
			// started with); ignore. This is what makes redundant or
			// out-of-order responses idempotent.
			return
		}
		if atomic.CompareAndSwapInt64(&m.initTimestamp, mine, msg.Timestamp) {
			m.adopter.Adopt(msg.StoreLock, msg.Keys)
			return
		}
	}
}
