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

// Package store implements the Store component: the in-memory mapping from
// key to (MetaRegion, DataRegion) binding, the TTL table, and the public
// set/get/delete/listKeys/lock/release/clear/close operations built on top
// of region, meta, lock, codec, channel, membership and reaper.
package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aacfactory/errors"
	"github.com/aacfactory/logs"
	"golang.org/x/sync/singleflight"

	"github.com/aacfactory/sharedcache/channel"
	"github.com/aacfactory/sharedcache/codec"
	"github.com/aacfactory/sharedcache/lock"
	"github.com/aacfactory/sharedcache/membership"
	"github.com/aacfactory/sharedcache/meta"
	"github.com/aacfactory/sharedcache/pattern"
	"github.com/aacfactory/sharedcache/reaper"
	"github.com/aacfactory/sharedcache/region"
)

// MaxKeyLength is the spec's upper bound on key length; keys are rejected
// above this, and below length 1.
const MaxKeyLength = 512

// DefaultLockTimeout is used for every lock acquisition unless an Option
// overrides it.
const DefaultLockTimeout = lock.DefaultTimeout

// DefaultHandshakeWindow is how long New waits, after announcing itself to
// the bus, for a donor's initialize_response to land before returning — long
// enough for one broadcast round trip within a process, short enough that a
// brand-new store name (no donor exists) doesn't stall callers.
const DefaultHandshakeWindow = 30 * time.Millisecond

// handshakeWait collapses concurrent New calls for the same store name into
// a single shared wait: when a tight loop opens several handles on a
// brand-new name at once, they all block on one timer instead of each
// starting its own, since whichever donor responds broadcasts to every
// subscriber regardless of who it was addressed to.
var handshakeWait singleflight.Group

type binding struct {
	header *meta.Header
	data   *region.Region
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger attaches a logs.Logger every internal failure is reported to
// before being collapsed to the public sentinel return.
func WithLogger(log logs.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithCodec overrides the default pack/unpack implementation.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLockTimeout overrides the cumulative timeout used by every lock
// acquisition this Store performs internally (set/get/delete/clear).
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithHandshakeWindow overrides DefaultHandshakeWindow.
func WithHandshakeWindow(d time.Duration) Option {
	return func(s *Store) { s.handshakeWindow = d }
}

// Store is one handle's view of a named, peer-shared key-value cache.
type Store struct {
	name   string
	origin uint64
	bus    *channel.Bus
	codec  codec.Codec
	log    logs.Logger

	lockTimeout     time.Duration
	handshakeWindow time.Duration

	mu       sync.RWMutex
	bindings map[string]*binding
	ttl      map[string]time.Time
	ttlOrder []string

	storeLock   meta.Words
	storeLockRW *lock.RW

	membership *membership.Membership
	reaper     *reaper.Reaper

	unsubscribe func()
	closed      int32
}

// New opens a handle on the named store, running the Membership handshake
// before returning so a late-joining peer has a chance to adopt an existing
// donor's state (spec §4.3 / end-to-end scenario 1).
func New(name string, opts ...Option) *Store {
	s := &Store{
		name:            name,
		origin:          channel.NewOrigin(),
		bus:             channel.Get(name),
		codec:           codec.Default,
		lockTimeout:     DefaultLockTimeout,
		handshakeWindow: DefaultHandshakeWindow,
		bindings:        make(map[string]*binding),
		ttl:             make(map[string]time.Time),
		storeLock:       meta.NewStoreLockWords(),
	}
	for _, apply := range opts {
		apply(s)
	}
	s.storeLockRW = lock.New(s.storeLock)

	s.membership = membership.New(s.bus, s.origin, time.Now(), s)
	s.unsubscribe = s.bus.Subscribe(s.origin, s.onMessage)
	s.reaper = reaper.Start(s)

	s.membership.Announce()
	_, _, _ = handshakeWait.Do(s.name, func() (any, error) {
		time.Sleep(s.handshakeWindow)
		return nil, nil
	})
	handshakeWait.Forget(s.name)

	return s
}

func (s *Store) warn(op string, cause error, kv ...string) {
	if s.log == nil {
		return
	}
	entry := s.log.Warn().Cause(errors.Warning("sharedcache: " + op + " failed").WithCause(cause))
	for i := 0; i+1 < len(kv); i += 2 {
		entry = entry.With(kv[i], kv[i+1])
	}
	entry.Message("sharedcache: " + op + " failed")
}

func keyValid(key string) bool {
	return len(key) >= 1 && len(key) <= MaxKeyLength
}

// ---- region.Region plumbing ----

func newBinding(data []byte) *binding {
	h := meta.New(meta.NewRegion())
	d := region.New(len(data))
	copy(d.Bytes(), data)
	h.SetPayloadLen(uint32(len(data)))
	return &binding{header: h, data: d}
}

// ---- public API ----

// Set implements spec §4.2's `set`.
func (s *Store) Set(key string, value any, opts ...SetOption) bool {
	if !keyValid(key) {
		return false
	}
	if value == nil {
		return false
	}
	o := buildSetOptions(opts)

	data, packErr := s.codec.Pack(value)
	if packErr != nil {
		s.warn("set", packErr, "key", key)
		return false
	}
	required := o.MinBufferSize
	if len(data) > required {
		required = len(data)
	}

	s.mu.RLock()
	existing := s.bindings[key]
	s.mu.RUnlock()

	lockedHere := false
	if existing != nil && !o.SkipLock {
		keyLock := lock.New(existing.header.Words)
		if !keyLock.AcquireExclusive(s.lockTimeout) {
			s.warn("set", fmt.Errorf("lock timeout"), "key", key)
			return false
		}
		lockedHere = true
		defer func() {
			if lockedHere {
				keyLock.ReleaseExclusive()
			}
		}()
	}

	var ttlPtr *int64
	hadTTL := false
	if o.TTL > 0 {
		expiry := time.Now().Add(o.TTL)
		s.setLocalTTL(key, expiry)
		ms := expiry.UnixMilli()
		ttlPtr = &ms
	} else {
		s.mu.RLock()
		_, hadTTL = s.ttl[key]
		s.mu.RUnlock()
		s.clearLocalTTL(key)
	}

	reuse := existing != nil && !o.Immutable && existing.data.Len() >= required
	if reuse {
		existing.header.SetPayloadLen(uint32(len(data)))
		copy(existing.data.Bytes(), data)
		// The DataRegion and MetaRegion are the same shared *region.Region
		// every peer that already bound this key is holding, so the byte
		// mutation above and the payload-length update are visible to them
		// without any broadcast. TTL lives in each handle's local map, not
		// in shared memory, so only a TTL change needs to ride a message.
		if o.TTL > 0 || hadTTL {
			s.bus.Publish(channel.Message{
				Action: channel.ActionTTLSet,
				Key:    key,
				TTL:    ttlPtr,
				Origin: s.origin,
			})
		}
		return true
	}

	b := newBinding(data)
	if required > len(data) {
		// grow the freshly allocated DataRegion to the requested capacity
		// so future in-place writes up to minBufferSize avoid reallocating.
		grown := region.New(required)
		copy(grown.Bytes(), data)
		b.data = grown
	}

	if !s.acquireStoreLock(s.lockTimeout) {
		s.warn("set", fmt.Errorf("lock timeout"), "key", key, "stage", "store-lock")
		return false
	}
	s.mu.Lock()
	s.bindings[key] = b
	s.mu.Unlock()
	s.releaseStoreLock()

	s.bus.Publish(channel.Message{
		Action: channel.ActionSet,
		Key:    key,
		Meta:   b.header.Region,
		Data:   b.data,
		TTL:    ttlPtr,
		Origin: s.origin,
	})
	return true
}

// Get implements spec §4.2's `get`.
func (s *Store) Get(key string, skipLock ...bool) (value any, ok bool) {
	s.mu.RLock()
	b := s.bindings[key]
	s.mu.RUnlock()
	if b == nil {
		return nil, false
	}

	skip := len(skipLock) > 0 && skipLock[0]
	var keyLock *lock.RW
	if !skip {
		keyLock = lock.New(b.header.Words)
		if !keyLock.AcquireShared(s.lockTimeout) {
			return nil, false
		}
		defer keyLock.ReleaseShared()
	}

	n := b.header.PayloadLen()
	if n == 0 || int(n) > b.data.Len() {
		return nil, false
	}
	raw := b.data.CopyOut(int(n))

	value, err := s.codec.Unpack(raw)
	if err != nil {
		s.warn("get", err, "key", key)
		return nil, false
	}
	return value, true
}

// Delete implements spec §4.2's `delete`, routing pattern keys to
// DeletePattern.
func (s *Store) Delete(key string) bool {
	if pattern.IsPattern(key) {
		return s.DeletePattern(key)
	}
	s.mu.RLock()
	b := s.bindings[key]
	s.mu.RUnlock()
	if b == nil {
		return false
	}

	keyLock := lock.New(b.header.Words)
	if !keyLock.AcquireExclusive(s.lockTimeout) {
		return false
	}
	if !s.acquireStoreLock(s.lockTimeout) {
		keyLock.ReleaseExclusive()
		return false
	}

	s.mu.Lock()
	delete(s.bindings, key)
	s.mu.Unlock()
	s.clearLocalTTL(key)

	s.releaseStoreLock()
	keyLock.ReleaseExclusive()

	s.bus.Publish(channel.Message{Action: channel.ActionDelete, Key: key, Origin: s.origin})
	return true
}

// DeletePattern implements spec §4.2's `delete_pattern`. It takes the store
// lock first and try-locks each candidate key non-blocking, the reverse
// acquisition order from Set's publish path (spec §5) — the discipline that
// avoids deadlock between the two.
func (s *Store) DeletePattern(p string) bool {
	re, err := pattern.Compile(p)
	if err != nil {
		s.warn("delete_pattern", err, "pattern", p)
		return false
	}

	if !s.acquireStoreLock(s.lockTimeout) {
		return false
	}
	defer s.releaseStoreLock()

	s.mu.RLock()
	candidates := make([]string, 0, len(s.bindings))
	for k := range s.bindings {
		if re.MatchString(k) {
			candidates = append(candidates, k)
		}
	}
	s.mu.RUnlock()

	removed := false
	for _, k := range candidates {
		s.mu.RLock()
		b := s.bindings[k]
		s.mu.RUnlock()
		if b == nil {
			continue
		}
		keyLock := lock.New(b.header.Words)
		if !keyLock.TryAcquireExclusive() {
			continue
		}
		s.mu.Lock()
		delete(s.bindings, k)
		s.mu.Unlock()
		s.clearLocalTTL(k)
		removed = true
	}

	if removed {
		s.bus.Publish(channel.Message{Action: channel.ActionDelete, Pattern: p, Origin: s.origin})
	}
	return removed
}

// ListKeys implements spec §4.2's `list_keys`.
func (s *Store) ListKeys(p ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(p) == 0 || p[0] == "" {
		keys := make([]string, 0, len(s.bindings))
		for k := range s.bindings {
			keys = append(keys, k)
		}
		return keys
	}

	re, err := pattern.Compile(p[0])
	if err != nil {
		s.warn("list_keys", err, "pattern", p[0])
		return []string{}
	}
	keys := make([]string, 0)
	for k := range s.bindings {
		if re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Lock externalizes the per-key exclusive lock for the caller; it only
// succeeds for a key that already has a binding.
func (s *Store) Lock(key string, timeout ...time.Duration) bool {
	s.mu.RLock()
	b := s.bindings[key]
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	t := s.lockTimeout
	if len(timeout) > 0 {
		t = timeout[0]
	}
	return lock.New(b.header.Words).AcquireExclusive(t)
}

// Release externalizes the per-key exclusive unlock for the caller.
func (s *Store) Release(key string) bool {
	s.mu.RLock()
	b := s.bindings[key]
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	lock.New(b.header.Words).ReleaseExclusive()
	return true
}

// Clear implements spec §4.2's `clear`: best-effort store lock, then wipe
// local state, then broadcast regardless.
func (s *Store) Clear() {
	held := s.acquireStoreLock(s.lockTimeout)
	s.mu.Lock()
	s.bindings = make(map[string]*binding)
	s.ttl = make(map[string]time.Time)
	s.ttlOrder = nil
	s.mu.Unlock()
	if held {
		s.releaseStoreLock()
	}
	s.bus.Publish(channel.Message{Action: channel.ActionClear, Origin: s.origin})
}

// Close implements spec §4.2's `close`: stop the reaper, unsubscribe from
// the bus, drop local maps. No broadcast — other peers are unaffected.
func (s *Store) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.reaper.Stop()
	s.unsubscribe()
	s.mu.Lock()
	s.bindings = nil
	s.ttl = nil
	s.ttlOrder = nil
	s.mu.Unlock()
}
