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

// Package lock implements the reader/writer lock built on the two atomic
// words (readers, writer) of a meta.Header, and the coarser exclusive-only
// lock of identical shape used for the StoreLockRegion. Acquisition is
// lock-free in the uncontended case (a single CAS or atomic add); a
// contended caller backs off on a bounded, value-keyed wait loop standing in
// for a native futex wait/wake, woken early by the condition variable owned
// by the region.Region itself (region.Region.Notifier), so it never
// outlives the Region it guards.
package lock

import (
	"time"

	"github.com/aacfactory/sharedcache/meta"
	"github.com/aacfactory/sharedcache/region"
)

// DefaultTimeout is the cumulative acquisition timeout used when callers do
// not specify one.
const DefaultTimeout = 1000 * time.Millisecond

// retryInterval bounds how long a single wait round blocks before
// re-checking the word it is waiting on; this is the "10ms" granularity the
// design calls for.
const retryInterval = 10 * time.Millisecond

// wait blocks the calling goroutine until either r's Notifier broadcasts or
// retryInterval elapses, whichever first. It never blocks longer than
// retryInterval, matching the spec's per-retry futex-wait granularity. The
// Cond it waits on is owned by r itself (region.Region.Notifier), not a
// process-wide table, so it has no lifetime beyond r's.
func wait(r *region.Region) {
	c := r.Notifier()
	// c.L is held before the timer is armed, so its Broadcast cannot run
	// until Wait has registered this waiter; the timeout wakeup is never lost.
	c.L.Lock()
	timer := time.AfterFunc(retryInterval, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	c.Wait()
	c.L.Unlock()
	timer.Stop()
}

func notifyOne(r *region.Region) {
	c := r.Notifier()
	c.L.Lock()
	c.Signal()
	c.L.Unlock()
}

func notifyAll(r *region.Region) {
	c := r.Notifier()
	c.L.Lock()
	c.Broadcast()
	c.L.Unlock()
}

// RW is a reader/writer lock over a meta.Words pair. Used both for a
// per-key MetaRegion (full reader/writer semantics) and, in exclusive-only
// mode, for the store-wide StoreLockRegion.
type RW struct {
	words meta.Words
}

// New wraps words as an RW lock.
func New(words meta.Words) *RW {
	return &RW{words: words}
}

// AcquireShared increments readers; if a writer turns out to hold the lock,
// it backs the increment out and waits, retrying until timeout elapses.
func (l *RW) AcquireShared(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	r := l.words.Region
	for {
		l.words.AddReaders(1)
		if l.words.Writer() == 0 {
			return true
		}
		if l.words.AddReaders(-1) == 0 {
			notifyOne(r)
		}
		if time.Now().After(deadline) {
			return false
		}
		wait(r)
	}
}

// ReleaseShared atomically decrements readers; if it reaches zero it wakes
// one waiter (a writer waiting for readers to drain).
func (l *RW) ReleaseShared() {
	if l.words.AddReaders(-1) == 0 {
		notifyOne(l.words.Region)
	}
}

// AcquireExclusive CASes the writer flag 0->1; once held, it spins until
// readers drains to zero. Failure to drain readers before the cumulative
// timeout releases the writer flag and reports failure so no caller is left
// thinking it holds the lock.
func (l *RW) AcquireExclusive(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	r := l.words.Region
	for !l.words.CompareAndSwapWriter(0, 1) {
		if time.Now().After(deadline) {
			return false
		}
		wait(r)
	}
	for l.words.Readers() != 0 {
		if time.Now().After(deadline) {
			l.words.StoreWriter(0)
			notifyAll(r)
			return false
		}
		wait(r)
	}
	return true
}

// ReleaseExclusive clears the writer flag and wakes every waiter.
func (l *RW) ReleaseExclusive() {
	l.words.StoreWriter(0)
	notifyAll(l.words.Region)
}

// TryAcquireExclusive performs a single, non-blocking CAS attempt used by
// delete_pattern's store-lock-first traversal order: it must never wait on a
// key it cannot immediately take, or it would deadlock against a writer
// publishing a new binding in the opposite (key-then-store) order.
func (l *RW) TryAcquireExclusive() bool {
	if !l.words.CompareAndSwapWriter(0, 1) {
		return false
	}
	if l.words.Readers() != 0 {
		l.words.StoreWriter(0)
		notifyAll(l.words.Region)
		return false
	}
	return true
}
