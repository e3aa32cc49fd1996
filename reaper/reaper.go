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

// Package reaper implements the periodic, batched TTL sweep. It never
// broadcasts: every peer holds its own TTL table and independently expires
// the same entries at roughly the same time, so broadcasting every local
// expiry would only storm the channel for no coordination benefit (spec
// §4.5).
package reaper

import (
	"sync"
	"time"
)

// Tick fires once per Interval and is handed up to BatchSize keys to expire
// this round, resuming from wherever the previous tick's cursor stopped.
const (
	Interval  = time.Second
	BatchSize = 250
)

// Expirer is implemented by the Store: it knows how to enumerate candidate
// keys and evict one.
type Expirer interface {
	// ExpiredKeysFrom returns up to limit TTL-table keys starting at cursor
	// (in the table's stable iteration order) whose expiry is <= now, along
	// with the cursor position to resume from next tick and the table's
	// current size.
	ExpiredKeysFrom(cursor int, limit int, now time.Time) (expired []string, nextCursor int, tableSize int)
	// EvictLocal removes a key's binding and TTL entry from this handle's
	// local state only; it must not broadcast.
	EvictLocal(key string)
}

// Reaper runs Expirer's sweep on a ticker until Stop is called.
type Reaper struct {
	expirer Expirer
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	cursor int
}

// Start launches the background sweep goroutine.
func Start(expirer Expirer) *Reaper {
	r := &Reaper{
		expirer: expirer,
		ticker:  time.NewTicker(Interval),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reaper) loop() {
	for {
		select {
		case <-r.ticker.C:
			r.sweepOnce(time.Now())
		case <-r.done:
			return
		}
	}
}

func (r *Reaper) sweepOnce(now time.Time) {
	r.mu.Lock()
	cursor := r.cursor
	r.mu.Unlock()

	expired, next, size := r.expirer.ExpiredKeysFrom(cursor, BatchSize, now)
	if size > 0 {
		next = next % size
	} else {
		next = 0
	}

	r.mu.Lock()
	r.cursor = next
	r.mu.Unlock()

	for _, key := range expired {
		r.expirer.EvictLocal(key)
	}
}

// Stop halts the background goroutine. Idempotent.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}
