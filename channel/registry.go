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

package channel

import (
	"sync"
	"sync/atomic"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*Bus{}
	nextOrigin uint64
)

// Get returns the process-wide Bus for name, creating it on first use. All
// handles opened with the same store name share this Bus, which is how they
// converge on the same binding set without a designated coordinator.
func Get(name string) *Bus {
	registryMu.Lock()
	defer registryMu.Unlock()
	b, ok := registry[name]
	if !ok {
		b = newBus()
		registry[name] = b
	}
	return b
}

// NewOrigin allocates a process-unique id a handle uses to tag its own
// publishes (Message.Origin) so its own subscription does not echo them
// back.
func NewOrigin() uint64 {
	return atomic.AddUint64(&nextOrigin, 1)
}
