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

package region

import (
	"runtime"
	"sync/atomic"
)

// chunkListLock guards the free-chunk list with a CAS spin rather than
// sync.Mutex: the critical section is a slice pop/push of a few words, and
// under heavy concurrent Set/Get traffic a spin with Gosched backoff costs
// less than parking a goroutine for it.
type chunkListLock struct {
	held uint32
}

func (l *chunkListLock) Lock() {
	backoff := 1
	for !l.TryLock() {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < 128 {
			backoff *= 2
		}
	}
}

func (l *chunkListLock) Unlock() {
	atomic.StoreUint32(&l.held, 0)
}

func (l *chunkListLock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.held, 0, 1)
}
