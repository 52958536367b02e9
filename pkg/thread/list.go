// Copyright 2025 The objvm Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package thread

import (
	"fmt"

	"objvm.dev/objvm/pkg/sync"
)

// List comprises all attached threads in a VM. It resolves tids to thread
// records under its own lock, which is ordered after every monitor's internal
// mutex; monitor code resolves owners for diagnostics only after dropping its
// own mutex.
type List struct {
	// mu protects the fields below.
	mu sync.RWMutex

	// last is the last ID to be allocated.
	last ID

	// threads maps IDs to attached threads.
	threads map[ID]*Thread
}

// NewList returns a new, empty thread list.
func NewList() *List {
	return &List{
		threads: make(map[ID]*Thread),
	}
}

// Attach creates a thread record with a fresh tid. The wait record is
// allocated here, never during a wait.
func (l *List) Attach(name string) (*Thread, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.threads) >= int(MaxID) {
		return nil, fmt.Errorf("thread limit %d reached", MaxID)
	}
	tid := l.last
	for {
		tid++
		if tid > MaxID {
			tid = 1
		}
		if _, ok := l.threads[tid]; !ok {
			break
		}
	}
	l.last = tid
	t := newThread(tid, name)
	l.threads[tid] = t
	return t, nil
}

// Detach removes t from the list.
//
// Preconditions: t is not on any monitor's wait set and holds no monitors.
func (l *List) Detach(t *Thread) {
	l.mu.Lock()
	delete(l.threads, t.tid)
	l.mu.Unlock()
	t.state.Store(int32(StateTerminated))
}

// Lookup resolves tid to a thread record, or nil if the thread has detached.
func (l *List) Lookup(tid ID) *Thread {
	l.mu.RLock()
	t := l.threads[tid]
	l.mu.RUnlock()
	return t
}

// NameOf resolves tid to a thread name for diagnostics. Threads outlive the
// monitors they own only logically; if the owner has already detached,
// NameOf reports "unknown".
func (l *List) NameOf(tid ID) string {
	l.mu.RLock()
	t := l.threads[tid]
	l.mu.RUnlock()
	if t == nil {
		return "unknown"
	}
	return t.name
}

// Count returns the number of attached threads.
func (l *List) Count() int {
	l.mu.RLock()
	n := len(l.threads)
	l.mu.RUnlock()
	return n
}

// Range calls f on each attached thread until f returns false.
func (l *List) Range(f func(t *Thread) bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.threads {
		if !f(t) {
			return
		}
	}
}

// Suspend cooperatively suspends t: it raises t's suspend count and blocks
// until t is at a safepoint. Callers must pair it with Resume.
//
// Preconditions: t is not the calling thread.
func (l *List) Suspend(t *Thread) {
	t.beginSuspend()
}

// Resume releases one suspension of t.
func (l *List) Resume(t *Thread) {
	t.endSuspend()
}
