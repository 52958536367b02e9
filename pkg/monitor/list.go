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

package monitor

import (
	"github.com/google/btree"

	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/log"
	"objvm.dev/objvm/pkg/sync"
)

// List is the process-wide set of live monitors. It participates in garbage
// collection: monitors of dead objects are swept, and eligible monitors are
// deflated during a collection pause.
//
// Lock ordering: List.mu is never acquired while holding a monitor's internal
// mutex by mutator code. The GC's sweep and deflation passes acquire both,
// which is safe because mutators are stopped.
type List struct {
	// mu protects the fields below.
	mu sync.Mutex

	// allowNewCond is signalled when allowNew becomes true.
	allowNewCond *sync.Cond

	// allowNew is false while the GC's weak-reference processing phase is
	// running; Add blocks until it turns true again.
	allowNew bool

	// monitors is the live set, ordered by id for deterministic sweep and
	// deflation passes.
	monitors *btree.BTreeG[*Monitor]

	// pool owns the id space the listed monitors are registered in.
	pool *pool
}

func newList(p *pool) *List {
	l := &List{
		allowNew: true,
		monitors: btree.NewG(8, func(a, b *Monitor) bool { return a.id < b.id }),
		pool:     p,
	}
	l.allowNewCond = sync.NewCond(&l.mu)
	return l
}

// add registers a freshly inflated monitor, blocking while new-monitor
// publication is disabled.
func (l *List) add(m *Monitor) {
	l.mu.Lock()
	for !l.allowNew {
		l.allowNewCond.Wait()
	}
	l.monitors.ReplaceOrInsert(m)
	l.mu.Unlock()
}

// remove unregisters a monitor whose installing CAS lost its race.
func (l *List) remove(m *Monitor) {
	l.mu.Lock()
	l.monitors.Delete(m)
	l.mu.Unlock()
}

// Count returns the number of live monitors.
func (l *List) Count() int {
	l.mu.Lock()
	n := l.monitors.Len()
	l.mu.Unlock()
	return n
}

// DisableNew stops publication of new monitors for the GC's weak-reference
// phase. Inflating threads block in add until EnableNew and BroadcastNew.
func (l *List) DisableNew() {
	l.mu.Lock()
	l.allowNew = false
	l.mu.Unlock()
}

// EnableNew re-enables publication of new monitors.
func (l *List) EnableNew() {
	l.mu.Lock()
	l.allowNew = true
	l.mu.Unlock()
}

// BroadcastNew wakes threads blocked in add.
func (l *List) BroadcastNew() {
	l.mu.Lock()
	l.allowNewCond.Broadcast()
	l.mu.Unlock()
}

// Sweep releases every monitor whose object did not survive the current
// collection, returning the number swept. The object pointer is read without
// a read barrier: the sweeper is the GC.
//
// Preconditions: mutators are stopped.
func (l *List) Sweep(isLive func(obj *heap.Object) bool) int {
	l.mu.Lock()
	var dead []*Monitor
	l.monitors.Ascend(func(m *Monitor) bool {
		if obj := m.objectForSweep(); obj == nil || !isLive(obj) {
			dead = append(dead, m)
		}
		return true
	})
	for _, m := range dead {
		m.releaseForSweep()
		l.monitors.Delete(m)
		l.pool.release(m.id)
	}
	l.mu.Unlock()
	if len(dead) > 0 {
		log.Debugf("swept %d monitors of dead objects", len(dead))
	}
	return len(dead)
}

// DeflateAll reverts every eligible monitor's object to a thin, hash-code or
// unlocked header word and drops the monitor, returning the number deflated.
//
// Preconditions: mutators are stopped, or the caller holds the exclusive
// run-state lock.
func (l *List) DeflateAll() int {
	l.mu.Lock()
	var deflated []*Monitor
	l.monitors.Ascend(func(m *Monitor) bool {
		if m.deflate() {
			deflated = append(deflated, m)
		}
		return true
	})
	for _, m := range deflated {
		l.monitors.Delete(m)
		l.pool.release(m.id)
	}
	l.mu.Unlock()
	if len(deflated) > 0 {
		log.Debugf("deflated %d monitors", len(deflated))
	}
	return len(deflated)
}
