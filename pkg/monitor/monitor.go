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

// Package monitor implements the object-monitor subsystem: the thin/fat lock
// state machine embedded in each object's header word, the fat-lock Monitor
// record, the process-wide monitor list, and the lock, unlock, wait, notify
// and interrupt entry points the rest of the VM calls.
package monitor

import (
	"time"

	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/lockword"
	"objvm.dev/objvm/pkg/sync"
	"objvm.dev/objvm/pkg/thread"
	"objvm.dev/objvm/pkg/vmerr"
)

// Monitor is the fat lock: the out-of-line representation of an object's lock
// once the header word can no longer express it.
type Monitor struct {
	// sys is the owning subsystem. Immutable.
	sys *System

	// id is the stable identifier stored in any fat header word that names
	// this monitor. Immutable between install and release.
	id uint32

	// mu is the monitor's internal mutex, protecting every field below and
	// the wait set threaded through thread records.
	//
	// Lock ordering: mu < thread wait mutex; the thread list lock is only
	// taken after mu is released.
	mu sync.Mutex

	// contenders is signalled each time the monitor is released.
	contenders *sync.Cond

	// owner is the current holder, or nil. It is a logical handle, not a
	// strong reference: it is cleared on every release, and diagnostics
	// re-resolve the tid against the thread list.
	owner *thread.Thread

	// recursion is the owner's acquisition count minus one.
	recursion uint32

	// waitSet is the head of the FIFO list of threads suspended in wait,
	// linked through their NextWaiter fields; waitTail is its last element.
	waitSet  *thread.Thread
	waitTail *thread.Thread

	// numWaiters counts wait-suspended threads plus contending threads. A
	// monitor is only eligible for deflation when it reaches zero.
	numWaiters int

	// hashCode is the object's identity hash: zero until materialized, then
	// stable for the life of the monitor.
	hashCode uint32

	// obj is the back-pointer to the locked object. It is nulled when the
	// monitor is deflated or swept.
	obj *heap.Object
}

func newMonitor(sys *System, obj *heap.Object, owner *thread.Thread, recursion uint32, hash uint32) *Monitor {
	m := &Monitor{
		sys:       sys,
		obj:       obj,
		owner:     owner,
		recursion: recursion,
		hashCode:  hash,
	}
	m.contenders = sync.NewCond(&m.mu)
	return m
}

// ID returns the monitor's stable id.
func (m *Monitor) ID() uint32 {
	return m.id
}

// Object returns the monitor's object, or nil if it has been deflated.
func (m *Monitor) Object() *heap.Object {
	m.mu.Lock()
	obj := m.obj
	m.mu.Unlock()
	return obj
}

// WaitObject implements thread.WaitTarget.WaitObject.
func (m *Monitor) WaitObject() *heap.Object {
	return m.Object()
}

// Preconditions: m.mu must be locked.
func (m *Monitor) tryLockLocked(self *thread.Thread) bool {
	switch m.owner {
	case nil:
		m.owner = self
		m.recursion = 0
		return true
	case self:
		// Recursive acquisition. The count cannot overflow in practice: a
		// pathological depth bounces off stack limits long before reaching
		// machine limits.
		m.recursion++
		return true
	default:
		return false
	}
}

// TryLock acquires m for self iff that requires no blocking.
func (m *Monitor) TryLock(self *thread.Thread) bool {
	m.mu.Lock()
	ok := m.tryLockLocked(self)
	m.mu.Unlock()
	return ok
}

// Lock acquires m for self, blocking while another thread holds it. A
// contended acquisition publishes the Blocked state and the contended object
// for the GC and introspection. Interruption does not abort a contended
// acquisition.
func (m *Monitor) Lock(self *thread.Thread) {
	m.mu.Lock()
	if m.tryLockLocked(self) {
		m.mu.Unlock()
		return
	}

	// Contended.
	m.numWaiters++
	obj := m.obj
	m.mu.Unlock()

	self.SetContendedObject(obj)
	prev := self.EnterState(thread.StateBlocked)
	start := m.sys.clock.Now()

	m.mu.Lock()
	for !m.tryLockLocked(self) {
		m.contenders.Wait()
	}
	m.numWaiters--
	m.mu.Unlock()

	self.ExitState(prev)
	self.SetContendedObject(nil)

	if d := m.sys.clock.Now().Sub(start); m.sys.lockProfileThreshold > 0 && d >= m.sys.lockProfileThreshold {
		m.sys.contentionLog.Warningf("long monitor contention on %s: thread %d (%s) blocked for %v",
			obj.ClassName(), self.ID(), self.Name(), d.Round(time.Microsecond))
	}
}

// Unlock releases one acquisition of m by self. It fails with
// IllegalMonitorState, leaving the monitor unchanged, when self is not the
// owner.
func (m *Monitor) Unlock(self *thread.Thread) error {
	m.mu.Lock()
	if m.owner != self {
		err := m.notOwnerLocked("unlock", self)
		m.mu.Unlock()
		return err()
	}
	if m.recursion > 0 {
		m.recursion--
		m.mu.Unlock()
		return nil
	}
	m.owner = nil
	m.contenders.Signal()
	m.mu.Unlock()
	return nil
}

// Wait releases m and parks self until notified, interrupted, or — for a
// timed wait — until the deadline. why selects the published run state. On
// return the calling thread owns m again with its original recursion count;
// the Interrupted failure is reported only after the lock state has been
// restored.
func (m *Monitor) Wait(self *thread.Thread, ms int64, ns int32, interruptible bool, why thread.State) error {
	m.mu.Lock()
	if m.owner != self {
		err := m.notOwnerLocked("wait", self)
		m.mu.Unlock()
		return err()
	}
	if ms < 0 || ns < 0 || ns > 999999 {
		m.mu.Unlock()
		return vmerr.ErrBadTimeout
	}

	// Release the monitor to a contender and publish the wait.
	// BeginWait runs under m.mu, so a notifier scanning the wait set cannot
	// miss the publication; it also reports an interrupt flag that was
	// already set, in which case the thread never parks.
	prevRecursion := m.recursion
	obj := m.obj
	m.recursion = 0
	m.owner = nil
	m.appendToWaitSetLocked(self)
	m.numWaiters++
	wasInterrupted := self.BeginWait(m)
	m.contenders.Signal()
	m.mu.Unlock()

	prev := self.EnterState(why)
	if !wasInterrupted {
		if why == thread.StateWaiting {
			self.Park(-1)
		} else {
			self.Park(time.Duration(ms)*time.Millisecond + time.Duration(ns)*time.Nanosecond)
		}
	}
	self.EndWait()
	self.ExitState(prev)

	// Re-acquire the monitor and restore the saved lock state. The
	// re-acquire can block behind the notifier for the length of its
	// critical section, so it publishes Blocked like any contended
	// acquisition; a suspension request must not wait on it.
	self.SetContendedObject(obj)
	reacq := self.EnterState(thread.StateBlocked)
	m.mu.Lock()
	m.removeFromWaitSetLocked(self)
	for !m.tryLockLocked(self) {
		m.contenders.Wait()
	}
	m.recursion = prevRecursion
	m.numWaiters--
	m.mu.Unlock()
	self.ExitState(reacq)
	self.SetContendedObject(nil)

	if interruptible && self.ClearInterrupt() {
		return vmerr.ErrInterrupted
	}
	return nil
}

// Notify wakes the head of m's wait set. A detached waiter that has already
// left the wait (a racing interrupt or timeout) is skipped and the wake is
// consumed.
func (m *Monitor) Notify(self *thread.Thread) error {
	return m.notify(self, false)
}

// NotifyAll wakes every thread on m's wait set, in enqueue order. Woken
// threads re-contend for the monitor, so only one re-enters at a time.
func (m *Monitor) NotifyAll(self *thread.Thread) error {
	return m.notify(self, true)
}

func (m *Monitor) notify(self *thread.Thread, all bool) error {
	m.mu.Lock()
	if m.owner != self {
		op := "notify"
		if all {
			op = "notifyAll"
		}
		err := m.notOwnerLocked(op, self)
		m.mu.Unlock()
		return err()
	}
	if all {
		for m.waitSet != nil {
			t := m.waitSet
			m.removeFromWaitSetLocked(t)
			t.NotifyWait(m)
		}
	} else if m.waitSet != nil {
		// The wait-set head consumes the wake even if it raced out of its
		// wait via interrupt or timeout.
		t := m.waitSet
		m.removeFromWaitSetLocked(t)
		t.NotifyWait(m)
	}
	m.mu.Unlock()
	return nil
}

// Preconditions: m.mu must be locked.
func (m *Monitor) appendToWaitSetLocked(t *thread.Thread) {
	t.SetNextWaiter(nil)
	if m.waitSet == nil {
		m.waitSet = t
	} else {
		m.waitTail.SetNextWaiter(t)
	}
	m.waitTail = t
}

// removeFromWaitSetLocked splices t out of the wait set. It is a harmless
// no-op if t is not present.
//
// Preconditions: m.mu must be locked.
func (m *Monitor) removeFromWaitSetLocked(t *thread.Thread) {
	if m.waitSet == nil {
		return
	}
	if m.waitSet == t {
		m.waitSet = t.NextWaiter()
		if m.waitTail == t {
			m.waitTail = nil
		}
		t.SetNextWaiter(nil)
		return
	}
	for cur := m.waitSet; cur.NextWaiter() != nil; cur = cur.NextWaiter() {
		if cur.NextWaiter() == t {
			if m.waitTail == t {
				m.waitTail = cur
			}
			cur.SetNextWaiter(t.NextWaiter())
			t.SetNextWaiter(nil)
			return
		}
	}
}

// HashCode returns the monitor's identity hash, materializing it on first
// use.
func (m *Monitor) HashCode() uint32 {
	m.mu.Lock()
	if m.hashCode == 0 {
		m.hashCode = m.sys.generateHash()
	}
	h := m.hashCode
	m.mu.Unlock()
	return h
}

// deflate attempts to revert m's object header to a thin, hash-code or
// unlocked word, returning whether it did. A monitor with waiters or
// contenders, an owned monitor whose recursion exceeds the thin maximum, and
// an owned monitor with a materialized hash are all left inflated.
//
// Preconditions: mutators are stopped.
func (m *Monitor) deflate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numWaiters > 0 || m.waitSet != nil {
		return false
	}
	old := m.obj.Header()
	rb := old.ReadBarrierState()
	var new lockword.Word
	switch {
	case m.owner != nil:
		if m.recursion > lockword.MaxThinRecursion || m.hashCode != 0 {
			return false
		}
		new = lockword.FromThin(uint16(m.owner.ID()), m.recursion, rb)
	case m.hashCode != 0:
		new = lockword.FromHash(m.hashCode, rb)
	default:
		new = lockword.Unlocked(rb)
	}
	if !m.obj.CasHeader(old, new) {
		return false
	}
	m.obj = nil
	m.owner = nil
	return true
}

// objectForSweep returns m's object for the GC's liveness check. The sweeper
// is the GC itself, so the pointer is read without a read barrier.
//
// Preconditions: mutators are stopped.
func (m *Monitor) objectForSweep() *heap.Object {
	return m.obj
}

// releaseForSweep severs a dead object's monitor before it returns to the
// pool.
//
// Preconditions: mutators are stopped.
func (m *Monitor) releaseForSweep() {
	m.obj = nil
	m.owner = nil
	m.waitSet = nil
	m.waitTail = nil
}

// notOwnerLocked captures the state an IllegalMonitorState report needs and
// returns a closure that builds it. The closure resolves the owner's name
// under the thread list lock, so callers invoke it only after releasing m.mu.
//
// Preconditions: m.mu must be locked.
func (m *Monitor) notOwnerLocked(op string, self *thread.Thread) func() error {
	var ownerTid thread.ID
	if m.owner != nil {
		ownerTid = m.owner.ID()
	}
	obj := m.obj
	return func() error {
		return m.sys.notOwnerError(op, self, ownerTid, obj)
	}
}
