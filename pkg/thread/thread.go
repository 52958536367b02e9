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

// Package thread provides the per-thread records the monitor subsystem hangs
// off of: published run states, the wait record used by Object.wait, and the
// thread list with cooperative suspension.
package thread

import (
	"sync/atomic"
	"time"

	"objvm.dev/objvm/pkg/atomicbitops"
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/stack"
	"objvm.dev/objvm/pkg/sync"
)

// WaitTarget is what a thread may be parked on; it is implemented by the fat
// lock monitor. The indirection keeps this package from depending on the
// monitor package.
type WaitTarget interface {
	// WaitObject returns the managed object whose monitor the wait is on
	// for diagnostics, or nil if the monitor has been deflated.
	WaitObject() *heap.Object
}

// Thread is a VM thread record. It is created at thread attach and destroyed
// at detach; in particular the wait record exists for the whole interval in
// between, so waiting never allocates.
type Thread struct {
	// tid and name are immutable.
	tid  ID
	name string

	// state is the published run state, read racily by the GC and
	// introspection. Writes go through EnterState/ExitState so that they
	// also wake suspension requesters.
	state atomicbitops.Int32

	// waitMu protects interrupted and waitMonitor.
	//
	// Lock ordering: a monitor's internal mutex may be held when waitMu is
	// acquired, never the reverse.
	waitMu sync.Mutex

	// interrupted is the thread's interrupt flag.
	interrupted bool

	// waitMonitor is the monitor this thread is parked on inside a wait, or
	// nil. Notifiers and interrupters use it to decide whether a wake is
	// deliverable.
	waitMonitor WaitTarget

	// wake is the wait parking channel, with capacity for one pending wake.
	// A Waiter-style channel rather than a condition variable so that timed
	// waits can select against a timer.
	wake chan struct{}

	// waitNext links this thread onto exactly one monitor's wait set.
	// Protected by that monitor's internal mutex.
	waitNext *Thread

	// contendedObj is the object this thread is blocked trying to lock,
	// stashed during the pre-block transition for introspection.
	contendedObj atomic.Pointer[heap.Object]

	// suspendMu protects the fields below.
	suspendMu sync.Mutex

	// suspendCount is the number of pending suspensions.
	suspendCount int32

	// parked is true while the thread is parked in checkSuspendLocked.
	parked bool

	// suspendCond is signalled when suspendCount drops to zero.
	suspendCond *sync.Cond

	// safepointCond is signalled whenever the thread reaches a safepoint, so
	// that Suspend callers can stop waiting.
	safepointCond *sync.Cond

	// sleepToken is the private object Thread.sleep waits on.
	sleepToken *heap.Object

	// frames is the managed call stack. It is owned by the thread goroutine;
	// introspection reads it only while the thread is suspended or otherwise
	// known to be stopped.
	frames []stack.Frame
}

func newThread(tid ID, name string) *Thread {
	t := &Thread{
		tid:        tid,
		name:       name,
		wake:       make(chan struct{}, 1),
		sleepToken: heap.NewObject("java.lang.Thread$SleepToken"),
	}
	t.suspendCond = sync.NewCond(&t.suspendMu)
	t.safepointCond = sync.NewCond(&t.suspendMu)
	return t
}

// ID returns the thread's id.
func (t *Thread) ID() ID {
	return t.tid
}

// Name returns the thread's name.
func (t *Thread) Name() string {
	return t.name
}

// SleepToken returns the private object Thread.sleep waits on.
func (t *Thread) SleepToken() *heap.Object {
	return t.sleepToken
}

// State returns the thread's published run state.
func (t *Thread) State() State {
	return State(t.state.Load())
}

// EnterState publishes s, a safepoint state, before the thread blocks. It
// returns the previous state for ExitState.
//
// Preconditions: s.AtSafepoint().
func (t *Thread) EnterState(s State) State {
	t.suspendMu.Lock()
	prev := State(t.state.Load())
	t.state.Store(int32(s))
	// The thread is now at a safepoint; unblock any Suspend caller.
	t.safepointCond.Broadcast()
	t.suspendMu.Unlock()
	return prev
}

// ExitState restores the state saved by EnterState. If a suspension is
// pending the thread parks here until resumed, so a woken thread cannot
// re-enter runnable code under an active suspend request.
//
// Preconditions: the caller holds no monitor's internal mutex.
func (t *Thread) ExitState(prev State) {
	t.suspendMu.Lock()
	t.checkSuspendLocked()
	t.state.Store(int32(prev))
	t.suspendMu.Unlock()
}

// CheckSuspend parks the calling thread while a suspension is pending. VM
// code calls this at safepoints.
func (t *Thread) CheckSuspend() {
	t.suspendMu.Lock()
	t.checkSuspendLocked()
	t.suspendMu.Unlock()
}

// Preconditions: t.suspendMu must be locked.
func (t *Thread) checkSuspendLocked() {
	if t.suspendCount == 0 {
		return
	}
	prev := State(t.state.Load())
	t.state.Store(int32(StateSuspended))
	t.parked = true
	t.safepointCond.Broadcast()
	for t.suspendCount > 0 {
		t.suspendCond.Wait()
	}
	t.parked = false
	t.state.Store(int32(prev))
}

// beginSuspend raises the suspend count and waits until the thread is at a
// safepoint: parked in CheckSuspend, or published in a non-runnable state
// from which it cannot leave without passing through ExitState.
func (t *Thread) beginSuspend() {
	t.suspendMu.Lock()
	t.suspendCount++
	for !t.parked && !State(t.state.Load()).AtSafepoint() {
		t.safepointCond.Wait()
	}
	t.suspendMu.Unlock()
}

// endSuspend drops one suspension and wakes the thread if none remain.
func (t *Thread) endSuspend() {
	t.suspendMu.Lock()
	if t.suspendCount <= 0 {
		panic("endSuspend without matching beginSuspend")
	}
	t.suspendCount--
	if t.suspendCount == 0 {
		t.suspendCond.Broadcast()
	}
	t.suspendMu.Unlock()
}

// Interrupt sets t's interrupt flag and, if t is parked in a wait, wakes it.
// The woken thread observes the flag after re-acquiring its monitor.
func (t *Thread) Interrupt() {
	t.waitMu.Lock()
	t.interrupted = true
	if t.waitMonitor != nil {
		t.notifyWakeLocked()
	}
	t.waitMu.Unlock()
}

// Interrupted returns t's interrupt flag.
func (t *Thread) Interrupted() bool {
	t.waitMu.Lock()
	i := t.interrupted
	t.waitMu.Unlock()
	return i
}

// ClearInterrupt clears t's interrupt flag, returning its previous value.
func (t *Thread) ClearInterrupt() bool {
	t.waitMu.Lock()
	i := t.interrupted
	t.interrupted = false
	t.waitMu.Unlock()
	return i
}

// BeginWait publishes that t is parked on target, so notifiers and
// interrupters can find it, and drains any stale wake token. It returns the
// interrupt flag as observed atomically with the publication: if set, the
// caller must not park.
//
// Preconditions: the caller is t, and holds target's internal mutex (making
// the publication atomic with respect to notify).
func (t *Thread) BeginWait(target WaitTarget) (interrupted bool) {
	t.waitMu.Lock()
	select {
	case <-t.wake:
	default:
	}
	t.waitMonitor = target
	interrupted = t.interrupted
	t.waitMu.Unlock()
	return interrupted
}

// EndWait withdraws the publication made by BeginWait. A notify delivered
// after EndWait is skipped by the notifier; one delivered before remains as a
// token in the wake channel and is consumed by the next BeginWait's drain.
func (t *Thread) EndWait() {
	t.waitMu.Lock()
	t.waitMonitor = nil
	t.waitMu.Unlock()
}

// Park blocks until a wake is delivered, or until timeout elapses if timeout
// is non-negative. It returns whether the park timed out.
//
// Preconditions: BeginWait has been called without an intervening EndWait,
// and reported interrupted=false.
func (t *Thread) Park(timeout time.Duration) (timedOut bool) {
	if timeout < 0 {
		<-t.wake
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.wake:
		return false
	case <-timer.C:
		return true
	}
}

// NotifyWait delivers a wake to t iff t is currently parked on target.
// Returns whether the wake was delivered; a thread that has already left the
// wait (a racing interrupt or timeout) is skipped.
func (t *Thread) NotifyWait(target WaitTarget) bool {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	if t.waitMonitor != target {
		return false
	}
	t.notifyWakeLocked()
	return true
}

// WaitingOn returns the monitor t is parked on, or nil.
func (t *Thread) WaitingOn() WaitTarget {
	t.waitMu.Lock()
	wt := t.waitMonitor
	t.waitMu.Unlock()
	return wt
}

// Preconditions: t.waitMu must be locked.
func (t *Thread) notifyWakeLocked() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// NextWaiter returns the next thread on the wait set t is enqueued on.
//
// Preconditions: the owning monitor's internal mutex must be locked.
func (t *Thread) NextWaiter() *Thread {
	return t.waitNext
}

// SetNextWaiter links next after t on a wait set.
//
// Preconditions: the owning monitor's internal mutex must be locked.
func (t *Thread) SetNextWaiter(next *Thread) {
	t.waitNext = next
}

// SetContendedObject stashes the object t is about to block on, or clears it
// with nil.
func (t *Thread) SetContendedObject(obj *heap.Object) {
	t.contendedObj.Store(obj)
}

// ContendedObject returns the object t is blocked trying to lock, or nil.
func (t *Thread) ContendedObject() *heap.Object {
	return t.contendedObj.Load()
}

// PushFrame pushes a managed frame. Called by the interpreter on the thread's
// own goroutine.
func (t *Thread) PushFrame(f stack.Frame) {
	t.frames = append(t.frames, f)
}

// PopFrame pops the top managed frame.
func (t *Thread) PopFrame() {
	t.frames = t.frames[:len(t.frames)-1]
}

// Frames returns the managed call stack, innermost frame last.
//
// Preconditions: t is the caller, or t is suspended.
func (t *Thread) Frames() []stack.Frame {
	return t.frames
}
