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
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/lockword"
	"objvm.dev/objvm/pkg/stack"
	"objvm.dev/objvm/pkg/thread"
)

// Info is a point-in-time snapshot of an object's monitor, for debugger and
// dump surfaces. Fields may be stale by the time the caller reads them unless
// the owning and waiting threads are suspended.
type Info struct {
	// Owner is the owning thread, or nil if unowned.
	Owner *thread.Thread

	// EntryCount is the owner's acquisition count, including the initial
	// acquisition. Zero when unowned.
	EntryCount uint32

	// Waiters are the threads in the wait set, in notification order.
	Waiters []thread.ID
}

// OwnerOf returns the id of the thread holding obj's lock, or zero when the
// lock is unheld.
func (s *System) OwnerOf(obj *heap.Object) thread.ID {
	w := obj.Header()
	switch w.State() {
	case lockword.StateThin:
		return thread.ID(w.ThinOwner())
	case lockword.StateFat:
		m := s.pool.get(w.MonitorID())
		if m == nil {
			return 0
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.owner == nil {
			return 0
		}
		return m.owner.ID()
	default:
		return 0
	}
}

// MonitorInfo snapshots obj's monitor state. A thin lock reports the in-word
// owner and recursion with no waiters; an unlocked or hash word reports an
// unowned monitor.
func (s *System) MonitorInfo(obj *heap.Object) Info {
	w := obj.Header()
	switch w.State() {
	case lockword.StateThin:
		return Info{
			Owner:      s.threads.Lookup(thread.ID(w.ThinOwner())),
			EntryCount: w.ThinRecursion() + 1,
		}
	case lockword.StateFat:
		m := s.pool.get(w.MonitorID())
		if m == nil {
			return Info{}
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		info := Info{Owner: m.owner}
		if m.owner != nil {
			info.EntryCount = m.recursion + 1
		}
		for t := m.waitSet; t != nil; t = t.NextWaiter() {
			info.Waiters = append(info.Waiters, t.ID())
		}
		return info
	default:
		return Info{}
	}
}

// ContendedMonitorOf returns the object t is blocked entering or waiting on,
// or nil if t is runnable. Meaningful only while t is suspended; a running
// thread's answer is stale immediately.
func (s *System) ContendedMonitorOf(t *thread.Thread) *heap.Object {
	switch t.State() {
	case thread.StateBlocked:
		return t.ContendedObject()
	case thread.StateWaiting, thread.StateTimedWaiting:
		if target := t.WaitingOn(); target != nil {
			return target.WaitObject()
		}
		return nil
	default:
		return nil
	}
}

// VisitLocks walks t's stack innermost frame first and reports every object
// whose monitor is held by a frame, invoking visit with the object and the
// holding frame. Proxy frames never hold monitors and are skipped. The
// caller must have t suspended.
func VisitLocks(t *thread.Thread, visit func(obj *heap.Object, f *stack.Frame)) {
	frames := t.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		f := &frames[i]
		m := f.Method
		if m.IsProxy() {
			continue
		}
		if m.IsNative() {
			// The interpreter's locked-register records do not cover native
			// frames; a synchronized native method holds exactly its
			// receiver.
			if m.IsSynchronized() && f.Receiver != nil {
				visit(f.Receiver, f)
			}
			continue
		}
		for _, reg := range m.LockedRegisters(f.PC) {
			if reg < 0 || reg >= len(f.Registers) {
				continue
			}
			if obj := f.Registers[reg]; obj != nil {
				visit(obj, f)
			}
		}
	}
}
