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
	"fmt"
	"runtime"
	"time"

	"objvm.dev/objvm/pkg/config"
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/ktime"
	"objvm.dev/objvm/pkg/lockword"
	"objvm.dev/objvm/pkg/log"
	"objvm.dev/objvm/pkg/sync"
	"objvm.dev/objvm/pkg/thread"
	"objvm.dev/objvm/pkg/vmerr"
)

// System is the monitor subsystem: the monitor pool and list, the inflation
// engine, and the slow-path entry points behind the compiler's inline fast
// paths.
type System struct {
	threads *thread.List
	pool    *pool
	list    *List
	clock   ktime.Clock

	// contentionYields is the number of yields a thread spends spinning on a
	// contended thin lock before inflating it.
	contentionYields int

	// lockProfileThreshold is the contended-acquisition duration beyond
	// which a warning is logged; zero disables the report.
	lockProfileThreshold time.Duration

	// contentionLog rate-limits the long-contention warnings.
	contentionLog log.Logger

	// hashMu protects hashState.
	hashMu sync.Mutex

	// hashState is the identity hash source state; see generateHash.
	hashState uint32
}

// New returns a monitor subsystem for the given thread list.
func New(threads *thread.List, cfg config.Config) *System {
	seed := cfg.HashSeed
	if seed == 0 {
		seed = 0x9e3779b9
	}
	s := &System{
		threads:              threads,
		pool:                 newPool(cfg.MonitorPoolCapacity),
		clock:                ktime.Default(),
		contentionYields:     cfg.ContentionYields,
		lockProfileThreshold: time.Duration(cfg.LockProfileThresholdMs) * time.Millisecond,
		contentionLog:        log.BasicRateLimitedLogger(5 * time.Second),
		hashState:            seed,
	}
	s.list = newList(s.pool)
	return s
}

// MonitorList returns the GC-facing monitor list.
func (s *System) MonitorList() *List {
	return s.list
}

// Enter acquires obj's monitor for self and returns obj. With tryLock set it
// returns (nil, nil) instead of blocking when the acquisition would contend.
func (s *System) Enter(self *thread.Thread, obj *heap.Object, tryLock bool) (*heap.Object, error) {
	for {
		self.CheckSuspend()
		w := obj.Header()
		rb := w.ReadBarrierState()
		switch w.State() {
		case lockword.StateUnlocked:
			if obj.CasHeader(w, lockword.FromThin(uint16(self.ID()), 0, rb)) {
				return obj, nil
			}

		case lockword.StateThin:
			if w.ThinOwner() == uint16(self.ID()) {
				if r := w.ThinRecursion(); r < lockword.MaxThinRecursion {
					if obj.CasHeader(w, lockword.FromThin(uint16(self.ID()), r+1, rb)) {
						return obj, nil
					}
					// Only the GC's read-barrier update can move a header we
					// own; re-read and retry.
					continue
				}
				// Recursion overflow: the word saturates, so take the
				// acquisition on a fat lock.
				m, err := s.inflateOwned(self, obj, w)
				if err != nil {
					return nil, err
				}
				if m == nil {
					continue
				}
				m.Lock(self)
				return obj, nil
			}
			// Held by another thread.
			if tryLock {
				return nil, nil
			}
			if err := s.contendThin(self, obj, w); err != nil {
				return nil, err
			}

		case lockword.StateFat:
			m := s.monitorFor(obj, w)
			if tryLock {
				if m.TryLock(self) {
					return obj, nil
				}
				return nil, nil
			}
			m.Lock(self)
			return obj, nil

		case lockword.StateHash:
			// Locking needs the word; the hash migrates into a monitor.
			if _, err := s.install(obj, nil, 0, w.Hash(), w); err != nil {
				return nil, err
			}

		default:
			panic(fmt.Sprintf("bad lock word %v on %s during monitor enter", w, obj.ClassName()))
		}
	}
}

// Exit releases one acquisition of obj's monitor by self. It fails with
// IllegalMonitorState when self does not own obj.
func (s *System) Exit(self *thread.Thread, obj *heap.Object) error {
	for {
		w := obj.Header()
		rb := w.ReadBarrierState()
		switch w.State() {
		case lockword.StateUnlocked, lockword.StateHash:
			return s.notOwnerError("unlock", self, 0, obj)

		case lockword.StateThin:
			if w.ThinOwner() != uint16(self.ID()) {
				return s.notOwnerError("unlock", self, thread.ID(w.ThinOwner()), obj)
			}
			var nw lockword.Word
			if r := w.ThinRecursion(); r > 0 {
				nw = lockword.FromThin(uint16(self.ID()), r-1, rb)
			} else {
				nw = lockword.Unlocked(rb)
			}
			if obj.CasHeader(w, nw) {
				return nil
			}
			// The GC updated the read-barrier bits; re-read and retry.

		case lockword.StateFat:
			return s.monitorFor(obj, w).Unlock(self)

		default:
			panic(fmt.Sprintf("bad lock word %v on %s during monitor exit", w, obj.ClassName()))
		}
	}
}

// Wait releases obj's monitor and parks self until notified, interrupted or
// timed out. why is one of StateWaiting, StateTimedWaiting or StateSleeping;
// a zero timeout with StateTimedWaiting means an untimed wait.
func (s *System) Wait(self *thread.Thread, obj *heap.Object, ms int64, ns int32, interruptible bool, why thread.State) error {
	if !why.IsWaitState() {
		panic(fmt.Sprintf("wait with run state %v", why))
	}
	if why == thread.StateTimedWaiting && ms == 0 && ns == 0 {
		why = thread.StateWaiting
	}
	for {
		w := obj.Header()
		switch w.State() {
		case lockword.StateUnlocked, lockword.StateHash:
			return s.notOwnerError("wait", self, 0, obj)

		case lockword.StateThin:
			if w.ThinOwner() != uint16(self.ID()) {
				return s.notOwnerError("wait", self, thread.ID(w.ThinOwner()), obj)
			}
			// The wait set lives on the fat lock.
			if _, err := s.inflateOwned(self, obj, w); err != nil {
				return err
			}

		case lockword.StateFat:
			return s.monitorFor(obj, w).Wait(self, ms, ns, interruptible, why)

		default:
			panic(fmt.Sprintf("bad lock word %v on %s during wait", w, obj.ClassName()))
		}
	}
}

// Notify wakes one waiter on obj's monitor.
func (s *System) Notify(self *thread.Thread, obj *heap.Object) error {
	return s.notifyObject(self, obj, false)
}

// NotifyAll wakes every waiter on obj's monitor.
func (s *System) NotifyAll(self *thread.Thread, obj *heap.Object) error {
	return s.notifyObject(self, obj, true)
}

func (s *System) notifyObject(self *thread.Thread, obj *heap.Object, all bool) error {
	op := "notify"
	if all {
		op = "notifyAll"
	}
	for {
		w := obj.Header()
		switch w.State() {
		case lockword.StateUnlocked, lockword.StateHash:
			return s.notOwnerError(op, self, 0, obj)

		case lockword.StateThin:
			if w.ThinOwner() != uint16(self.ID()) {
				return s.notOwnerError(op, self, thread.ID(w.ThinOwner()), obj)
			}
			// A thin lock cannot have waiters; nothing to wake.
			return nil

		case lockword.StateFat:
			m := s.monitorFor(obj, w)
			if all {
				return m.NotifyAll(self)
			}
			return m.Notify(self)

		default:
			panic(fmt.Sprintf("bad lock word %v on %s during %s", w, obj.ClassName(), op))
		}
	}
}

// IdentityHash materializes and returns obj's identity hash. It may inflate
// the lock when obj is thin-locked, since a thin word has no room for a hash.
func (s *System) IdentityHash(self *thread.Thread, obj *heap.Object) (int32, error) {
	for {
		w := obj.Header()
		switch w.State() {
		case lockword.StateUnlocked:
			h := s.generateHash()
			if obj.CasHeader(w, lockword.FromHash(h, w.ReadBarrierState())) {
				return int32(h), nil
			}

		case lockword.StateHash:
			return int32(w.Hash()), nil

		case lockword.StateThin:
			var err error
			if w.ThinOwner() == uint16(self.ID()) {
				_, err = s.inflateOwned(self, obj, w)
			} else {
				err = s.inflateContended(self, obj, w)
			}
			if err != nil {
				return 0, err
			}

		case lockword.StateFat:
			return int32(s.monitorFor(obj, w).HashCode()), nil

		default:
			panic(fmt.Sprintf("bad lock word %v on %s during identity hash", w, obj.ClassName()))
		}
	}
}

// contendThin handles a thin lock held by another thread: it spins briefly in
// case the owner releases, then inflates the lock on the owner's behalf. The
// caller retries its operation afterwards.
func (s *System) contendThin(self *thread.Thread, obj *heap.Object, w lockword.Word) error {
	// Brief yielding lets short critical sections drain without paying for a
	// monitor.
	for i := 0; i < s.contentionYields; i++ {
		self.CheckSuspend()
		runtime.Gosched()
		cur := obj.Header()
		if cur.State() != lockword.StateThin || cur.ThinOwner() != w.ThinOwner() {
			return nil
		}
	}
	return s.inflateContended(self, obj, w)
}

// inflateOwned inflates a thin lock owned by the calling thread, carrying the
// owner and recursion count into the monitor. Returns (nil, nil) when the
// installing CAS loses a race and the caller must retry from the top.
func (s *System) inflateOwned(self *thread.Thread, obj *heap.Object, w lockword.Word) (*Monitor, error) {
	return s.install(obj, self, w.ThinRecursion(), 0, w)
}

// inflateContended inflates a thin lock owned by another thread. The owner is
// cooperatively suspended so the header cannot change under the transfer; the
// lock word is re-verified after the suspension wins.
func (s *System) inflateContended(self *thread.Thread, obj *heap.Object, w lockword.Word) error {
	ownerTid := thread.ID(w.ThinOwner())
	victim := s.threads.Lookup(ownerTid)
	if victim == nil {
		// Threads release their monitors before detaching; a thin lock
		// naming a detached thread is a corrupted header.
		panic(fmt.Sprintf("thin lock on %s names detached thread %v", obj.ClassName(), ownerTid))
	}
	// The suspension blocks until the owner reaches a safepoint, so this
	// thread publishes Blocked for the duration: two threads inflating each
	// other's locks then both count as safepointed and neither suspension
	// waits on the other, and a stop-the-world request is not wedged either.
	// The transfer itself is a CAS against the verified word, and ExitState
	// parks before runnable code resumes if this thread was suspended in the
	// meantime.
	self.SetContendedObject(obj)
	prev := self.EnterState(thread.StateBlocked)
	s.threads.Suspend(victim)
	var err error
	cur := obj.Header()
	if cur.State() == lockword.StateThin && cur.ThinOwner() == w.ThinOwner() {
		_, err = s.install(obj, victim, cur.ThinRecursion(), 0, cur)
	}
	s.threads.Resume(victim)
	self.ExitState(prev)
	self.SetContendedObject(nil)
	return err
}

// install allocates a monitor in the given state and publishes it with a CAS
// from the expected header word. owner, if non-nil, must be the calling
// thread or a thread held suspended. Returns (nil, nil) when the CAS loses;
// the monitor is returned to the pool and the caller retries from the top.
func (s *System) install(obj *heap.Object, owner *thread.Thread, recursion uint32, hash uint32, expected lockword.Word) (*Monitor, error) {
	m := newMonitor(s, obj, owner, recursion, hash)
	id, err := s.pool.allocate(m)
	if err != nil {
		// The header word is left unchanged; the caller reports the
		// exhaustion as a pending out-of-memory.
		return nil, err
	}
	m.id = id
	s.list.add(m)
	if !obj.CasHeader(expected, lockword.FromFat(id, expected.ReadBarrierState())) {
		s.list.remove(m)
		s.pool.release(id)
		return nil, nil
	}
	log.Debugf("inflated monitor %d for %s", id, obj.ClassName())
	return m, nil
}

// monitorFor resolves a fat word to its monitor. Deflation only runs while
// mutators are stopped, so a running thread's fat word always resolves.
func (s *System) monitorFor(obj *heap.Object, w lockword.Word) *Monitor {
	m := s.pool.get(w.MonitorID())
	if m == nil {
		panic(fmt.Sprintf("bad lock word %v on %s: no such monitor", w, obj.ClassName()))
	}
	return m
}

// generateHash returns a non-zero 28-bit identity hash. The policy is a
// seeded xorshift; callers that need a different policy swap the seed via
// configuration.
func (s *System) generateHash() uint32 {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	for {
		s.hashState ^= s.hashState << 13
		s.hashState ^= s.hashState >> 17
		s.hashState ^= s.hashState << 5
		if h := s.hashState & lockword.MaxHash; h != 0 {
			return h
		}
	}
}

// notOwnerError builds the IllegalMonitorState report for op on obj by self.
// The real owner's name is resolved under the thread list lock; callers hold
// no monitor mutex here.
func (s *System) notOwnerError(op string, self *thread.Thread, ownerTid thread.ID, obj *heap.Object) error {
	className := "<deflated>"
	if obj != nil {
		className = obj.ClassName()
	}
	if ownerTid == 0 {
		return vmerr.Newf(vmerr.KindIllegalMonitorState,
			"%s of unowned monitor on object of type %s by thread %v (%s)",
			op, className, self.ID(), self.Name())
	}
	return vmerr.Newf(vmerr.KindIllegalMonitorState,
		"%s of monitor on object of type %s by thread %v (%s): owned by thread %v (%s)",
		op, className, self.ID(), self.Name(), ownerTid, s.threads.NameOf(ownerTid))
}
