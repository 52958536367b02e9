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
	"runtime"
	"testing"
	"time"

	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/test/testutil"
)

type fakeTarget struct {
	obj *heap.Object
}

func (f *fakeTarget) WaitObject() *heap.Object {
	return f.obj
}

func TestAttachDetach(t *testing.T) {
	l := NewList()
	t1, err := l.Attach("first")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t2, err := l.Attach("second")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if t1.ID() == t2.ID() {
		t.Errorf("threads share id %v", t1.ID())
	}
	if t1.ID() == 0 || t2.ID() == 0 {
		t.Error("allocated id 0; 0 means unowned in a thin lock")
	}
	if got := l.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	if got := l.Lookup(t1.ID()); got != t1 {
		t.Errorf("Lookup(%v) = %v, want %v", t1.ID(), got, t1)
	}
	if got := l.NameOf(t2.ID()); got != "second" {
		t.Errorf("NameOf(%v) = %q, want %q", t2.ID(), got, "second")
	}

	l.Detach(t1)
	if got := l.Lookup(t1.ID()); got != nil {
		t.Errorf("Lookup of detached thread = %v, want nil", got)
	}
	if got := t1.State(); got != StateTerminated {
		t.Errorf("detached thread state is %v, want %v", got, StateTerminated)
	}
	if got := l.NameOf(t1.ID()); got != "unknown" {
		t.Errorf("NameOf(detached) = %q, want %q", got, "unknown")
	}
}

func TestInterruptFlag(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	if th.Interrupted() {
		t.Error("fresh thread is interrupted")
	}
	th.Interrupt()
	if !th.Interrupted() {
		t.Error("Interrupt did not set the flag")
	}
	// Interrupted reads without clearing; ClearInterrupt consumes.
	if !th.Interrupted() {
		t.Error("Interrupted cleared the flag")
	}
	if !th.ClearInterrupt() {
		t.Error("ClearInterrupt returned false for a set flag")
	}
	if th.ClearInterrupt() {
		t.Error("ClearInterrupt returned true for a cleared flag")
	}
}

func TestParkTimeout(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	target := &fakeTarget{obj: heap.NewObject("java.lang.Object")}

	if interrupted := th.BeginWait(target); interrupted {
		t.Fatal("BeginWait reported an interrupt on a fresh thread")
	}
	if !th.Park(5 * time.Millisecond) {
		t.Error("Park did not report a timeout")
	}
	th.EndWait()
}

func TestNotifyWaitTargetsMatch(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	target := &fakeTarget{obj: heap.NewObject("java.lang.Object")}
	other := &fakeTarget{obj: heap.NewObject("java.lang.Object")}

	if interrupted := th.BeginWait(target); interrupted {
		t.Fatal("BeginWait reported an interrupt on a fresh thread")
	}
	// A notify for a different monitor must not wake this thread.
	if th.NotifyWait(other) {
		t.Error("NotifyWait delivered a wake for the wrong target")
	}
	if !th.NotifyWait(target) {
		t.Error("NotifyWait skipped a thread parked on its target")
	}
	if th.Park(time.Second) {
		t.Error("Park timed out despite a delivered wake")
	}
	th.EndWait()

	// After EndWait the thread is no longer parked on anything.
	if th.NotifyWait(target) {
		t.Error("NotifyWait delivered a wake after EndWait")
	}
}

func TestStaleWakeDrained(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	target := &fakeTarget{obj: heap.NewObject("java.lang.Object")}

	// Deliver a wake, then leave the wait without consuming it.
	th.BeginWait(target)
	th.NotifyWait(target)
	th.EndWait()

	// The stale token must not satisfy the next park.
	th.BeginWait(target)
	if !th.Park(5 * time.Millisecond) {
		t.Error("stale wake token satisfied a fresh park")
	}
	th.EndWait()
}

func TestInterruptWakesWaiter(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	target := &fakeTarget{obj: heap.NewObject("java.lang.Object")}

	done := make(chan bool, 1)
	go func() {
		if interrupted := th.BeginWait(target); interrupted {
			th.EndWait()
			done <- false
			return
		}
		timedOut := th.Park(10 * time.Second)
		th.EndWait()
		done <- timedOut
	}()

	if err := testutil.Poll(func() error {
		if th.WaitingOn() != target {
			return fmt.Errorf("thread not yet parked")
		}
		return nil
	}, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	th.Interrupt()
	if timedOut := <-done; timedOut {
		t.Error("interrupt did not wake the parked thread")
	}
	if !th.Interrupted() {
		t.Error("interrupt flag not set")
	}
}

func TestSuspendParksAtCheck(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-stop:
				return
			default:
			}
			th.CheckSuspend()
			runtime.Gosched()
		}
	}()

	// Suspend blocks until the thread parks in CheckSuspend.
	l.Suspend(th)
	if got := th.State(); got != StateSuspended {
		t.Errorf("suspended thread state is %v, want %v", got, StateSuspended)
	}
	l.Resume(th)

	if err := testutil.Poll(func() error {
		if got := th.State(); got != StateRunnable {
			return fmt.Errorf("state is %v, want %v", got, StateRunnable)
		}
		return nil
	}, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	close(stop)
	<-exited
}

func TestSuspendCountNests(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-stop:
				return
			default:
			}
			th.CheckSuspend()
			runtime.Gosched()
		}
	}()

	l.Suspend(th)
	l.Suspend(th)
	l.Resume(th)
	// One suspension is still pending.
	if got := th.State(); got != StateSuspended {
		t.Errorf("state is %v after partial resume, want %v", got, StateSuspended)
	}
	l.Resume(th)
	if err := testutil.Poll(func() error {
		if got := th.State(); got != StateRunnable {
			return fmt.Errorf("state is %v, want %v", got, StateRunnable)
		}
		return nil
	}, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	close(stop)
	<-exited
}

func TestSuspendOfBlockedThread(t *testing.T) {
	l := NewList()
	th, _ := l.Attach("t")
	target := &fakeTarget{obj: heap.NewObject("java.lang.Object")}

	parked := make(chan struct{})
	released := make(chan struct{})
	go func() {
		th.BeginWait(target)
		prev := th.EnterState(StateWaiting)
		close(parked)
		th.Park(-1)
		th.EndWait()
		// ExitState must hold the thread here while it is suspended.
		th.ExitState(prev)
		close(released)
	}()

	<-parked
	// A thread published in a wait state counts as safepointed; Suspend must
	// not block on it.
	l.Suspend(th)

	// Wake the thread; it may leave the wait but not become runnable.
	th.NotifyWait(target)
	select {
	case <-released:
		t.Fatal("suspended thread re-entered runnable code")
	case <-time.After(50 * time.Millisecond):
	}

	l.Resume(th)
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("resumed thread never became runnable")
	}
	if got := th.State(); got != StateRunnable {
		t.Errorf("state is %v, want %v", got, StateRunnable)
	}
}
