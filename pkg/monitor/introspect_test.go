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
	"testing"

	"github.com/google/go-cmp/cmp"
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/stack"
	"objvm.dev/objvm/pkg/test/testutil"
	"objvm.dev/objvm/pkg/thread"
)

func TestContendedMonitorOfWaiter(t *testing.T) {
	s, threads := newTestSystem(t)
	self := attach(t, threads, "main")
	waiter := attach(t, threads, "waiter")
	obj := heap.NewObject("java.lang.Object")

	if got := s.ContendedMonitorOf(waiter); got != nil {
		t.Errorf("runnable thread contends on %v, want nil", got)
	}

	done := make(chan error, 1)
	go func() {
		if _, err := s.Enter(waiter, obj, false); err != nil {
			done <- err
			return
		}
		if err := s.Wait(waiter, obj, 0, 0, true, thread.StateWaiting); err != nil {
			done <- err
			return
		}
		done <- s.Exit(waiter, obj)
	}()

	if err := testutil.Poll(func() error {
		if got := waiter.State(); got != thread.StateWaiting {
			return fmt.Errorf("waiter state is %v, want %v", got, thread.StateWaiting)
		}
		return nil
	}, pollTimeout); err != nil {
		t.Fatal(err)
	}
	if got := s.ContendedMonitorOf(waiter); got != obj {
		t.Errorf("waiting thread contends on %v, want %v", got, obj)
	}

	mustEnter(t, s, self, obj)
	if err := s.Notify(self, obj); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	mustExit(t, s, self, obj)
	if err := <-done; err != nil {
		t.Fatalf("waiter failed: %v", err)
	}
}

func TestContendedMonitorOfBlockedThread(t *testing.T) {
	s, threads := newTestSystem(t)
	owner := attach(t, threads, "owner")
	contender := attach(t, threads, "contender")
	obj := heap.NewObject("java.lang.Object")

	mustEnter(t, s, owner, obj)
	done := make(chan error, 1)
	go func() {
		if _, err := s.Enter(contender, obj, false); err != nil {
			done <- err
			return
		}
		done <- s.Exit(contender, obj)
	}()

	if err := testutil.Poll(func() error {
		owner.CheckSuspend()
		if got := contender.State(); got != thread.StateBlocked {
			return fmt.Errorf("contender state is %v, want %v", got, thread.StateBlocked)
		}
		return nil
	}, pollTimeout); err != nil {
		t.Fatal(err)
	}
	if got := s.ContendedMonitorOf(contender); got != obj {
		t.Errorf("blocked thread contends on %v, want %v", got, obj)
	}

	mustExit(t, s, owner, obj)
	if err := <-done; err != nil {
		t.Fatalf("contender failed: %v", err)
	}
}

func TestVisitLocks(t *testing.T) {
	threads := thread.NewList()
	self, err := threads.Attach("walker")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	held := heap.NewObject("java.lang.Object")
	inner := heap.NewObject("java.lang.Object")
	receiver := heap.NewObject("java.io.PrintStream")

	outer := stack.NewMethod(stack.MethodInfo{
		Name: "com.example.Outer.run",
		LockedRegisters: map[uint32][]int{
			// Offset 7 holds register 1's object locked.
			7: {1},
		},
	})
	proxy := stack.NewMethod(stack.MethodInfo{
		Name:  "com.example.$Proxy0.invoke",
		Proxy: true,
	})
	native := stack.NewMethod(stack.MethodInfo{
		Name:         "java.io.PrintStream.write",
		Synchronized: true,
		Native:       true,
	})
	innerMethod := stack.NewMethod(stack.MethodInfo{
		Name: "com.example.Inner.work",
		LockedRegisters: map[uint32][]int{
			3: {0, 2},
		},
	})

	self.PushFrame(stack.Frame{Method: outer, PC: 7, Registers: []*heap.Object{nil, held}})
	self.PushFrame(stack.Frame{Method: proxy})
	self.PushFrame(stack.Frame{Method: native, Receiver: receiver})
	// Register 2 is nil and must be skipped.
	self.PushFrame(stack.Frame{Method: innerMethod, PC: 3, Registers: []*heap.Object{inner, nil, nil}})

	var visited []*heap.Object
	var methods []string
	VisitLocks(self, func(obj *heap.Object, f *stack.Frame) {
		visited = append(visited, obj)
		methods = append(methods, f.Method.Name())
	})

	// Innermost frame first; the proxy frame contributes nothing; the
	// synchronized native frame contributes its receiver.
	wantObjs := []*heap.Object{inner, receiver, held}
	if diff := cmp.Diff(wantObjs, visited, cmp.Comparer(func(a, b *heap.Object) bool { return a == b })); diff != "" {
		t.Errorf("visited objects mismatch (-want +got):\n%s", diff)
	}
	wantMethods := []string{
		"com.example.Inner.work",
		"java.io.PrintStream.write",
		"com.example.Outer.run",
	}
	if diff := cmp.Diff(wantMethods, methods); diff != "" {
		t.Errorf("visited methods mismatch (-want +got):\n%s", diff)
	}
}

func TestVisitLocksAtDifferentPC(t *testing.T) {
	threads := thread.NewList()
	self, _ := threads.Attach("walker")
	obj := heap.NewObject("java.lang.Object")

	m := stack.NewMethod(stack.MethodInfo{
		Name: "com.example.Brief.run",
		LockedRegisters: map[uint32][]int{
			5: {0},
		},
	})
	// At offset 9 the lock has been released; nothing is held.
	self.PushFrame(stack.Frame{Method: m, PC: 9, Registers: []*heap.Object{obj}})

	count := 0
	VisitLocks(self, func(*heap.Object, *stack.Frame) {
		count++
	})
	if count != 0 {
		t.Errorf("visited %d objects at an unlocked offset, want 0", count)
	}
}
