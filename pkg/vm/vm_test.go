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

package vm

import (
	"fmt"
	"testing"
	"time"

	"objvm.dev/objvm/pkg/config"
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/test/testutil"
	"objvm.dev/objvm/pkg/thread"
	"objvm.dev/objvm/pkg/vmerr"
)

func newTestVM(t *testing.T) *VM {
	t.Helper()
	vm, err := New(config.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return vm
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ContentionYields = -1
	if _, err := New(cfg); err == nil {
		t.Error("New accepted a negative contention_yields")
	}
}

func TestSleepElapses(t *testing.T) {
	vm := newTestVM(t)
	self, err := vm.Attach("sleeper")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	start := time.Now()
	if err := vm.Sleep(self, 10, 0); err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if d := time.Since(start); d < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want at least 10ms", d)
	}
	if got := self.State(); got != thread.StateRunnable {
		t.Errorf("state after sleep is %v, want %v", got, thread.StateRunnable)
	}
}

func TestSleepZeroYields(t *testing.T) {
	vm := newTestVM(t)
	self, _ := vm.Attach("sleeper")
	if err := vm.Sleep(self, 0, 0); err != nil {
		t.Fatalf("Sleep(0, 0) failed: %v", err)
	}
	// sleep(0) still observes a pending interrupt.
	self.Interrupt()
	if err := vm.Sleep(self, 0, 0); err != vmerr.ErrInterrupted {
		t.Errorf("Sleep(0, 0) with pending interrupt returned %v, want ErrInterrupted", err)
	}
	if self.Interrupted() {
		t.Error("interrupt flag still set after ErrInterrupted")
	}
}

func TestSleepRejectsBadDuration(t *testing.T) {
	vm := newTestVM(t)
	self, _ := vm.Attach("sleeper")
	for _, tc := range []struct {
		ms int64
		ns int32
	}{
		{-1, 0},
		{0, -1},
		{0, 1000000},
	} {
		if err := vm.Sleep(self, tc.ms, tc.ns); err != vmerr.ErrBadTimeout {
			t.Errorf("Sleep(%d, %d) returned %v, want ErrBadTimeout", tc.ms, tc.ns, err)
		}
	}
}

func TestShutdownReleasesMonitors(t *testing.T) {
	vm := newTestVM(t)
	self, _ := vm.Attach("main")
	obj := heap.NewObject("java.lang.Object")

	mon := vm.Monitors()
	if _, err := mon.Enter(self, obj, false); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	if _, err := mon.IdentityHash(self, obj); err != nil {
		t.Fatalf("IdentityHash failed: %v", err)
	}
	if err := mon.Exit(self, obj); err != nil {
		t.Fatalf("Exit failed: %v", err)
	}
	if got := mon.MonitorList().Count(); got != 1 {
		t.Fatalf("monitor list has %d entries, want 1", got)
	}

	vm.Detach(self)
	vm.Shutdown()
	if got := mon.MonitorList().Count(); got != 0 {
		t.Errorf("monitor list has %d entries after shutdown, want 0", got)
	}
}

func TestSleepInterrupted(t *testing.T) {
	vm := newTestVM(t)
	self, _ := vm.Attach("sleeper")

	done := make(chan error, 1)
	go func() {
		done <- vm.Sleep(self, 10000, 0)
	}()

	if err := testutil.Poll(func() error {
		if got := self.State(); got != thread.StateSleeping {
			return fmt.Errorf("state is %v, want %v", got, thread.StateSleeping)
		}
		return nil
	}, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	self.Interrupt()
	if err := <-done; err != vmerr.ErrInterrupted {
		t.Fatalf("interrupted sleep returned %v, want ErrInterrupted", err)
	}
	if self.Interrupted() {
		t.Error("interrupt flag still set after ErrInterrupted")
	}
}
