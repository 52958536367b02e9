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

// Package vm assembles the runtime surfaces the monitor subsystem needs into
// a single instance: the thread list, the monitor system and the
// configuration they were built from.
package vm

import (
	"runtime"

	"objvm.dev/objvm/pkg/config"
	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/ktime"
	"objvm.dev/objvm/pkg/log"
	"objvm.dev/objvm/pkg/monitor"
	"objvm.dev/objvm/pkg/thread"
	"objvm.dev/objvm/pkg/vmerr"
)

// VM is a runtime instance.
type VM struct {
	cfg      config.Config
	threads  *thread.List
	monitors *monitor.System
}

// New returns a runtime configured by cfg.
func New(cfg config.Config) (*VM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	// The monitor system captures the process clock at construction; install
	// it first.
	ktime.SetDefault(ktime.HostMonotonic{})
	threads := thread.NewList()
	return &VM{
		cfg:      cfg,
		threads:  threads,
		monitors: monitor.New(threads, cfg),
	}, nil
}

// Threads returns the runtime's thread list.
func (vm *VM) Threads() *thread.List {
	return vm.threads
}

// Monitors returns the runtime's monitor subsystem.
func (vm *VM) Monitors() *monitor.System {
	return vm.monitors
}

// Attach registers a new runnable thread named name.
func (vm *VM) Attach(name string) (*thread.Thread, error) {
	return vm.threads.Attach(name)
}

// Detach unregisters t. The caller must have released all of t's monitors.
func (vm *VM) Detach(t *thread.Thread) {
	vm.threads.Detach(t)
}

// Sleep parks self for the given duration, interruptibly. A zero duration
// yields the processor without parking, matching Thread.sleep(0).
func (vm *VM) Sleep(self *thread.Thread, ms int64, ns int32) error {
	if ms < 0 || ns < 0 || ns > 999999 {
		return vmerr.ErrBadTimeout
	}
	if ms == 0 && ns == 0 {
		if self.ClearInterrupt() {
			return vmerr.ErrInterrupted
		}
		runtime.Gosched()
		return nil
	}
	// Sleeping is a timed wait on a token object private to the thread, so
	// Interrupt finds and wakes it through the ordinary wait machinery.
	token := self.SleepToken()
	if _, err := vm.monitors.Enter(self, token, false); err != nil {
		return err
	}
	waitErr := vm.monitors.Wait(self, token, ms, ns, true, thread.StateSleeping)
	if err := vm.monitors.Exit(self, token); err != nil {
		return err
	}
	return waitErr
}

// Shutdown tears the runtime down: new monitor allocation is disabled and
// every remaining monitor is released. All threads must have detached.
func (vm *VM) Shutdown() {
	if n := vm.threads.Count(); n != 0 {
		log.Warningf("shutdown with %d threads still attached", n)
	}
	vm.monitors.MonitorList().DisableNew()
	vm.monitors.MonitorList().Sweep(func(*heap.Object) bool { return false })
}

// Deflate runs one GC-driven deflation pass: mutators are assumed stopped by
// the caller. It returns the number of monitors deflated.
func (vm *VM) Deflate() int {
	return vm.monitors.MonitorList().DeflateAll()
}

// Sweep releases the monitors of dead objects, per isLive. Mutators are
// assumed stopped by the caller.
func (vm *VM) Sweep(isLive func(obj *heap.Object) bool) int {
	return vm.monitors.MonitorList().Sweep(isLive)
}
