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

// Package stack models the slice of the managed call stack that lock
// introspection consumes: per-frame register files plus the verifier's record
// of which registers hold objects that were monitor-entered but not yet
// monitor-exited at each bytecode offset.
package stack

import (
	"objvm.dev/objvm/pkg/heap"
)

// MethodInfo describes a managed method to NewMethod.
type MethodInfo struct {
	// Name is the method's fully qualified name, for diagnostics.
	Name string

	// Synchronized is set for methods declared synchronized. For native
	// methods the receiver is held in the frame's argument area for the
	// duration of the call.
	Synchronized bool

	// Native is set for methods implemented outside managed code.
	Native bool

	// Proxy is set for proxy dispatch frames. Proxy frames never
	// synchronize.
	Proxy bool

	// LockedRegisters is the verifier's record: for each bytecode offset at
	// which execution may be observed, the register indices whose objects
	// have a monitor-enter without a matching monitor-exit in this frame.
	LockedRegisters map[uint32][]int
}

// Method is an immutable managed method descriptor.
type Method struct {
	info MethodInfo
}

// NewMethod returns a method descriptor for info.
func NewMethod(info MethodInfo) *Method {
	return &Method{info: info}
}

// Name returns the method's name.
func (m *Method) Name() string {
	return m.info.Name
}

// IsSynchronized returns whether the method is declared synchronized.
func (m *Method) IsSynchronized() bool {
	return m.info.Synchronized
}

// IsNative returns whether the method is native.
func (m *Method) IsNative() bool {
	return m.info.Native
}

// IsProxy returns whether the method is a proxy dispatch stub.
func (m *Method) IsProxy() bool {
	return m.info.Proxy
}

// LockedRegisters returns the registers holding monitor-entered objects at
// bytecode offset pc, in monitor-enter order.
func (m *Method) LockedRegisters(pc uint32) []int {
	return m.info.LockedRegisters[pc]
}

// Frame is one managed-call-stack frame. Frames are owned by the executing
// thread; introspection reads them only while the thread is suspended.
type Frame struct {
	// Method is the frame's method. Never nil.
	Method *Method

	// PC is the bytecode offset at which the frame is (or was last)
	// executing.
	PC uint32

	// Registers is the frame's register file. Entries may be nil.
	Registers []*heap.Object

	// Receiver is the method receiver held in the argument area. Used for
	// synchronized native frames; nil for static methods.
	Receiver *heap.Object
}
