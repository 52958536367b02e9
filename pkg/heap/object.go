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

// Package heap provides the fragment of the managed object model that the
// monitor subsystem owns: the header word adjacent to the class pointer. The
// rest of the object model (fields, class metadata, allocation) belongs to
// the heap proper.
package heap

import (
	"objvm.dev/objvm/pkg/atomicbitops"
	"objvm.dev/objvm/pkg/lockword"
)

// Object is a managed heap object. Only the header word and the class name
// used in diagnostics are modeled.
type Object struct {
	// header encodes lock, hash and forwarding state. All lock transitions
	// are full-word CASes; the GC's read-barrier field rides along in the
	// expected value.
	header atomicbitops.Uint32

	// className names the object's managed type. Immutable.
	className string
}

// NewObject returns an unlocked object of the named managed type.
func NewObject(className string) *Object {
	return &Object{className: className}
}

// ClassName returns the name of the object's managed type.
func (o *Object) ClassName() string {
	return o.className
}

// Header returns the current header word.
func (o *Object) Header() lockword.Word {
	return lockword.Word(o.header.Load())
}

// CasHeader atomically replaces the header word with new if it still equals
// old. On failure the caller re-reads the header and retries its operation
// from the top.
func (o *Object) CasHeader(old, new lockword.Word) bool {
	return o.header.CompareAndSwap(uint32(old), uint32(new))
}

// GCSetReadBarrierState read-modify-writes the header's read-barrier field.
// Only the garbage collector calls this, and only while it owns the object.
func (o *Object) GCSetReadBarrierState(rb uint32) {
	for {
		old := o.Header()
		if o.CasHeader(old, old.WithReadBarrierState(rb)) {
			return
		}
	}
}

// GCSetForwarding installs a forwarding word during a moving collection.
// Only the garbage collector calls this, with mutators stopped.
func (o *Object) GCSetForwarding(addr uint32) {
	old := o.Header()
	o.header.Store(uint32(lockword.FromForwarding(addr, old.ReadBarrierState())))
}
