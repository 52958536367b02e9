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

// Package lockword implements the 32-bit header word that encodes an object's
// lock, hash and forwarding state.
//
// The word is laid out as:
//
//	|31 30|29 28|27           16|15            0|
//	| tag | rb  |  recursion    |   owner tid   |  tag 0, owner != 0 (thin)
//	| tag | rb  |          all zero             |  tag 0, payload 0  (unlocked)
//	| tag | rb  |          monitor id           |  tag 1 (fat)
//	| tag | rb  |          hash code            |  tag 2 (hash)
//	| tag | rb  |       forwarding address      |  tag 3 (forwarding)
//
// The rb field is reserved for the garbage collector's read barrier and is
// preserved by every lock transition: all lock-state updates are full-word
// compare-and-swaps whose expected value carries the current rb bits.
package lockword

import (
	"fmt"
)

const (
	// PayloadBits is the width of the variant payload.
	PayloadBits = 28

	payloadMask = (1 << PayloadBits) - 1

	tagShift = 30
	tagMask  = 3 << tagShift

	rbShift = 28
	rbMask  = 3 << rbShift

	// ReadBarrierStateMax is the largest value of the read-barrier field.
	ReadBarrierStateMax = 3

	tagThinOrUnlocked = 0
	tagFat            = 1
	tagHash           = 2
	tagForwarding     = 3

	// ThinOwnerBits is the width of the thin-lock owner tid field.
	ThinOwnerBits = 16

	thinOwnerMask = (1 << ThinOwnerBits) - 1

	// ThinRecursionBits is the width of the thin-lock recursion field.
	ThinRecursionBits = 12

	thinRecursionShift = ThinOwnerBits
	thinRecursionMask  = ((1 << ThinRecursionBits) - 1) << thinRecursionShift

	// MaxThinRecursion is the largest recursion value a thin lock will
	// carry. It saturates one below the field maximum; the acquisition that
	// would exceed it inflates the lock instead.
	MaxThinRecursion = (1 << ThinRecursionBits) - 2

	// MaxMonitorID is the largest monitor id a fat word can name.
	MaxMonitorID = payloadMask

	// MaxHash is the largest identity hash a hash word can carry.
	MaxHash = payloadMask
)

// State identifies the variant encoded in a Word.
type State int

const (
	// StateUnlocked is the default state: no lock, no materialized hash.
	StateUnlocked State = iota

	// StateThin is an in-word lock: owner tid and recursion count.
	StateThin

	// StateFat names a monitor that holds the real lock state.
	StateFat

	// StateHash carries the object's materialized identity hash; the object
	// is unlocked.
	StateHash

	// StateForwarding carries a forwarding address owned by the moving
	// collector. It never appears while mutators run.
	StateForwarding
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "Unlocked"
	case StateThin:
		return "Thin"
	case StateFat:
		return "Fat"
	case StateHash:
		return "Hash"
	case StateForwarding:
		return "Forwarding"
	default:
		return fmt.Sprintf("Invalid state: %d", int(s))
	}
}

// Word is an object header word. The zero Word is unlocked with a zero
// read-barrier state.
type Word uint32

// State returns the variant encoded in w. It is total: every bit pattern maps
// to exactly one variant.
func (w Word) State() State {
	switch (uint32(w) & tagMask) >> tagShift {
	case tagThinOrUnlocked:
		if uint32(w)&payloadMask == 0 {
			return StateUnlocked
		}
		return StateThin
	case tagFat:
		return StateFat
	case tagHash:
		return StateHash
	default:
		return StateForwarding
	}
}

// ReadBarrierState returns the GC read-barrier field.
func (w Word) ReadBarrierState() uint32 {
	return (uint32(w) & rbMask) >> rbShift
}

// WithReadBarrierState returns w with the read-barrier field set to rb.
// Only the GC read-modify-writes this field.
func (w Word) WithReadBarrierState(rb uint32) Word {
	checkRB(rb)
	return Word((uint32(w) &^ rbMask) | rb<<rbShift)
}

// Unlocked returns the default word with read-barrier state rb.
func Unlocked(rb uint32) Word {
	checkRB(rb)
	return Word(rb << rbShift)
}

// FromThin returns a thin-lock word owned by owner with the given recursion
// count. owner must be non-zero; recursion holds acquisitions minus one and
// must not exceed MaxThinRecursion.
func FromThin(owner uint16, recursion uint32, rb uint32) Word {
	checkRB(rb)
	if owner == 0 {
		panic("thin lock with zero owner tid")
	}
	if recursion > MaxThinRecursion {
		panic(fmt.Sprintf("thin lock recursion %d exceeds maximum %d", recursion, MaxThinRecursion))
	}
	return Word(tagThinOrUnlocked<<tagShift | rb<<rbShift | recursion<<thinRecursionShift | uint32(owner))
}

// FromFat returns a fat word naming monitor id.
func FromFat(id uint32, rb uint32) Word {
	checkRB(rb)
	if id > MaxMonitorID {
		panic(fmt.Sprintf("monitor id %d exceeds maximum %d", id, MaxMonitorID))
	}
	return Word(tagFat<<tagShift | rb<<rbShift | id)
}

// FromHash returns a hash word carrying h. h must be a non-zero 28-bit value.
func FromHash(h uint32, rb uint32) Word {
	checkRB(rb)
	if h == 0 || h > MaxHash {
		panic(fmt.Sprintf("identity hash %#x out of range", h))
	}
	return Word(tagHash<<tagShift | rb<<rbShift | h)
}

// FromForwarding returns a forwarding word carrying addr.
func FromForwarding(addr uint32, rb uint32) Word {
	checkRB(rb)
	if addr > payloadMask {
		panic(fmt.Sprintf("forwarding address %#x out of range", addr))
	}
	return Word(tagForwarding<<tagShift | rb<<rbShift | addr)
}

// ThinOwner returns the owner tid of a thin word.
func (w Word) ThinOwner() uint16 {
	w.check(StateThin)
	return uint16(uint32(w) & thinOwnerMask)
}

// ThinRecursion returns the recursion count of a thin word: acquisitions
// minus one.
func (w Word) ThinRecursion() uint32 {
	w.check(StateThin)
	return (uint32(w) & thinRecursionMask) >> thinRecursionShift
}

// MonitorID returns the monitor id of a fat word.
func (w Word) MonitorID() uint32 {
	w.check(StateFat)
	return uint32(w) & payloadMask
}

// Hash returns the identity hash of a hash word.
func (w Word) Hash() uint32 {
	w.check(StateHash)
	return uint32(w) & payloadMask
}

// ForwardingAddress returns the forwarding address of a forwarding word.
func (w Word) ForwardingAddress() uint32 {
	w.check(StateForwarding)
	return uint32(w) & payloadMask
}

func (w Word) String() string {
	switch s := w.State(); s {
	case StateThin:
		return fmt.Sprintf("Thin(owner=%d, recursion=%d, rb=%d)", w.ThinOwner(), w.ThinRecursion(), w.ReadBarrierState())
	case StateFat:
		return fmt.Sprintf("Fat(id=%d, rb=%d)", w.MonitorID(), w.ReadBarrierState())
	case StateHash:
		return fmt.Sprintf("Hash(%#x, rb=%d)", w.Hash(), w.ReadBarrierState())
	case StateForwarding:
		return fmt.Sprintf("Forwarding(%#x, rb=%d)", w.ForwardingAddress(), w.ReadBarrierState())
	default:
		return fmt.Sprintf("Unlocked(rb=%d)", w.ReadBarrierState())
	}
}

// check panics if w is not in state want. Decoding a header against the wrong
// variant is a VM bug, not a recoverable condition.
func (w Word) check(want State) {
	if s := w.State(); s != want {
		panic(fmt.Sprintf("bad lock word %#x: state %v, want %v", uint32(w), s, want))
	}
}

func checkRB(rb uint32) {
	if rb > ReadBarrierStateMax {
		panic(fmt.Sprintf("read barrier state %d out of range", rb))
	}
}
