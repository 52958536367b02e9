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

package lockword

import (
	"testing"
)

func TestZeroWordIsUnlocked(t *testing.T) {
	var w Word
	if s := w.State(); s != StateUnlocked {
		t.Errorf("zero word state: got %v, want %v", s, StateUnlocked)
	}
	if rb := w.ReadBarrierState(); rb != 0 {
		t.Errorf("zero word rb: got %d, want 0", rb)
	}
}

func TestThin(t *testing.T) {
	w := FromThin(42, 7, 1)
	if s := w.State(); s != StateThin {
		t.Fatalf("state: got %v, want %v", s, StateThin)
	}
	if owner := w.ThinOwner(); owner != 42 {
		t.Errorf("owner: got %d, want 42", owner)
	}
	if r := w.ThinRecursion(); r != 7 {
		t.Errorf("recursion: got %d, want 7", r)
	}
	if rb := w.ReadBarrierState(); rb != 1 {
		t.Errorf("rb: got %d, want 1", rb)
	}
}

func TestThinMaxRecursion(t *testing.T) {
	w := FromThin(1, MaxThinRecursion, 0)
	if r := w.ThinRecursion(); r != MaxThinRecursion {
		t.Errorf("recursion: got %d, want %d", r, MaxThinRecursion)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("FromThin(recursion > max) did not panic")
		}
	}()
	FromThin(1, MaxThinRecursion+1, 0)
}

func TestFat(t *testing.T) {
	w := FromFat(MaxMonitorID, 2)
	if s := w.State(); s != StateFat {
		t.Fatalf("state: got %v, want %v", s, StateFat)
	}
	if id := w.MonitorID(); id != MaxMonitorID {
		t.Errorf("id: got %d, want %d", id, MaxMonitorID)
	}
	if rb := w.ReadBarrierState(); rb != 2 {
		t.Errorf("rb: got %d, want 2", rb)
	}
}

func TestHash(t *testing.T) {
	w := FromHash(0xabcdef, 3)
	if s := w.State(); s != StateHash {
		t.Fatalf("state: got %v, want %v", s, StateHash)
	}
	if h := w.Hash(); h != 0xabcdef {
		t.Errorf("hash: got %#x, want 0xabcdef", h)
	}
	if rb := w.ReadBarrierState(); rb != 3 {
		t.Errorf("rb: got %d, want 3", rb)
	}
}

func TestForwarding(t *testing.T) {
	w := FromForwarding(0x123456, 0)
	if s := w.State(); s != StateForwarding {
		t.Fatalf("state: got %v, want %v", s, StateForwarding)
	}
	if a := w.ForwardingAddress(); a != 0x123456 {
		t.Errorf("address: got %#x, want 0x123456", a)
	}
}

// All transitions preserve the read-barrier field.
func TestReadBarrierPreserved(t *testing.T) {
	for rb := uint32(0); rb <= ReadBarrierStateMax; rb++ {
		for _, w := range []Word{
			Unlocked(rb),
			FromThin(9, 0, rb),
			FromFat(17, rb),
			FromHash(0x5aa, rb),
			FromForwarding(0x99, rb),
		} {
			if got := w.ReadBarrierState(); got != rb {
				t.Errorf("%v: rb got %d, want %d", w, got, rb)
			}
		}
	}
}

func TestWithReadBarrierState(t *testing.T) {
	w := FromThin(5, 3, 0).WithReadBarrierState(2)
	if rb := w.ReadBarrierState(); rb != 2 {
		t.Errorf("rb: got %d, want 2", rb)
	}
	// Lock state is untouched.
	if w.State() != StateThin || w.ThinOwner() != 5 || w.ThinRecursion() != 3 {
		t.Errorf("lock state clobbered: %v", w)
	}
}

func TestWrongVariantAccessPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MonitorID of a thin word did not panic")
		}
	}()
	FromThin(1, 0, 0).MonitorID()
}

func TestZeroOwnerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("FromThin(owner=0) did not panic")
		}
	}()
	FromThin(0, 0, 0)
}
