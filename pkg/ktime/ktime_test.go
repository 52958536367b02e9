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

package ktime

import (
	"testing"
	"time"
)

type fixedClock struct {
	now Time
}

func (c fixedClock) Now() Time {
	return c.now
}

func TestHostMonotonicAdvances(t *testing.T) {
	c := HostMonotonic{}
	t1 := c.Now()
	time.Sleep(time.Millisecond)
	t2 := c.Now()
	if !t1.Before(t2) {
		t.Errorf("clock did not advance: %d then %d", t1.Nanoseconds(), t2.Nanoseconds())
	}
	if d := t2.Sub(t1); d < time.Millisecond {
		t.Errorf("Sub reported %v across a 1ms sleep", d)
	}
}

func TestSetDefault(t *testing.T) {
	old := Default()
	defer SetDefault(old)

	c := fixedClock{now: FromNanoseconds(42)}
	SetDefault(c)
	if got := Default().Now(); got != c.now {
		t.Errorf("Default().Now() = %d, want %d", got.Nanoseconds(), c.now.Nanoseconds())
	}
}

func TestTimeArithmetic(t *testing.T) {
	a := FromNanoseconds(100)
	b := a.Add(50 * time.Nanosecond)
	if got := b.Sub(a); got != 50*time.Nanosecond {
		t.Errorf("Sub = %v, want 50ns", got)
	}
	if !a.Before(b) {
		t.Error("a is not before a.Add(50ns)")
	}
	if b.Before(a) {
		t.Error("a.Add(50ns) is before a")
	}
}
