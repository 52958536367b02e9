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
)

// ID is a VM-internal thread identifier, stable for the life of the thread.
// IDs fit the thin-lock owner field: they occupy (0, MaxID].
type ID int32

// MaxID is the largest allocatable thread id; the thin-lock owner field is 16
// bits wide and 0 means "unowned".
const MaxID ID = 1<<16 - 1

// String returns a decimal representation of the ID.
func (tid ID) String() string {
	return fmt.Sprintf("%d", int32(tid))
}

// State is the coarse execution state a thread publishes for the garbage
// collector and introspection. Any state other than Runnable is a safepoint:
// the thread will not touch the heap before transitioning back through
// ExitState.
type State int32

const (
	// StateRunnable indicates the thread is executing managed or VM code.
	StateRunnable State = iota

	// StateBlocked indicates the thread is blocked acquiring a monitor.
	StateBlocked

	// StateWaiting indicates the thread is in an untimed Object.wait.
	StateWaiting

	// StateTimedWaiting indicates the thread is in a timed Object.wait.
	StateTimedWaiting

	// StateSleeping indicates the thread is in Thread.sleep.
	StateSleeping

	// StateSuspended indicates the thread is parked in CheckSuspend.
	StateSuspended

	// StateTerminated indicates the thread has detached.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "Runnable"
	case StateBlocked:
		return "Blocked"
	case StateWaiting:
		return "Waiting"
	case StateTimedWaiting:
		return "TimedWaiting"
	case StateSleeping:
		return "Sleeping"
	case StateSuspended:
		return "Suspended"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Invalid state: %d", int32(s))
	}
}

// AtSafepoint returns whether a thread published in s may be treated as
// safepointed by the garbage collector.
func (s State) AtSafepoint() bool {
	return s != StateRunnable
}

// IsWaitState returns whether s is one of the states a thread on a monitor's
// wait set must publish.
func (s State) IsWaitState() bool {
	return s == StateWaiting || s == StateTimedWaiting || s == StateSleeping
}
