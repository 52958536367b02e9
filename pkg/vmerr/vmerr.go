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

// Package vmerr holds the standardized error definition for the VM's monitor
// subsystem. Errors carry a Kind for fast comparison at the managed-code
// boundary, where they are materialized as pending language-level exceptions,
// and a message with per-incident detail.
package vmerr

import (
	"fmt"
)

// Kind classifies an error for the managed-code boundary.
type Kind uint32

const (
	// KindIllegalMonitorState indicates an operation that requires monitor
	// ownership was attempted by a non-owner.
	KindIllegalMonitorState Kind = iota

	// KindIllegalArgument indicates a wait timeout outside the permitted
	// range.
	KindIllegalArgument

	// KindInterrupted indicates a wait that observed the calling thread's
	// interrupt flag.
	KindInterrupted

	// KindOutOfMemory indicates resource exhaustion while allocating a
	// monitor. The triggering operation leaves the object header unchanged.
	KindOutOfMemory
)

func (k Kind) String() string {
	switch k {
	case KindIllegalMonitorState:
		return "IllegalMonitorState"
	case KindIllegalArgument:
		return "IllegalArgument"
	case KindInterrupted:
		return "Interrupted"
	case KindOutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Invalid kind: %d", uint32(k))
	}
}

// Error represents a monitor subsystem error with a descriptive message.
type Error struct {
	kind    Kind
	message string
}

// New creates a new *Error.
func New(kind Kind, message string) *Error {
	return &Error{
		kind:    kind,
		message: message,
	}
}

// Newf creates a new *Error with a formatted message.
func Newf(kind Kind, format string, v ...any) *Error {
	return New(kind, fmt.Sprintf(format, v...))
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Kind returns the error's kind.
func (e *Error) Kind() Kind { return e.kind }

// Has returns true iff err is an *Error of kind k.
func Has(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == k
}

// Common errors with no per-incident detail.
var (
	// ErrBadTimeout is returned by wait for a negative timeout or a
	// nanosecond component outside [0, 999999].
	ErrBadTimeout = New(KindIllegalArgument, "timeout out of range")

	// ErrInterrupted is returned by wait when the calling thread was
	// interrupted. The thread's interrupt flag is cleared as part of
	// signalling this error.
	ErrInterrupted = New(KindInterrupted, "wait interrupted")

	// ErrOutOfMonitors is returned when the monitor pool's id space is
	// exhausted.
	ErrOutOfMonitors = New(KindOutOfMemory, "monitor pool exhausted")
)
