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

// Package ktime provides the monotonic clock used by the monitor subsystem
// for wait deadlines and contention profiling.
package ktime

import (
	"time"

	"golang.org/x/sys/unix"
)

// Time represents an instant on the monotonic clock, in nanoseconds since an
// arbitrary epoch.
type Time struct {
	ns int64
}

// FromNanoseconds returns a Time at ns nanoseconds from the clock epoch.
func FromNanoseconds(ns int64) Time {
	return Time{ns: ns}
}

// Nanoseconds returns t as a count of nanoseconds from the clock epoch.
func (t Time) Nanoseconds() int64 {
	return t.ns
}

// Before returns true if t occurs before u.
func (t Time) Before(u Time) bool {
	return t.ns < u.ns
}

// Sub returns the duration t - u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t.ns-u.ns) * time.Nanosecond
}

// Add returns the time t + d.
func (t Time) Add(d time.Duration) Time {
	return Time{ns: t.ns + d.Nanoseconds()}
}

// Clock is an abstract time source.
type Clock interface {
	// Now returns the current time on the clock.
	Now() Time
}

// HostMonotonic reads the host's monotonic clock.
type HostMonotonic struct{}

// Now implements Clock.Now.
func (HostMonotonic) Now() Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// The monotonic clock is always readable on supported hosts.
		panic("clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return Time{ns: ts.Nano()}
}

// defaultClock is the process-wide clock. It is installed once at VM start;
// see vm.New.
var defaultClock Clock = HostMonotonic{}

// Default returns the process-wide clock.
func Default() Clock {
	return defaultClock
}

// SetDefault installs c as the process-wide clock. Only called during VM
// initialization, before any monitor operation runs.
func SetDefault(c Clock) {
	defaultClock = c
}
