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

// Package testutil contains helpers shared by the subsystem tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// Poll repeats cb until it returns nil or the timeout elapses.
func Poll(cb func() error, timeout time.Duration) error {
	return PollContext(cb, timeout, 10*time.Millisecond)
}

// PollContext repeats cb every interval until it returns nil or the timeout
// elapses.
func PollContext(cb func() error, timeout, interval time.Duration) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(timeout/interval))
	if err := backoff.Retry(cb, b); err != nil {
		return fmt.Errorf("poll timed out after %v: %w", timeout, err)
	}
	return nil
}
