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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"objvm.dev/objvm/pkg/log"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objvm.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
contention_yields = 10
lock_profile_threshold_ms = 250
monitor_pool_capacity = 64
log_level = "debug"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ContentionYields != 10 {
		t.Errorf("ContentionYields: got %d, want 10", c.ContentionYields)
	}
	if c.LockProfileThresholdMs != 250 {
		t.Errorf("LockProfileThresholdMs: got %d, want 250", c.LockProfileThresholdMs)
	}
	if c.MonitorPoolCapacity != 64 {
		t.Errorf("MonitorPoolCapacity: got %d, want 64", c.MonitorPoolCapacity)
	}
	if lvl, err := c.Level(); err != nil || lvl != log.Debug {
		t.Errorf("Level: got (%v, %v), want (Debug, nil)", lvl, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if c != want {
		t.Errorf("Load of empty file: got %+v, want defaults %+v", c, want)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(*Config)
	}{
		{"negative yields", func(c *Config) { c.ContentionYields = -1 }},
		{"negative threshold", func(c *Config) { c.LockProfileThresholdMs = -5 }},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mod(&c)
			if err := c.Validate(); err == nil {
				t.Errorf("Validate(%+v) succeeded, wanted error", c)
			}
		})
	}
}
