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

// Package config provides the monitor subsystem configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"objvm.dev/objvm/pkg/log"
)

// Config is the configuration for the monitor subsystem.
type Config struct {
	// ContentionYields is the number of times a thread yields while spinning
	// on a thin lock held by another thread before inflating it.
	ContentionYields int `toml:"contention_yields"`

	// LockProfileThresholdMs is the contended-acquisition duration, in
	// milliseconds, beyond which a warning is logged. Zero disables the
	// report.
	LockProfileThresholdMs int64 `toml:"lock_profile_threshold_ms"`

	// MonitorPoolCapacity is the initial monitor pool capacity. The pool
	// grows on demand up to the 28-bit id space.
	MonitorPoolCapacity uint32 `toml:"monitor_pool_capacity"`

	// HashSeed seeds the identity hash source. Zero selects a fixed default
	// seed.
	HashSeed uint32 `toml:"hash_seed"`

	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string `toml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ContentionYields:       50,
		LockProfileThresholdMs: 100,
		MonitorPoolCapacity:    256,
		LogLevel:               "info",
	}
}

// Load loads a configuration from the TOML file at path, on top of the
// defaults.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, fmt.Errorf("decoding %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks that c is usable.
func (c *Config) Validate() error {
	if c.ContentionYields < 0 {
		return fmt.Errorf("contention_yields must be non-negative, got %d", c.ContentionYields)
	}
	if c.LockProfileThresholdMs < 0 {
		return fmt.Errorf("lock_profile_threshold_ms must be non-negative, got %d", c.LockProfileThresholdMs)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the log.Level named by c.LogLevel.
func (c *Config) Level() (log.Level, error) {
	switch c.LogLevel {
	case "", "info":
		return log.Info, nil
	case "warning":
		return log.Warning, nil
	case "debug":
		return log.Debug, nil
	default:
		return log.Info, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
}
