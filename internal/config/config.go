// Copyright 2024 The Batch Queue Authors.
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

// Package config assembles the daemon's Config from, in increasing
// priority order: built-in defaults, an optional TOML file, and the
// MAX_CPUS environment variable. This mirrors the precedence the
// teacher's runsc/config package gives flags over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds everything the daemon needs to bind and schedule.
type Config struct {
	// MaxCPUs is the admission bound: |Active| <= MaxCPUs (I2).
	MaxCPUs int `toml:"max_cpus"`

	// Port is the loopback TCP port the RPC server binds.
	Port int `toml:"port"`

	// LogFile is the path logrus output is appended to.
	LogFile string `toml:"log_file"`

	// MaxQueueLen bounds the number of live tasks (queued, active and
	// paused together); submit at this count is BadRequest (§4.3
	// supplement).
	MaxQueueLen int `toml:"max_queue_len"`

	// LockFile is the advisory flock path guarding against two daemons
	// racing to bind the same port.
	LockFile string `toml:"lock_file"`
}

// Default returns the built-in defaults, before any file or env
// override is applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		MaxCPUs:     2,
		Port:        7080,
		LogFile:     home + "/batch_queue.log",
		MaxQueueLen: 4096,
		LockFile:    home + "/.batchq.lock",
	}
}

// Load builds a Config starting from Default, applying path (if
// non-empty and present) as a TOML overlay, then applying the MAX_CPUS
// environment variable per §6.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decoding %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %q: %w", path, err)
		}
	}

	if v, ok := os.LookupEnv("MAX_CPUS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MAX_CPUS=%q: %w", v, err)
		}
		cfg.MaxCPUs = n
	}

	if cfg.MaxCPUs < 1 {
		return Config{}, fmt.Errorf("config: max_cpus must be >= 1, got %d", cfg.MaxCPUs)
	}
	return cfg, nil
}
