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

package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/subcommands"
)

// Start implements subcommands.Command for "start": it launches batchqd
// as a detached background process, mirroring the original CLI's
// subprocess.Popen of the server module.
type Start struct {
	maxCPUs int
}

func (*Start) Name() string     { return "start" }
func (*Start) Synopsis() string { return "start the batch queue daemon" }
func (*Start) Usage() string {
	return "start [--max-cpus N] - launch batchqd in the background\n"
}

func (s *Start) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.maxCPUs, "max-cpus", 0, "maximum number of concurrently active tasks (default: the daemon's own setting, 2 unless MAX_CPUS or its config file says otherwise)")
}

func (s *Start) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	daemonPath, err := findDaemonBinary()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}

	cmd := exec.Command(daemonPath)
	cmd.Env = os.Environ()
	if s.maxCPUs > 0 {
		cmd.Env = append(cmd.Env, fmt.Sprintf("MAX_CPUS=%d", s.maxCPUs))
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer devNull.Close()
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Println("failed to start the server:", err)
		return subcommands.ExitFailure
	}
	// Deliberately not waited on: batchqd keeps running after this CLI
	// invocation exits.
	fmt.Println("Server started successfully.")
	return subcommands.ExitSuccess
}

// findDaemonBinary locates batchqd next to the running batchq
// executable, falling back to $PATH.
func findDaemonBinary() (string, error) {
	self, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(self), "batchqd")
		if _, statErr := os.Stat(sibling); statErr == nil {
			return sibling, nil
		}
	}
	return exec.LookPath("batchqd")
}
