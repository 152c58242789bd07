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

// Package task defines the Task Record, the in-memory entity describing
// one submission accepted by the batch queue.
package task

import (
	"github.com/nbecker/batch-queue2/internal/process"
)

// State is one of the four lifecycle states a Task may occupy.
type State int

const (
	// Queued tasks have been submitted but have no child process yet.
	Queued State = iota
	// Active tasks have a running (not stopped) child process.
	Active
	// Paused tasks have a stopped child process.
	Paused
	// Terminal tasks have exited, been killed, or failed to spawn. They
	// are never retained in any enumerable collection (I4).
	Terminal
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Task is one submission accepted by the Task Manager. Every field is
// owned exclusively by the Task Manager; callers outside internal/manager
// must not mutate a Task directly.
type Task struct {
	// ID is a monotonically increasing, non-negative integer, unique
	// within a server lifetime (I5).
	ID int64

	// Command is the ordered argument sequence; Command[0] is the
	// executable. Always len(Command) >= 1.
	Command []string

	// Submitter is an opaque string identifying the originating user.
	Submitter string

	// Dir is the filesystem path applied as the child's initial
	// directory.
	Dir string

	// Env is the environment applied to the child, as NAME=VALUE pairs
	// the same way os/exec.Cmd.Env expects them.
	Env []string

	// StdoutPath and StderrPath are optional; when empty, output is
	// discarded.
	StdoutPath string
	StderrPath string

	// Process is populated only once the task is admitted (I3): non-nil
	// iff State is Active or Paused.
	Process process.Process

	// Runnable is meaningful only while State == Paused: it marks a
	// resume request that admission has not yet fulfilled (I6).
	Runnable bool

	// State is the task's current lifecycle state (I1).
	State State
}

// Snapshot is the read-only view of a Task returned to RPC callers that
// need more than just the id (e.g. id_task's command echo).
type Snapshot struct {
	ID      int64
	Command []string
	State   State
}

// ToSnapshot copies the fields of t that are safe to hand to a caller
// without exposing the live Process handle or mutable Env/Dir.
func (t *Task) ToSnapshot() Snapshot {
	cmd := make([]string, len(t.Command))
	copy(cmd, t.Command)
	return Snapshot{ID: t.ID, Command: cmd, State: t.State}
}
