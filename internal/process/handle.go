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

// Package process is a thin abstraction over a spawned child: its OS
// process identifier, exit status, and signal-send primitive. It owns
// the child's process group so that a single signal reaches the whole
// subtree the child may have forked.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrProcessGone is returned by Signal when the child has already been
// reaped; spec §4.1's "fails with ProcessGone if the child has already
// been reaped".
var ErrProcessGone = errors.New("process: child already reaped")

// Process is what the Task Manager needs from a spawned child: its pid,
// a way to signal its process group, and a blocking wait for exit. It is
// satisfied by *Handle; tests substitute a fake that never forks.
type Process interface {
	PID() int
	Signal(sig unix.Signal) error
	Wait() (ExitStatus, error)
}

// ExitStatus is the outcome yielded by Wait.
type ExitStatus struct {
	// Code is the exit code, valid when Signaled is false.
	Code int
	// Signaled is true if the child was terminated by a signal.
	Signaled bool
	// Signal is the terminating signal number, valid when Signaled.
	Signal int
}

// Handle encapsulates one spawned child process. At most one Wait ever
// completes per handle; Signal after a successful Wait returns
// ErrProcessGone.
type Handle struct {
	cmd *exec.Cmd
	pid int

	mu    sync.Mutex
	gone  bool
	files []*os.File // stdout/stderr sinks owned by this handle, closed on Wait.
}

var _ Process = (*Handle)(nil)

// Spawn launches command[0] with command[1:] as arguments, in a fresh
// process group, with cwd and env applied, redirecting stdout/stderr to
// the given sink paths (an empty path means discard). It returns immediately with the
// child's pid recorded in the Handle; it does not wait for the child to
// produce output or exit.
func Spawn(command []string, cwd string, env []string, stdoutPath, stderrPath string) (*Handle, error) {
	if len(command) == 0 {
		return nil, errors.New("process: empty command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.Env = env
	// Setpgid with Pgid left at zero makes the child the leader of a new
	// process group equal to its own pid, so a single signal to -pid
	// reaches the whole subtree (§4.1, §9).
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	var owned []*os.File
	stdout, err := sink(stdoutPath, &owned)
	if err != nil {
		return nil, fmt.Errorf("process: opening stdout sink: %w", err)
	}
	stderr, err := sink(stderrPath, &owned)
	if err != nil {
		return nil, fmt.Errorf("process: opening stderr sink: %w", err)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		for _, f := range owned {
			_ = f.Close()
		}
		return nil, fmt.Errorf("process: spawn: %w", err)
	}

	return &Handle{cmd: cmd, pid: cmd.Process.Pid, files: owned}, nil
}

func sink(path string, owned *[]*os.File) (*os.File, error) {
	if path == "" {
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, err
		}
		*owned = append(*owned, f)
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	*owned = append(*owned, f)
	return f, nil
}

// PID returns the child's process (and process group) identifier.
func (h *Handle) PID() int {
	return h.pid
}

// Signal delivers sig to the child's process group. It is a
// non-blocking syscall, safe to call while holding the Task Manager's
// serialization lock (§5).
func (h *Handle) Signal(sig unix.Signal) error {
	h.mu.Lock()
	gone := h.gone
	h.mu.Unlock()
	if gone {
		return ErrProcessGone
	}
	if err := unix.Kill(-h.pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}

// Wait blocks until the child terminates, closes the handle's owned
// stdio sinks, and returns its exit status. It is suspendable: it
// correctly blocks while the child is merely stopped (SIGSTOP/SIGCONT)
// and only returns on actual termination (§4.5.3).
func (h *Handle) Wait() (ExitStatus, error) {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.gone = true
	files := h.files
	h.files = nil
	h.mu.Unlock()
	for _, f := range files {
		_ = f.Close()
	}

	var status ExitStatus
	if err == nil {
		status.Code = h.cmd.ProcessState.ExitCode()
		return status, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signaled = true
			status.Signal = int(ws.Signal())
			return status, nil
		}
		status.Code = exitErr.ExitCode()
		return status, nil
	}
	return status, fmt.Errorf("process: wait: %w", err)
}
