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

// Package manager implements the Task Manager: the concurrency-safe
// scheduler that owns the population of child processes, enforces the
// admission bound, and coordinates suspend/resume via process-group
// signals while serializing concurrent callers against its own state.
package manager

import (
	"sort"
	"sync"
	"syscall"

	"github.com/google/btree"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nbecker/batch-queue2/internal/process"
	"github.com/nbecker/batch-queue2/internal/task"
)

// idItem orders a btree.BTree of task ids, giving FIFO-by-id a
// logarithmic pop-lowest instead of a linear scan (§4.2).
type idItem int64

func (a idItem) Less(than btree.Item) bool { return a < than.(idItem) }

const btreeDegree = 32

// Snapshot is the result of List: a point-in-time view of the four
// disjoint id sets spec.md's list_tasks returns.
type Snapshot struct {
	MaxCPUs        int
	Active         []int64
	Queued         []int64
	Paused         []int64
	RunnablePaused []int64
}

// spawnFunc matches process.Spawn's signature; overridden in tests so
// admission never forks a real child.
type spawnFunc func(command []string, cwd string, env []string, stdoutPath, stderrPath string) (process.Process, error)

// Manager is the Task Manager. The zero value is not usable; construct
// with New.
type Manager struct {
	log *logrus.Logger

	maxCPUs     int
	maxQueueLen int
	spawn       spawnFunc

	// mu is the single logical critical section of §5. Every exported
	// method, and every reaper completion step, runs to completion while
	// holding it, and never blocks on network or subprocess I/O while
	// doing so (spawning is permitted; waiting for exit is not).
	mu sync.Mutex

	nextID int64
	tasks  map[int64]*task.Task

	queued         *btree.BTree // idItem, Queued tasks awaiting a spawn.
	pausedRunnable *btree.BTree // idItem, Paused tasks awaiting a continue.

	activeCount int
	stopped     bool

	waiters errgroup.Group
}

// New constructs a Manager with the given admission bound, queue
// length bound, and logger. log may be nil, in which case a logger
// that discards output is used.
func New(maxCPUs, maxQueueLen int, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
		log.SetOutput(discard{})
	}
	return &Manager{
		log:            log,
		maxCPUs:        maxCPUs,
		maxQueueLen:    maxQueueLen,
		spawn:          spawnAdapter,
		tasks:          make(map[int64]*task.Task),
		queued:         btree.New(btreeDegree),
		pausedRunnable: btree.New(btreeDegree),
	}
}

func spawnAdapter(command []string, cwd string, env []string, stdoutPath, stderrPath string) (process.Process, error) {
	return process.Spawn(command, cwd, env, stdoutPath, stderrPath)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Submit appends a new Queued task with a fresh id and invokes
// admission. It returns the assigned id before the child may have
// started running (§4.3).
func (m *Manager) Submit(command []string, submitter, dir string, env []string, stdoutPath, stderrPath string) (int64, error) {
	if len(command) == 0 {
		return 0, ErrBadRequest
	}
	cmd := make([]string, len(command))
	copy(cmd, command)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) >= m.maxQueueLen {
		m.log.WithField("queue_len", len(m.tasks)).Warn("submit rejected: queue full")
		return 0, ErrBadRequest
	}

	id := m.nextID
	m.nextID++
	m.tasks[id] = &task.Task{
		ID:         id,
		Command:    cmd,
		Submitter:  submitter,
		Dir:        dir,
		Env:        env,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
		State:      task.Queued,
	}
	m.queued.ReplaceOrInsert(idItem(id))
	m.log.WithFields(logrus.Fields{"task_id": id, "command": cmd}).Info("task submitted")

	m.admitLocked()
	return id, nil
}

// List returns a snapshot of the four disjoint id sets. The snapshot is
// deep-copied out of manager-owned state so a caller mutating it cannot
// corrupt the scheduler (P6, P7).
func (m *Manager) List() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{MaxCPUs: m.maxCPUs}
	for id, t := range m.tasks {
		switch t.State {
		case task.Active:
			snap.Active = append(snap.Active, id)
		case task.Queued:
			snap.Queued = append(snap.Queued, id)
		case task.Paused:
			if t.Runnable {
				snap.RunnablePaused = append(snap.RunnablePaused, id)
			} else {
				snap.Paused = append(snap.Paused, id)
			}
		}
	}
	for _, s := range [][]int64{snap.Active, snap.Queued, snap.Paused, snap.RunnablePaused} {
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	}
	return deepcopy.Copy(snap).(Snapshot)
}

// IDTask returns the command sequence of a live task, or ok=false if
// id does not correspond to any live task.
func (m *Manager) IDTask(id int64) (command []string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, found := m.tasks[id]
	if !found {
		return nil, false
	}
	snap := t.ToSnapshot()
	return snap.Command, true
}

// Suspend moves an Active task to Paused (runnable=false), sending
// SIGSTOP to its process group, and invokes admission to fill the
// freed slot. It returns false if id is unknown or the task is not
// Active.
func (m *Manager) Suspend(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.State != task.Active {
		return false
	}
	if err := t.Process.Signal(syscall.SIGSTOP); err != nil {
		m.log.WithField("task_id", id).WithError(err).Warn("suspend: process gone")
		return false
	}
	t.State = task.Paused
	t.Runnable = false
	m.activeCount--
	m.log.WithField("task_id", id).Info("task suspended")
	m.admitLocked()
	return true
}

// Resume marks a Paused task runnable. The continue-signal is sent
// during a later admission pass, once a slot is free (§4.3); Resume
// itself only flips the flag and re-invokes admission.
func (m *Manager) Resume(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.State != task.Paused {
		return false
	}
	t.Runnable = true
	m.pausedRunnable.ReplaceOrInsert(idItem(id))
	m.log.WithField("task_id", id).Info("task marked runnable")
	m.admitLocked()
	return true
}

// Kill terminates a task by signal, regardless of its current state.
// A Queued task is simply discarded without ever starting; an Active
// or Paused task is signaled and removed from its set immediately —
// the eventual OS-level reap is left to its waiter (§4.3).
func (m *Manager) Kill(id int64, sig syscall.Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false
	}

	switch t.State {
	case task.Queued:
		m.queued.Delete(idItem(id))
		delete(m.tasks, id)
		m.log.WithField("task_id", id).Info("queued task killed before it ran")
		return true

	case task.Active, task.Paused:
		if err := t.Process.Signal(sig); err != nil {
			m.log.WithField("task_id", id).WithError(err).Warn("kill: process gone")
			return false
		}
		if t.State == task.Active {
			m.activeCount--
		} else if t.Runnable {
			m.pausedRunnable.Delete(idItem(id))
		}
		delete(m.tasks, id)
		m.log.WithFields(logrus.Fields{"task_id": id, "signal": int(sig)}).Info("task killed")
		m.admitLocked()
		return true

	default:
		return false
	}
}

// Stop stops the manager from admitting further work. It does not
// signal any Active child; they are left to run to completion or be
// reaped normally (§9's resolved Open Question).
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.log.Info("manager stopping: no longer admitting new tasks")
}

// Wait blocks until every waiter goroutine launched by admission has
// observed its child's exit. It is used by tests; neither Stop nor the
// daemon's shutdown calls it.
func (m *Manager) Wait() error {
	return m.waiters.Wait()
}

// admitLocked is the admission step of §4.2. Callers must hold mu.
// While a slot is free and an eligible candidate exists, it resumes a
// runnable-paused candidate (priority) or spawns a queued one (FIFO by
// id within each class). A failed spawn moves straight to Terminal and
// does not block further admissions.
func (m *Manager) admitLocked() {
	if m.stopped {
		return
	}
	for m.activeCount < m.maxCPUs {
		if item := m.pausedRunnable.Min(); item != nil {
			id := int64(item.(idItem))
			m.pausedRunnable.DeleteMin()
			t := m.tasks[id]
			if err := t.Process.Signal(syscall.SIGCONT); err != nil {
				m.log.WithField("task_id", id).WithError(err).Warn("resume admission: process gone")
				delete(m.tasks, id)
				continue
			}
			t.State = task.Active
			m.activeCount++
			m.log.WithField("task_id", id).Debug("task admitted: resumed")
			continue
		}

		if item := m.queued.Min(); item != nil {
			id := int64(item.(idItem))
			m.queued.DeleteMin()
			t := m.tasks[id]
			h, err := m.spawn(t.Command, t.Dir, t.Env, t.StdoutPath, t.StderrPath)
			if err != nil {
				m.log.WithField("task_id", id).WithError(err).Error("spawn failed")
				delete(m.tasks, id)
				continue
			}
			t.Process = h
			t.State = task.Active
			m.activeCount++
			m.log.WithFields(logrus.Fields{"task_id": id, "pid": h.PID()}).Info("task admitted: spawned")
			m.launchWaiter(id, h)
			continue
		}

		break
	}
	m.log.WithFields(logrus.Fields{
		"active": m.activeCount,
		"queued": m.queued.Len(),
		"paused": m.pausedRunnable.Len(),
	}).Debug("admission pass complete")
}

// launchWaiter starts the single goroutine that will ever wait on h. It
// holds the task id, not a pointer to the record (§9): on completion it
// re-resolves the record under mu, which makes reaping safe against a
// concurrent kill that already discarded the task.
func (m *Manager) launchWaiter(id int64, h process.Process) {
	m.waiters.Go(func() error {
		status, _ := h.Wait()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.reapLocked(id, status)
		return nil
	})
}

// reapLocked is the completion step of §4.5. If the task was already
// removed by a concurrent Kill, this is a no-op: the waiter never
// double-frees a slot or interferes with a task it no longer owns.
func (m *Manager) reapLocked(id int64, status process.ExitStatus) {
	t, ok := m.tasks[id]
	if !ok {
		return
	}
	delete(m.tasks, id)
	if t.State == task.Active {
		m.activeCount--
	}
	if status.Signaled {
		m.log.WithFields(logrus.Fields{"task_id": id, "signal": status.Signal}).Info("task exited via signal")
	} else if status.Code == 0 {
		m.log.WithField("task_id", id).Info("task completed successfully")
	} else {
		m.log.WithFields(logrus.Fields{"task_id": id, "exit_code": status.Code}).Warn("task exited with error")
	}
	m.admitLocked()
}
