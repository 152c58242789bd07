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

package manager

import (
	"sort"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nbecker/batch-queue2/internal/process"
)

// fakeProcess is a process.Process test double that never forks: it
// blocks in Wait until exit is requested, and records every signal it
// receives.
type fakeProcess struct {
	mu       sync.Mutex
	pid      int
	gone     bool
	signals  []syscall.Signal
	exitCh   chan process.ExitStatus
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exitCh: make(chan process.ExitStatus, 1)}
}

func (f *fakeProcess) PID() int { return f.pid }

func (f *fakeProcess) Signal(sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return process.ErrProcessGone
	}
	f.signals = append(f.signals, sig)
	return nil
}

func (f *fakeProcess) Wait() (process.ExitStatus, error) {
	status := <-f.exitCh
	f.mu.Lock()
	f.gone = true
	f.mu.Unlock()
	return status, nil
}

func (f *fakeProcess) finish(status process.ExitStatus) {
	f.exitCh <- status
}

func (f *fakeProcess) sentSignals() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]syscall.Signal, len(f.signals))
	copy(out, f.signals)
	return out
}

// testHarness wires a Manager to a fake spawner, handing back the
// fakeProcess created for each spawned command's id so tests can
// control exit timing.
type testHarness struct {
	mgr *Manager

	mu        sync.Mutex
	byPID     map[int]*fakeProcess
	nextPID   int
}

func newHarness(maxCPUs, maxQueueLen int) *testHarness {
	h := &testHarness{
		mgr:     New(maxCPUs, maxQueueLen, nil),
		byPID:   make(map[int]*fakeProcess),
		nextPID: 100,
	}
	h.mgr.spawn = h.spawn
	return h
}

func (h *testHarness) spawn(command []string, cwd string, env []string, stdoutPath, stderrPath string) (process.Process, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pid := h.nextPID
	h.nextPID++
	p := newFakeProcess(pid)
	h.byPID[pid] = p
	return p, nil
}

// processOf returns the fakeProcess behind task id, waiting briefly for
// admission to have spawned it.
func (h *testHarness) processOf(t *testing.T, id int64) *fakeProcess {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.mgr.mu.Lock()
		tk, ok := h.mgr.tasks[id]
		var proc process.Process
		if ok {
			proc = tk.Process
		}
		h.mgr.mu.Unlock()
		if proc != nil {
			return proc.(*fakeProcess)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %d was never admitted", id)
	return nil
}

func sorted(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalIDs(t *testing.T, got, want []int64) {
	t.Helper()
	got = sorted(got)
	want = sorted(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// P2: submitted ids are strictly increasing and contiguous.
func TestSubmitIDsAreContiguous(t *testing.T) {
	h := newHarness(4, 16)
	for want := int64(0); want < 5; want++ {
		id, err := h.mgr.Submit([]string{"true"}, "u", "/", nil, "", "")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if id != want {
			t.Fatalf("submit #%d: got id %d, want %d", want, id, want)
		}
	}
}

// P5: submit followed immediately by id_task returns the command
// sequence unchanged.
func TestSubmitThenIDTaskRoundTrips(t *testing.T) {
	h := newHarness(4, 16)
	cmd := []string{"echo", "hello", "world"}
	id, err := h.mgr.Submit(cmd, "u", "/", nil, "", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, ok := h.mgr.IDTask(id)
	if !ok {
		t.Fatalf("id_task(%d): not found", id)
	}
	if len(got) != len(cmd) {
		t.Fatalf("got %v, want %v", got, cmd)
	}
	for i := range cmd {
		if got[i] != cmd[i] {
			t.Fatalf("got %v, want %v", got, cmd)
		}
	}
}

// Empty commands are rejected as BadRequest.
func TestSubmitEmptyCommandRejected(t *testing.T) {
	h := newHarness(1, 16)
	if _, err := h.mgr.Submit(nil, "u", "/", nil, "", ""); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

// The queue length bound rejects submission once full.
func TestSubmitRejectsOverfullQueue(t *testing.T) {
	h := newHarness(1, 2)
	if _, err := h.mgr.Submit([]string{"sleep"}, "u", "/", nil, "", ""); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if _, err := h.mgr.Submit([]string{"sleep"}, "u", "/", nil, "", ""); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	if _, err := h.mgr.Submit([]string{"sleep"}, "u", "/", nil, "", ""); err == nil {
		t.Fatal("expected the third submit to be rejected: queue is full")
	}
}

// Scenario 1: admission bound. max_cpus=1, two submissions, only the
// first is admitted to Active; the second waits Queued.
func TestAdmissionBound(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "1"}, "u", "/", nil, "", "")
	id1, _ := h.mgr.Submit([]string{"sleep", "1"}, "u", "/", nil, "", "")

	p0 := h.processOf(t, id0)

	snap := h.mgr.List()
	equalIDs(t, snap.Active, []int64{id0})
	equalIDs(t, snap.Queued, []int64{id1})

	p0.finish(process.ExitStatus{Code: 0})
	p1 := h.processOf(t, id1)
	p1.finish(process.ExitStatus{Code: 0})
	if err := h.mgr.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	snap = h.mgr.List()
	equalIDs(t, snap.Active, nil)
	equalIDs(t, snap.Queued, nil)
}

// Scenario 2: suspend frees a slot for a queued task.
func TestSuspendFreesSlot(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	id1, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	h.processOf(t, id0)

	if ok := h.mgr.Suspend(id0); !ok {
		t.Fatal("suspend(id0) = false, want true")
	}
	h.processOf(t, id1)

	snap := h.mgr.List()
	equalIDs(t, snap.Paused, []int64{id0})
	equalIDs(t, snap.Active, []int64{id1})
}

// Scenario 3: resume is deferred while the scheduler is saturated, and
// takes effect once a slot frees up.
func TestResumeDeferredUntilSlotFree(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	p0 := h.processOf(t, id0)
	if ok := h.mgr.Suspend(id0); !ok {
		t.Fatal("suspend(id0) = false, want true")
	}

	id1, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	p1 := h.processOf(t, id1)

	if ok := h.mgr.Resume(id0); !ok {
		t.Fatal("resume(id0) = false, want true")
	}
	snap := h.mgr.List()
	equalIDs(t, snap.Active, []int64{id1})
	equalIDs(t, snap.RunnablePaused, []int64{id0})

	p1.finish(process.ExitStatus{Code: 0})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap = h.mgr.List()
		if len(snap.Active) == 1 && snap.Active[0] == id0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	equalIDs(t, snap.Active, []int64{id0})
	if sigs := p0.sentSignals(); len(sigs) != 2 || sigs[0] != syscall.SIGSTOP || sigs[1] != syscall.SIGCONT {
		t.Fatalf("id0 signals = %v, want [SIGSTOP SIGCONT]", sigs)
	}
}

// P3: when a slot frees with both a runnable-paused candidate and a
// queued candidate eligible, the runnable-paused candidate is admitted
// first and the queued candidate stays Queued.
func TestResumeAdmittedBeforeQueuedOnSameFreedSlot(t *testing.T) {
	h := newHarness(1, 16)

	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	h.processOf(t, id0)
	if ok := h.mgr.Suspend(id0); !ok {
		t.Fatal("suspend(id0) = false, want true")
	}

	id1, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	p1 := h.processOf(t, id1)

	id2, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")

	if ok := h.mgr.Resume(id0); !ok {
		t.Fatal("resume(id0) = false, want true")
	}
	snap := h.mgr.List()
	equalIDs(t, snap.Active, []int64{id1})
	equalIDs(t, snap.Queued, []int64{id2})
	equalIDs(t, snap.RunnablePaused, []int64{id0})

	// Free the one slot with both id0 (runnable-paused) and id2 (queued)
	// eligible: id0 must win.
	p1.finish(process.ExitStatus{Code: 0})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap = h.mgr.List()
		if len(snap.Active) == 1 && snap.Active[0] == id0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	equalIDs(t, snap.Active, []int64{id0})
	equalIDs(t, snap.Queued, []int64{id2})
	equalIDs(t, snap.RunnablePaused, nil)
	if sigs := h.processOf(t, id0).sentSignals(); len(sigs) != 2 || sigs[0] != syscall.SIGSTOP || sigs[1] != syscall.SIGCONT {
		t.Fatalf("id0 signals = %v, want [SIGSTOP SIGCONT]", sigs)
	}
	if _, ok := h.mgr.tasks[id2]; !ok || h.mgr.tasks[id2].Process != nil {
		t.Fatal("id2 was spawned, want it to remain queued unspawned")
	}
}

// Scenario 4: killing a queued task discards it before it ever runs.
func TestKillQueuedTaskNeverRuns(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	h.processOf(t, id0)
	id1, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")

	if ok := h.mgr.Kill(id1, syscall.SIGTERM); !ok {
		t.Fatal("kill(id1) = false, want true")
	}

	snap := h.mgr.List()
	equalIDs(t, snap.Active, []int64{id0})
	equalIDs(t, snap.Queued, nil)
	if _, ok := h.mgr.IDTask(id1); ok {
		t.Fatal("id_task(id1) found a task that was killed before it ran")
	}
}

// Scenario 5: killing a paused task removes it from every set.
func TestKillPausedTask(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	h.processOf(t, id0)
	if ok := h.mgr.Suspend(id0); !ok {
		t.Fatal("suspend(id0) = false, want true")
	}
	if ok := h.mgr.Kill(id0, syscall.SIGKILL); !ok {
		t.Fatal("kill(id0) = false, want true")
	}

	snap := h.mgr.List()
	equalIDs(t, snap.Paused, nil)
	equalIDs(t, snap.RunnablePaused, nil)
	equalIDs(t, snap.Active, nil)
}

// Scenario 6: unknown ids fail softly rather than erroring.
func TestUnknownIDOperationsFailSoftly(t *testing.T) {
	h := newHarness(1, 16)
	if ok := h.mgr.Suspend(9999); ok {
		t.Fatal("suspend(unknown) = true, want false")
	}
	if _, ok := h.mgr.IDTask(9999); ok {
		t.Fatal("id_task(unknown) found a task, want not-found")
	}
	if ok := h.mgr.Kill(9999, syscall.SIGTERM); ok {
		t.Fatal("kill(unknown) = true, want false")
	}
}

// P7: the four id sets returned by List are pairwise disjoint.
func TestListPartitionIsDisjoint(t *testing.T) {
	h := newHarness(2, 16)
	var ids []int64
	for i := 0; i < 5; i++ {
		id, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
		ids = append(ids, id)
	}
	h.processOf(t, ids[0])
	h.processOf(t, ids[1])
	h.mgr.Suspend(ids[0])

	snap := h.mgr.List()
	seen := make(map[int64]int)
	for _, id := range snap.Active {
		seen[id]++
	}
	for _, id := range snap.Queued {
		seen[id]++
	}
	for _, id := range snap.Paused {
		seen[id]++
	}
	for _, id := range snap.RunnablePaused {
		seen[id]++
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("task %d appeared in %d sets, want exactly 1", id, seen[id])
		}
	}
}

// Stop prevents further admission without disturbing Active tasks
// already running (§9's resolved Open Question): the Active task is
// neither signaled nor removed, and once its slot is freed by a kill the
// queued task is still not admitted.
func TestStopLeavesActiveTasksRunning(t *testing.T) {
	h := newHarness(1, 16)
	id0, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")
	p0 := h.processOf(t, id0)
	id1, _ := h.mgr.Submit([]string{"sleep", "100"}, "u", "/", nil, "", "")

	h.mgr.Stop()
	if sigs := p0.sentSignals(); len(sigs) != 0 {
		t.Fatalf("id0 signals after Stop = %v, want none", sigs)
	}
	equalIDs(t, h.mgr.List().Active, []int64{id0})

	h.mgr.Kill(id0, syscall.SIGTERM)

	time.Sleep(10 * time.Millisecond)
	snap := h.mgr.List()
	equalIDs(t, snap.Active, nil)
	equalIDs(t, snap.Queued, []int64{id1})
}
