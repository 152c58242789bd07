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
	"strconv"
	"syscall"

	"github.com/google/subcommands"
)

// Kill implements subcommands.Command for "kill". The wire protocol
// only defines a singular kill_task method (§9's resolved Open
// Question), so the plural CLI command fans out one RPC per task id.
type Kill struct {
	signal int
}

func (*Kill) Name() string     { return "kill" }
func (*Kill) Synopsis() string { return "kill a task" }
func (*Kill) Usage() string {
	return "kill [--signal N] TASK_IDS... - send a signal to one or more tasks\n"
}

func (k *Kill) SetFlags(f *flag.FlagSet) {
	f.IntVar(&k.signal, "signal", int(syscall.SIGTERM), "the signal to send to the task")
}

func (k *Kill) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	c, err := dial()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	status := subcommands.ExitSuccess
	for _, arg := range f.Args() {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Printf("error: task id %q is not an integer\n", arg)
			status = subcommands.ExitFailure
			continue
		}
		ok, err := c.Kill(id, k.signal)
		if err != nil {
			fmt.Printf("Failed to kill task %d: %v\n", id, err)
			status = subcommands.ExitFailure
			continue
		}
		if ok {
			fmt.Printf("Task %d killed successfully.\n", id)
		} else {
			fmt.Printf("Failed to kill task %d.\n", id)
		}
	}
	return status
}
