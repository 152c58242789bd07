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

	"github.com/google/subcommands"
)

// Suspend implements subcommands.Command for "suspend", fanning out one
// suspend_task RPC per task id.
type Suspend struct{}

func (*Suspend) Name() string     { return "suspend" }
func (*Suspend) Synopsis() string { return "suspend a task" }
func (*Suspend) Usage() string    { return "suspend TASK_IDS... - pause one or more active tasks\n" }
func (*Suspend) SetFlags(*flag.FlagSet) {}

func (*Suspend) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
		ok, err := c.Suspend(id)
		if err != nil {
			fmt.Printf("Failed to suspend task %d: %v\n", id, err)
			status = subcommands.ExitFailure
			continue
		}
		if ok {
			fmt.Printf("Task %d suspended successfully.\n", id)
		} else {
			fmt.Printf("Failed to suspend task %d.\n", id)
		}
	}
	return status
}
