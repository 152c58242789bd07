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

// ID implements subcommands.Command for "id": prints the command
// sequence of a single task.
type ID struct{}

func (*ID) Name() string     { return "id" }
func (*ID) Synopsis() string { return "give details of task" }
func (*ID) Usage() string    { return "id TASK_ID - print the command sequence of a task\n" }
func (*ID) SetFlags(*flag.FlagSet) {}

func (*ID) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	id, err := strconv.ParseInt(f.Arg(0), 10, 64)
	if err != nil {
		fmt.Println("error: task id must be an integer:", err)
		return subcommands.ExitUsageError
	}

	c, err := dial()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	command, ok, err := c.IDTask(id)
	if err != nil {
		fmt.Println("Failed to id task:", err)
		return subcommands.ExitFailure
	}
	if !ok {
		fmt.Println("cmd: None")
		return subcommands.ExitSuccess
	}
	fmt.Printf("cmd: %v\n", command)
	return subcommands.ExitSuccess
}
