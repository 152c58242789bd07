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

	"github.com/google/subcommands"
)

// List implements subcommands.Command for "list".
type List struct{}

func (*List) Name() string     { return "list" }
func (*List) Synopsis() string { return "list all tasks" }
func (*List) Usage() string    { return "list - show active, queued, and paused task ids\n" }
func (*List) SetFlags(*flag.FlagSet) {}

func (*List) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := dial()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	snap, err := c.List()
	if err != nil {
		fmt.Println("Failed to list tasks:", err)
		return subcommands.ExitFailure
	}
	fmt.Println("Tasks:")
	fmt.Printf("Max CPUs: %d\n", snap.MaxCPUs)
	fmt.Printf("Active tasks: %v\n", snap.Active)
	fmt.Printf("Queued tasks: %v\n", snap.Queued)
	fmt.Printf("Paused tasks: %v\n", snap.Paused)
	fmt.Printf("Runnable paused tasks: %v\n", snap.RunnablePaused)
	return subcommands.ExitSuccess
}
