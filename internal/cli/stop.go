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

// Stop implements subcommands.Command for "stop".
type Stop struct{}

func (*Stop) Name() string     { return "stop" }
func (*Stop) Synopsis() string { return "stop the server" }
func (*Stop) Usage() string    { return "stop - request graceful shutdown of batchqd\n" }
func (*Stop) SetFlags(*flag.FlagSet) {}

func (*Stop) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := dial()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	if err := c.Stop(); err != nil {
		fmt.Println("Failed to stop server:", err)
		return subcommands.ExitFailure
	}
	fmt.Println("Server stopped successfully.")
	return subcommands.ExitSuccess
}
