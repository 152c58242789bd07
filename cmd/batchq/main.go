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

// Binary batchq is the command-line client for batchqd: submit, list,
// id, kill, suspend, resume, stop, and start (spec.md §6's CLI
// surface).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/nbecker/batch-queue2/internal/cli"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7080", "batchqd address")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&cli.Start{}, "")
	subcommands.Register(&cli.Submit{}, "")
	subcommands.Register(&cli.List{}, "")
	subcommands.Register(&cli.ID{}, "")
	subcommands.Register(&cli.Kill{}, "")
	subcommands.Register(&cli.Suspend{}, "")
	subcommands.Register(&cli.Resume{}, "")
	subcommands.Register(&cli.Stop{}, "")

	flag.Parse()
	cli.Addr = *addr

	os.Exit(int(subcommands.Execute(context.Background())))
}
