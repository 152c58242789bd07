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
	"os"
	"os/user"

	"github.com/google/subcommands"
)

// Submit implements subcommands.Command for "submit": it captures the
// caller's cwd and environment (mirroring the original's os.getcwd()
// and dict(os.environ)) and submits them along with the command line.
type Submit struct {
	logStdout string
	logStderr string
}

func (*Submit) Name() string     { return "submit" }
func (*Submit) Synopsis() string { return "submit a task" }
func (*Submit) Usage() string {
	return "submit [--log-stdout F] [--log-stderr F] CMD... - submit a shell command\n"
}

func (s *Submit) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.logStdout, "log-stdout", "", "file to log stdout")
	f.StringVar(&s.logStderr, "log-stderr", "", "file to log stderr")
}

func (s *Submit) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	command := f.Args()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	who := submitter()
	env := environMap()

	c, err := dial()
	if err != nil {
		fmt.Println("error:", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	id, err := c.Submit(command, who, cwd, env, s.logStdout, s.logStderr)
	if err != nil {
		fmt.Println("Failed to submit task:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Task submitted successfully with ID: %d\n", id)
	return subcommands.ExitSuccess
}

func submitter() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
