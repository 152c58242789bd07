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

// Package cli implements the batchq client subcommands of spec.md §6:
// start, submit, list, id, kill, suspend, resume, stop. Each is a
// subcommands.Command in the style of runsc's cmd package, registered
// with google/subcommands by cmd/batchq/main.go.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nbecker/batch-queue2/internal/client"
)

// Addr is the daemon address every subcommand dials; set from the
// global --addr flag before subcommands.Execute runs.
var Addr = "127.0.0.1:7080"

func dial() (*client.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Dial(ctx, Addr)
}

func exitCode(err error) int {
	if err != nil {
		fmt.Println("error:", err)
		return 1
	}
	return 0
}
