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

// Binary batchqd is the batch queue daemon: it owns the Task Manager
// and serves the XML-RPC endpoint of spec.md §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nbecker/batch-queue2/internal/config"
	"github.com/nbecker/batch-queue2/internal/daemon"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "batchqd: invalid configuration:", err)
		os.Exit(1)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "batchqd:", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "batchqd:", err)
		os.Exit(1)
	}
}
