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

// Package client is the CLI's half of the RPC boundary: an XML-RPC
// client for the daemon's /RPC2 endpoint, with a short connect-retry so
// a CLI invocation racing a just-started daemon does not spuriously
// fail (mirroring the sandbox package's backoff.Retry wait, here
// applied to the initial connection rather than a process exit).
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/kolo/xmlrpc"
)

// Snapshot mirrors list_tasks's return struct.
type Snapshot struct {
	MaxCPUs        int     `xmlrpc:"max_cpus"`
	Active         []int64 `xmlrpc:"active"`
	Queued         []int64 `xmlrpc:"queued"`
	Paused         []int64 `xmlrpc:"paused"`
	RunnablePaused []int64 `xmlrpc:"runnable_paused"`
}

// Client is a thin wrapper over *xmlrpc.Client binding the seven
// methods of spec.md §6.
type Client struct {
	rpc *xmlrpc.Client
}

// Dial connects to the daemon at addr (host:port), retrying every 200ms
// until a TCP connection succeeds or ctx is done, so a CLI command issued
// immediately after `batchq start` does not fail before the listener is
// up.
func Dial(ctx context.Context, addr string) (*Client, error) {
	url := fmt.Sprintf("http://%s/RPC2", addr)

	var rpc *xmlrpc.Client
	connect := func() error {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return err
		}
		conn.Close()
		c, err := xmlrpc.NewClient(url, nil)
		if err != nil {
			return err
		}
		rpc = c
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(200*time.Millisecond), ctx)
	if err := backoff.Retry(connect, b); err != nil {
		return nil, fmt.Errorf("connecting to batchq daemon at %s: %w", addr, err)
	}
	return &Client{rpc: rpc}, nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Submit calls submit_task and returns the assigned task id.
func (c *Client) Submit(command []string, user, dir string, env map[string]string, stdoutPath, stderrPath string) (int64, error) {
	var id int64
	args := []interface{}{command, user, dir, env, stdoutPath, stderrPath}
	if err := c.rpc.Call("submit_task", args, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// List calls list_tasks.
func (c *Client) List() (Snapshot, error) {
	var snap Snapshot
	if err := c.rpc.Call("list_tasks", nil, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// IDTask calls id_task. ok is false if the id is unknown.
func (c *Client) IDTask(id int64) (command []string, ok bool, err error) {
	var reply interface{}
	if err := c.rpc.Call("id_task", []interface{}{id}, &reply); err != nil {
		return nil, false, err
	}
	if reply == nil {
		return nil, false, nil
	}
	items, ok := reply.([]interface{})
	if !ok {
		return nil, false, fmt.Errorf("id_task: unexpected reply shape %T", reply)
	}
	out := make([]string, len(items))
	for i, v := range items {
		s, _ := v.(string)
		out[i] = s
	}
	return out, true, nil
}

// Suspend calls suspend_task.
func (c *Client) Suspend(id int64) (bool, error) {
	var ok bool
	err := c.rpc.Call("suspend_task", []interface{}{id}, &ok)
	return ok, err
}

// Resume calls resume_task.
func (c *Client) Resume(id int64) (bool, error) {
	var ok bool
	err := c.rpc.Call("resume_task", []interface{}{id}, &ok)
	return ok, err
}

// Kill calls kill_task with the given signal number.
func (c *Client) Kill(id int64, signal int) (bool, error) {
	var ok bool
	err := c.rpc.Call("kill_task", []interface{}{id, signal}, &ok)
	return ok, err
}

// Stop calls stop_server.
func (c *Client) Stop() error {
	var ok bool
	return c.rpc.Call("stop_server", nil, &ok)
}
