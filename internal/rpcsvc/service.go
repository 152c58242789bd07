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

// Package rpcsvc is the RPC Boundary of §4.4: it serves the XML-RPC
// methods of spec.md §6 at POST /RPC2 and translates them into calls on
// a *manager.Manager, and the manager's results back into XML-RPC
// values. Unknown methods, parse errors, and internal faults all
// produce an XML-RPC Fault with code 1.
package rpcsvc

import (
	"encoding/xml"
	"io"
	"net/http"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nbecker/batch-queue2/internal/manager"
)

const faultCode = 1

// Manager is the subset of *manager.Manager the service depends on;
// narrowed to an interface so tests can substitute a fake scheduler.
type Manager interface {
	Submit(command []string, submitter, dir string, env []string, stdoutPath, stderrPath string) (int64, error)
	List() manager.Snapshot
	IDTask(id int64) ([]string, bool)
	Suspend(id int64) bool
	Resume(id int64) bool
	Kill(id int64, sig syscall.Signal) bool
	Stop()
}

// Service is the net/http handler that serves /RPC2.
type Service struct {
	mgr Manager
	log *logrus.Logger

	// onStop, if set, is started in its own goroutine when stop_server
	// returns true, possibly before the reply is written; it lets
	// the daemon trigger its own listener shutdown without this package
	// importing the daemon's lifecycle.
	onStop func()
}

// New builds a Service bound to mgr. log may be nil.
func New(mgr Manager, log *logrus.Logger, onStop func()) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{mgr: mgr, log: log, onStop: onStop}
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		s.writeFault(w, "failed to read request body: "+err.Error())
		return
	}

	var call MethodCall
	if err := xml.Unmarshal(body, &call); err != nil {
		s.writeFault(w, "malformed XML-RPC request: "+err.Error())
		return
	}

	resp := s.dispatch(call)
	s.write(w, resp)
}

func (s *Service) dispatch(call MethodCall) MethodResponse {
	args := call.Params
	switch call.MethodName {
	case "submit_task":
		return s.submitTask(args)
	case "list_tasks":
		return s.listTasks(args)
	case "id_task":
		return s.idTask(args)
	case "suspend_task":
		return s.suspendTask(args)
	case "resume_task":
		return s.resumeTask(args)
	case "kill_task":
		return s.killTask(args)
	case "stop_server":
		return s.stopServer(args)
	default:
		s.log.WithField("method", call.MethodName).Warn("rpc: unknown method")
		return NewFault(faultCode, "unknown method: "+call.MethodName)
	}
}

func (s *Service) submitTask(args []Value) MethodResponse {
	if len(args) != 6 {
		return NewFault(faultCode, "submit_task: expected 6 arguments")
	}
	command, ok := stringSlice(args[0].V)
	if !ok {
		return NewFault(faultCode, "submit_task: command must be an array of strings")
	}
	user, _ := args[1].V.(string)
	path, _ := args[2].V.(string)
	envMap, ok := stringMap(args[3].V)
	if !ok {
		return NewFault(faultCode, "submit_task: env must be a struct of strings")
	}
	env := make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	stdout, _ := args[4].V.(string)
	stderr, _ := args[5].V.(string)

	id, err := s.mgr.Submit(command, user, path, env, stdout, stderr)
	if err != nil {
		return NewFault(faultCode, "submit_task: "+err.Error())
	}
	return NewResult(id)
}

func (s *Service) listTasks(args []Value) MethodResponse {
	snap := s.mgr.List()
	return NewResult(map[string]interface{}{
		"max_cpus":        int64(snap.MaxCPUs),
		"active":          snap.Active,
		"queued":          snap.Queued,
		"paused":          snap.Paused,
		"runnable_paused": snap.RunnablePaused,
	})
}

func (s *Service) idTask(args []Value) MethodResponse {
	id, ok := idArg(args, 0)
	if !ok {
		return NewFault(faultCode, "id_task: expected an integer id")
	}
	command, found := s.mgr.IDTask(id)
	if !found {
		return NewResult(nil)
	}
	return NewResult(command)
}

func (s *Service) suspendTask(args []Value) MethodResponse {
	id, ok := idArg(args, 0)
	if !ok {
		return NewFault(faultCode, "suspend_task: expected an integer id")
	}
	return NewResult(s.mgr.Suspend(id))
}

func (s *Service) resumeTask(args []Value) MethodResponse {
	id, ok := idArg(args, 0)
	if !ok {
		return NewFault(faultCode, "resume_task: expected an integer id")
	}
	return NewResult(s.mgr.Resume(id))
}

func (s *Service) killTask(args []Value) MethodResponse {
	if len(args) != 2 {
		return NewFault(faultCode, "kill_task: expected (id, signal)")
	}
	id, ok := idArg(args, 0)
	if !ok {
		return NewFault(faultCode, "kill_task: expected an integer id")
	}
	sigNum, ok := args[1].V.(int64)
	if !ok {
		return NewFault(faultCode, "kill_task: expected an integer signal")
	}
	return NewResult(s.mgr.Kill(id, syscall.Signal(sigNum)))
}

func (s *Service) stopServer(args []Value) MethodResponse {
	s.mgr.Stop()
	if s.onStop != nil {
		go s.onStop()
	}
	return NewResult(true)
}

func idArg(args []Value, i int) (int64, bool) {
	if i >= len(args) {
		return 0, false
	}
	n, ok := args[i].V.(int64)
	return n, ok
}

func stringSlice(v interface{}) ([]string, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func stringMap(v interface{}) (map[string]string, bool) {
	fields, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(fields))
	for k, val := range fields {
		s, ok := val.(string)
		if !ok {
			return nil, false
		}
		out[k] = s
	}
	return out, true
}

func (s *Service) write(w http.ResponseWriter, resp MethodResponse) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	out, err := xml.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("rpc: failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write([]byte(xml.Header))
	w.Write(out)
}

func (s *Service) writeFault(w http.ResponseWriter, message string) {
	s.log.WithField("fault", message).Warn("rpc: request fault")
	s.write(w, NewFault(faultCode, message))
}
