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

// Package daemon wires together the Task Manager and the RPC Boundary
// into the long-lived batchqd process: config and log setup, the
// single-instance lock file, the /RPC2 listener, systemd readiness
// notification, and signal-driven shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/nbecker/batch-queue2/internal/config"
	"github.com/nbecker/batch-queue2/internal/manager"
	"github.com/nbecker/batch-queue2/internal/rpcsvc"
)

// Daemon is the running batchqd process.
type Daemon struct {
	cfg config.Config
	log *logrus.Logger
	mgr *manager.Manager
	lock *flock.Flock
}

// New constructs the daemon's dependency graph but does not yet bind a
// listener.
func New(cfg config.Config) (*Daemon, error) {
	log := logrus.New()
	logFile, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", cfg.LogFile, err)
	}
	log.SetOutput(logFile)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock file %q: %w", cfg.LockFile, err)
	}
	if !locked {
		return nil, errors.New("another batchqd instance holds the lock file; is it already running?")
	}

	mgr := manager.New(cfg.MaxCPUs, cfg.MaxQueueLen, log)

	return &Daemon{cfg: cfg, log: log, mgr: mgr, lock: lock}, nil
}

// Run binds the /RPC2 listener on loopback:Port and blocks until ctx is
// canceled or stop_server is invoked over RPC. It closes the listener and
// stops admitting new tasks before returning; Active children are left
// running and are not waited on (§9).
func (d *Daemon) Run(ctx context.Context) error {
	defer d.lock.Unlock()

	addr := fmt.Sprintf("127.0.0.1:%d", d.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	svc := rpcsvc.New(d.mgr, d.log, stop)
	mux.Handle("/RPC2", svc)
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		d.log.WithField("addr", addr).Info("batchqd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		d.log.WithError(err).Debug("sd_notify READY failed")
	} else if ok {
		d.log.Debug("sd_notify READY delivered")
	}

	select {
	case <-ctx.Done():
		d.log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.WithError(err).Warn("listener shutdown did not complete cleanly")
	}

	// Active children are left running, detached (§9's resolved Open
	// Question) — Stop only closes admission, it never waits on m.Wait.
	d.mgr.Stop()
	d.log.Info("batchqd stopped")
	return nil
}
