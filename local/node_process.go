// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

var _ Process = (*daemon)(nil)

// Process is a running node daemon. An interface so tests can swap in fakes.
type Process interface {
	// Interrupts the daemon and waits for it to exit. When [ctx] is done
	// first, the daemon and its children are killed and ctx.Err() returned.
	// No-op once the daemon exited.
	Stop(ctx context.Context) error
	// Blocks until the daemon exits.
	Wait() Exit
	// False once the daemon exited.
	Running() bool
	Pid() int
}

// Exit describes how a daemon ended.
type Exit struct {
	Code int
	// Non-nil if the daemon couldn't run or exited non-zero.
	Err    error
	Uptime time.Duration
}

type daemon struct {
	key       string
	cmd       *exec.Cmd
	startedAt time.Time
	// closed once [exit] is set
	exited chan struct{}

	lock        sync.Mutex
	interrupted bool
	exit        Exit
}

// startDaemon runs [cmd] and gives it [grace] to fail. A daemon that exits
// within [grace], e.g. on a bad flag or a port in use, fails the start.
func startDaemon(key string, cmd *exec.Cmd, grace time.Duration) (*daemon, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("couldn't start node %s: %w", key, err)
	}
	d := &daemon{
		key:       key,
		cmd:       cmd,
		startedAt: time.Now(),
		exited:    make(chan struct{}),
	}
	go d.reap()

	if grace <= 0 {
		return d, nil
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-d.exited:
		if exit := d.Wait(); exit.Err != nil {
			return nil, fmt.Errorf("node %s exited on startup: %w", key, exit.Err)
		}
		return nil, fmt.Errorf("node %s exited on startup", key)
	case <-timer.C:
		return d, nil
	}
}

func (d *daemon) reap() {
	err := d.cmd.Wait()
	d.lock.Lock()
	d.exit = Exit{
		Code:   d.cmd.ProcessState.ExitCode(),
		Err:    err,
		Uptime: time.Since(d.startedAt),
	}
	d.lock.Unlock()
	close(d.exited)
}

func (d *daemon) Pid() int { return d.cmd.Process.Pid }

func (d *daemon) Running() bool {
	select {
	case <-d.exited:
		return false
	default:
		return true
	}
}

func (d *daemon) Wait() Exit {
	<-d.exited
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.exit
}

func (d *daemon) Stop(ctx context.Context) error {
	if !d.Running() {
		return nil
	}
	d.lock.Lock()
	first := !d.interrupted
	d.interrupted = true
	d.lock.Unlock()
	if first {
		// fails only if the daemon already exited
		_ = d.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-d.exited:
		return nil
	case <-ctx.Done():
		if err := killTree(int32(d.Pid())); err != nil {
			_ = d.cmd.Process.Kill()
		}
		<-d.exited
		return ctx.Err()
	}
}

// killTree kills the process [pid] after every one of its descendants.
func killTree(pid int32) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	children, err := proc.Children()
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		return err
	}
	for _, child := range children {
		_ = killTree(child.Pid)
	}
	return proc.Kill()
}
