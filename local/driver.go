// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package local runs node daemons as processes on this machine.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/utils"
	"go.uber.org/zap"
)

const (
	DefaultStartGrace  = 500 * time.Millisecond
	DefaultStopTimeout = 30 * time.Second
)

var (
	_ driver.Driver = (*Driver)(nil)

	ErrNoExecutor   = errors.New("no executable registered for image")
	ErrStillRunning = errors.New("node is still running")
)

// ArgsFunc returns the command line of node [n] whose files live in [dataDir].
type ArgsFunc func(n driver.Node, dataDir string) []string

// DefaultArgs runs bitcoind and lnd on regtest.
func DefaultArgs(n driver.Node, dataDir string) []string {
	switch n.Kind {
	case node.Bitcoin:
		return []string{"-regtest", "-server", "-datadir=" + dataDir}
	default:
		return []string{"--bitcoin.active", "--bitcoin.regtest", "--lnddir=" + dataDir}
	}
}

type Config struct {
	Log       *zap.Logger
	Executors ExecutorRegistry
	// Node files go under here. See utils.NodeDataDir.
	DataDir string
	// Defaults to DefaultArgs.
	Args ArgsFunc
	// A node that is still running this long after its start is ready.
	StartGrace time.Duration
	// A node that hasn't exited this long after SIGINT is killed.
	StopTimeout time.Duration
	// If true, node output is printed, prefixed with the node id.
	RedirectOutput bool
	// Default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Driver runs each node as a child process.
type Driver struct {
	cfg         Config
	log         *zap.Logger
	colorPicker utils.ColorPicker

	lock sync.Mutex
	// driver.Node.Key --> process
	procs map[string]Process
}

func NewDriver(cfg Config) (*Driver, error) {
	switch {
	case cfg.Executors == nil:
		return nil, errors.New("no executor registry given")
	case cfg.DataDir == "":
		return nil, errors.New("no data dir given")
	}
	if cfg.Log == nil {
		cfg.Log = zap.L()
	}
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.StartGrace <= 0 {
		cfg.StartGrace = DefaultStartGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Driver{
		cfg:         cfg,
		log:         cfg.Log,
		colorPicker: utils.NewColorPicker(),
		procs:       make(map[string]Process),
	}, nil
}

func (d *Driver) dataDir(n driver.Node) string {
	return utils.NodeDataDir(d.cfg.DataDir, n.NetworkID, n.ID)
}

// StartNode returns once the process has survived the start grace period.
// Starting a node that is already running is a no-op.
func (d *Driver) StartNode(_ context.Context, n driver.Node) (bool, error) {
	d.lock.Lock()
	proc, ok := d.procs[n.Key()]
	d.lock.Unlock()
	if ok && proc.Running() {
		return true, nil
	}
	executable, ok := d.cfg.Executors.GetExecutor(n.Image)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoExecutor, n.Image)
	}
	if err := utils.CheckExecPath(executable); err != nil {
		resolved, lookErr := exec.LookPath(executable)
		if lookErr != nil {
			return false, fmt.Errorf("image %s: %w", n.Image, err)
		}
		executable = resolved
	}
	dir := d.dataDir(n)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("couldn't create data dir: %w", err)
	}

	cmd := exec.Command(executable, d.cfg.Args(n, dir)...)
	cmd.Dir = dir
	if d.cfg.RedirectOutput {
		if err := d.redirect(cmd, n); err != nil {
			return false, err
		}
	}
	// unlocked for the grace wait; the controller never starts the same
	// node twice at once
	proc, err := startDaemon(n.Key(), cmd, d.cfg.StartGrace)
	if err != nil {
		return false, err
	}
	d.lock.Lock()
	d.procs[n.Key()] = proc
	d.lock.Unlock()
	d.log.Info("started node",
		zap.String("node", n.Key()),
		zap.String("executable", executable),
		zap.Int("pid", proc.Pid()),
	)
	return true, nil
}

func (d *Driver) redirect(cmd *exec.Cmd, n driver.Node) error {
	c := d.colorPicker.NextColor()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("couldn't create stdout pipe: %w", err)
	}
	utils.ColorAndPrepend(stdout, d.cfg.Stdout, n.ID, c)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("couldn't create stderr pipe: %w", err)
	}
	utils.ColorAndPrepend(stderr, d.cfg.Stderr, n.ID, c)
	return nil
}

// StopNode sends SIGINT and waits up to the stop timeout, then kills the
// process and its descendants.
func (d *Driver) StopNode(ctx context.Context, n driver.Node) (bool, error) {
	d.lock.Lock()
	proc, ok := d.procs[n.Key()]
	d.lock.Unlock()
	if !ok {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.StopTimeout)
	defer cancel()
	if err := proc.Stop(ctx); err != nil {
		d.log.Warn("node didn't stop in time, killed it", zap.String("node", n.Key()), zap.Error(err))
	}
	exit := proc.Wait()
	// interrupted daemons commonly exit non-zero
	d.log.Debug("node exited",
		zap.String("node", n.Key()),
		zap.Int("code", exit.Code),
		zap.Duration("uptime", exit.Uptime),
		zap.Error(exit.Err),
	)
	return !proc.Running(), nil
}

// ReleaseNode deletes the node's data dir. The node must be stopped.
func (d *Driver) ReleaseNode(_ context.Context, n driver.Node) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if proc, ok := d.procs[n.Key()]; ok {
		if proc.Running() {
			return fmt.Errorf("%w: %s", ErrStillRunning, n.Key())
		}
		delete(d.procs, n.Key())
	}
	if err := os.RemoveAll(d.dataDir(n)); err != nil {
		return fmt.Errorf("couldn't remove data dir: %w", err)
	}
	return nil
}

// Running returns how many node processes are running.
func (d *Driver) Running() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	var running int
	for _, proc := range d.procs {
		if proc.Running() {
			running++
		}
	}
	return running
}
