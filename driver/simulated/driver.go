// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package simulated is an in-memory node process driver. It backs the
// "simulated" server driver and the tests: nodes never run a process, but
// starts, stops, failures and readiness delays behave like a real driver's.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/images"
	"go.uber.org/zap"
)

var (
	_ driver.Driver           = (*Driver)(nil)
	_ driver.ReadinessChecker = (*Driver)(nil)
	_ images.Provider         = (*Driver)(nil)
)

type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpRelease Op = "release"
)

// Call is one driver call, in the order calls were received.
type Call struct {
	Op     Op
	NodeID string
	Node   driver.Node
}

type Config struct {
	Log *zap.Logger
	// Time StartNode and StopNode take to return.
	StartDelay time.Duration
	StopDelay  time.Duration
	// If > 0, StartNode returns ready == false and NodeReady only reports
	// true once this much time has passed since the start.
	ReadyAfter time.Duration
	// Images reported by AvailableImages.
	Images []string
	// If non-nil, every StartNode and StopNode blocks until it can receive
	// from Gate. Lets tests hold an operation in flight.
	Gate chan struct{}
}

type nodeState struct {
	running   bool
	startedAt time.Time
}

// Driver is safe for concurrent use.
type Driver struct {
	cfg Config
	log *zap.Logger

	lock sync.Mutex
	// driver.Node.Key --> state
	nodes map[string]*nodeState
	// node id --> error returned by the next calls for it
	failStart map[string]error
	failStop  map[string]error
	// node id --> node never becomes ready
	neverReady map[string]struct{}
	available  images.Set
	calls      []Call
	released   map[string]struct{}
}

func New(cfg Config) *Driver {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Driver{
		cfg:        cfg,
		log:        cfg.Log,
		nodes:      make(map[string]*nodeState),
		failStart:  make(map[string]error),
		failStop:   make(map[string]error),
		neverReady: make(map[string]struct{}),
		available:  images.NewSet(cfg.Images...),
		released:   make(map[string]struct{}),
	}
}

// FailStart makes every StartNode for node [nodeID] return [err], in any
// network. A nil [err] clears it.
func (d *Driver) FailStart(nodeID string, err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	setOrClear(d.failStart, nodeID, err)
}

// FailStop is FailStart for StopNode.
func (d *Driver) FailStop(nodeID string, err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	setOrClear(d.failStop, nodeID, err)
}

// NeverReady makes node [nodeID] start but never report ready.
func (d *Driver) NeverReady(nodeID string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.neverReady[nodeID] = struct{}{}
}

func setOrClear(m map[string]error, key string, err error) {
	if err == nil {
		delete(m, key)
		return
	}
	m[key] = err
}

func (d *Driver) wait(ctx context.Context, delay time.Duration) error {
	if d.cfg.Gate != nil {
		select {
		case <-d.cfg.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) record(op Op, n driver.Node) {
	d.lock.Lock()
	d.calls = append(d.calls, Call{Op: op, NodeID: n.ID, Node: n})
	d.lock.Unlock()
}

func (d *Driver) StartNode(ctx context.Context, n driver.Node) (bool, error) {
	d.record(OpStart, n)
	if err := d.wait(ctx, d.cfg.StartDelay); err != nil {
		return false, err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.failStart[n.ID]; err != nil {
		return false, err
	}
	d.nodes[n.Key()] = &nodeState{running: true, startedAt: time.Now()}
	delete(d.released, n.Key())
	d.log.Debug("started node", zap.String("node", n.Key()), zap.String("image", n.Image))
	return d.readyLocked(n), nil
}

func (d *Driver) NodeReady(_ context.Context, n driver.Node) (bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	state, ok := d.nodes[n.Key()]
	if !ok || !state.running {
		return false, fmt.Errorf("node %s is not running", n.Key())
	}
	return d.readyLocked(n), nil
}

// Assumes [d.lock] is held.
func (d *Driver) readyLocked(n driver.Node) bool {
	if _, never := d.neverReady[n.ID]; never {
		return false
	}
	state, ok := d.nodes[n.Key()]
	if !ok || !state.running {
		return false
	}
	return time.Since(state.startedAt) >= d.cfg.ReadyAfter
}

// StopNode of a node that isn't running returns (true, nil).
func (d *Driver) StopNode(ctx context.Context, n driver.Node) (bool, error) {
	d.record(OpStop, n)
	if err := d.wait(ctx, d.cfg.StopDelay); err != nil {
		return false, err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.failStop[n.ID]; err != nil {
		return false, err
	}
	if state, ok := d.nodes[n.Key()]; ok {
		state.running = false
	}
	d.log.Debug("stopped node", zap.String("node", n.Key()))
	return true, nil
}

func (d *Driver) ReleaseNode(_ context.Context, n driver.Node) error {
	d.record(OpRelease, n)

	d.lock.Lock()
	defer d.lock.Unlock()

	if state, ok := d.nodes[n.Key()]; ok && state.running {
		return fmt.Errorf("node %s is still running", n.Key())
	}
	delete(d.nodes, n.Key())
	d.released[n.Key()] = struct{}{}
	return nil
}

// Running reports whether the node is running.
func (d *Driver) Running(n driver.Node) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	state, ok := d.nodes[n.Key()]
	return ok && state.running
}

func (d *Driver) Released(n driver.Node) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, ok := d.released[n.Key()]
	return ok
}

// Calls returns a copy of every call received so far.
func (d *Driver) Calls() []Call {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *Driver) ResetCalls() {
	d.lock.Lock()
	d.calls = nil
	d.lock.Unlock()
}

func (d *Driver) AvailableImages(context.Context) (images.Set, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return images.NewSet(d.available.List()...), nil
}

// AddImages makes [ids] available, as if they had been pulled.
func (d *Driver) AddImages(ids ...string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.available.Add(ids...)
}
