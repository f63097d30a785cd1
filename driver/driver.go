// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package driver defines the node process driver: the component that
// actually starts, stops and releases the process backing a node.
package driver

import (
	"context"
	"fmt"

	"github.com/lnsim/ln-network-runner/network/node"
)

// Node identifies a node across networks.
// Node ids are only unique within their network.
type Node struct {
	NetworkID uint64
	node.Config
}

// Key is unique across networks.
func (n Node) Key() string {
	return fmt.Sprintf("%d/%s", n.NetworkID, n.ID)
}

// Driver implementations must be safe for concurrent use:
// calls for different nodes may run at the same time.
type Driver interface {
	// Starts the node's process. Returns ready == false if the process
	// was issued but is not ready yet; see ReadinessChecker.
	StartNode(ctx context.Context, n Node) (ready bool, err error)
	// Stops the node's process. Idempotent: stopping a node that is not
	// running returns (true, nil).
	StopNode(ctx context.Context, n Node) (stopped bool, err error)
	// Releases every resource held for the node (containers, data dirs).
	// Idempotent.
	ReleaseNode(ctx context.Context, n Node) error
}

// ReadinessChecker is implemented by drivers whose StartNode returns before
// the node is ready to serve.
type ReadinessChecker interface {
	NodeReady(ctx context.Context, n Node) (bool, error)
}
