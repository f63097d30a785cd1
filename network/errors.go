// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"
)

// Validation errors. Operations failing with one of these have not changed
// any node.
var (
	ErrNotFound            = errors.New("network not found")
	ErrNodeNotFound        = errors.New("node not found in network")
	ErrInvalidName         = errors.New("network name must not be empty")
	ErrAlreadyRunning      = errors.New("network is already running")
	ErrNetworkRunning      = errors.New("network must be stopped first")
	ErrOperationInProgress = errors.New("another operation is in progress on this network")
	ErrInvalidTopology     = errors.New("invalid network topology")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrMissingImages       = errors.New("missing images")
	ErrNoImageProvider     = errors.New("no image provider configured")
)

// Causes carried by a DriverError.
var (
	ErrNodeNotReady     = errors.New("node did not become ready in time")
	ErrDependencyFailed = errors.New("a bitcoin node this node depends on failed to start")
	ErrNotConfirmed     = errors.New("driver did not confirm the operation")
)

// DriverError is a node process driver failure for one node.
// The node is left in the Error status.
type DriverError struct {
	NodeID string
	// start, stop or release
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("couldn't %s node %q: %v", e.Op, e.NodeID, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// IsValidation reports whether [err] was rejected before any node changed.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrNodeNotFound,
		ErrInvalidName,
		ErrAlreadyRunning,
		ErrNetworkRunning,
		ErrOperationInProgress,
		ErrInvalidTopology,
		ErrInvalidTransition,
		ErrMissingImages,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
