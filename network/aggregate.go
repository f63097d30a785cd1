// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import "github.com/lnsim/ln-network-runner/network/node/status"

// AggregateStatus reduces node statuses to the network status.
// First match wins:
//  1. any Error    -> Error
//  2. any Starting -> Starting
//  3. any Stopping -> Stopping
//  4. any Started  -> Started (all started, or a mix still converging)
//  5. otherwise    -> Stopped (includes no nodes at all)
func AggregateStatus(statuses []status.Status) status.Status {
	var starting, stopping, started bool
	for _, st := range statuses {
		switch st {
		case status.Error:
			return status.Error
		case status.Starting:
			starting = true
		case status.Stopping:
			stopping = true
		case status.Started:
			started = true
		}
	}
	switch {
	case starting:
		return status.Starting
	case stopping:
		return status.Stopping
	case started:
		return status.Started
	}
	return status.Stopped
}
