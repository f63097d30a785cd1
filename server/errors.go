// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"errors"

	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{network.ErrNotFound, codes.NotFound},
	{network.ErrNodeNotFound, codes.NotFound},
	{network.ErrInvalidName, codes.InvalidArgument},
	{network.ErrInvalidTopology, codes.InvalidArgument},
	{network.ErrAlreadyRunning, codes.FailedPrecondition},
	{network.ErrNetworkRunning, codes.FailedPrecondition},
	{network.ErrInvalidTransition, codes.FailedPrecondition},
	{network.ErrMissingImages, codes.FailedPrecondition},
	{network.ErrNoImageProvider, codes.FailedPrecondition},
	{network.ErrOperationInProgress, codes.Aborted},
}

// toStatusError converts [err] to a gRPC status error. The message keeps the
// sentinel's text as its prefix, so the client can map it back.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return grpcstatus.Error(c.code, err.Error())
		}
	}
	var driverErr *network.DriverError
	if errors.As(err, &driverErr) {
		return grpcstatus.Error(codes.Unavailable, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

// splitDriverErrors returns the node errors in [err], and whatever
// else [err] holds.
func splitDriverErrors(err error) ([]*rpcpb.NodeError, error) {
	var (
		nodeErrs []*rpcpb.NodeError
		rest     error
	)
	for _, e := range multierr.Errors(err) {
		var driverErr *network.DriverError
		if errors.As(e, &driverErr) {
			nodeErrs = append(nodeErrs, &rpcpb.NodeError{
				NodeId:  driverErr.NodeID,
				Op:      driverErr.Op,
				Message: driverErr.Err.Error(),
			})
			continue
		}
		rest = multierr.Append(rest, e)
	}
	return nodeErrs, rest
}
