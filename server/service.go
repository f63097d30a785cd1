// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"context"
	"errors"
	"os"

	"github.com/lnsim/ln-network-runner/events"
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/utils"
	"go.uber.org/zap"
)

var (
	_ rpcpb.ControlServiceServer = (*service)(nil)

	ErrClosed         = errors.New("server closed")
	ErrStatusCanceled = errors.New("gRPC stream status canceled")
)

// service implements the control service on top of the controller.
type service struct {
	log        *zap.Logger
	controller *network.Controller
	hub        *events.Hub
	// closed when the server shuts down
	closed <-chan struct{}
}

func (s *service) networkInfo(n *network.Network) *rpcpb.NetworkInfo {
	info := toNetworkInfo(n.Info())
	if op, ok := s.controller.InFlight(n.ID()); ok {
		info.Operation = op
	}
	return info
}

func (s *service) lookup(id uint64) (*network.Network, error) {
	n, err := s.controller.Registry().Get(id)
	if err != nil {
		return nil, toStatusError(err)
	}
	return n, nil
}

// persist saves network [id]. Failing to persist doesn't fail the request.
func (s *service) persist(ctx context.Context, id uint64) {
	if err := s.controller.Registry().SaveNetwork(ctx, id); err != nil {
		s.log.Warn("couldn't persist network", zap.Uint64("network-id", id), zap.Error(err))
	}
}

func (s *service) Ping(context.Context, *rpcpb.PingRequest) (*rpcpb.PingResponse, error) {
	s.log.Debug("received ping request")
	return &rpcpb.PingResponse{Pid: int32(os.Getpid()), Platform: utils.Platform()}, nil
}

func (s *service) Create(ctx context.Context, req *rpcpb.CreateRequest) (*rpcpb.CreateResponse, error) {
	s.log.Info("received create request", zap.String("name", req.Name))
	n, err := s.controller.Create(ctx, req.Name, topologyFromRequest(req))
	if err != nil {
		return nil, toStatusError(err)
	}
	s.persist(ctx, n.ID())
	return &rpcpb.CreateResponse{Network: s.networkInfo(n)}, nil
}

func (s *service) List(context.Context, *rpcpb.ListRequest) (*rpcpb.ListResponse, error) {
	networks := s.controller.List()
	resp := &rpcpb.ListResponse{Networks: make([]*rpcpb.NetworkInfo, len(networks))}
	for i, n := range networks {
		resp.Networks[i] = s.networkInfo(n)
	}
	return resp, nil
}

func (s *service) Find(_ context.Context, req *rpcpb.FindRequest) (*rpcpb.FindResponse, error) {
	n, err := s.lookup(req.Id)
	if err != nil {
		return nil, err
	}
	return &rpcpb.FindResponse{Network: s.networkInfo(n)}, nil
}

// Start responds OK when only nodes failed: the response carries the
// network as it settled and the failed nodes.
func (s *service) Start(ctx context.Context, req *rpcpb.StartRequest) (*rpcpb.StartResponse, error) {
	s.log.Info("received start request", zap.Uint64("network-id", req.Id))
	nodeErrs, err := s.settle(s.controller.Start(ctx, req.Id))
	if err != nil {
		return nil, err
	}
	n, err := s.lookup(req.Id)
	if err != nil {
		return nil, err
	}
	return &rpcpb.StartResponse{Network: s.networkInfo(n), NodeErrors: nodeErrs}, nil
}

func (s *service) Stop(ctx context.Context, req *rpcpb.StopRequest) (*rpcpb.StopResponse, error) {
	s.log.Info("received stop request", zap.Uint64("network-id", req.Id))
	nodeErrs, err := s.settle(s.controller.Stop(ctx, req.Id))
	if err != nil {
		return nil, err
	}
	n, err := s.lookup(req.Id)
	if err != nil {
		return nil, err
	}
	return &rpcpb.StopResponse{Network: s.networkInfo(n), NodeErrors: nodeErrs}, nil
}

// settle splits the result of a start or stop into node errors and the
// error the request fails with.
func (s *service) settle(err error) ([]*rpcpb.NodeError, error) {
	if err == nil {
		return nil, nil
	}
	if network.IsValidation(err) {
		return nil, toStatusError(err)
	}
	nodeErrs, rest := splitDriverErrors(err)
	if rest != nil {
		return nil, toStatusError(rest)
	}
	return nodeErrs, nil
}

func (s *service) Rename(ctx context.Context, req *rpcpb.RenameRequest) (*rpcpb.RenameResponse, error) {
	s.log.Info("received rename request", zap.Uint64("network-id", req.Id), zap.String("name", req.Name))
	if err := s.controller.Rename(ctx, req.Id, req.Name); err != nil {
		return nil, toStatusError(err)
	}
	s.persist(ctx, req.Id)
	n, err := s.lookup(req.Id)
	if err != nil {
		return nil, err
	}
	return &rpcpb.RenameResponse{Network: s.networkInfo(n)}, nil
}

// Remove trusts the caller to have confirmed it.
func (s *service) Remove(ctx context.Context, req *rpcpb.RemoveRequest) (*rpcpb.RemoveResponse, error) {
	s.log.Info("received remove request", zap.Uint64("network-id", req.Id))
	if err := s.controller.Remove(ctx, req.Id); err != nil {
		return nil, toStatusError(err)
	}
	if err := s.controller.Registry().Save(ctx); err != nil {
		s.log.Warn("couldn't persist removal", zap.Uint64("network-id", req.Id), zap.Error(err))
	}
	return &rpcpb.RemoveResponse{}, nil
}

func (s *service) MissingImages(ctx context.Context, req *rpcpb.MissingImagesRequest) (*rpcpb.MissingImagesResponse, error) {
	missing, err := s.controller.MissingImages(ctx, req.Id)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &rpcpb.MissingImagesResponse{Images: missing.List()}, nil
}

// StreamStatus sends the current state of the network (or of every network
// if req.Id is 0), then every change until the client goes away.
func (s *service) StreamStatus(req *rpcpb.StreamStatusRequest, stream rpcpb.ControlService_StreamStatusServer) error {
	s.log.Info("received stream status request", zap.Uint64("network-id", req.Id))

	evs, unsubscribe := s.hub.Subscribe(req.Id)
	defer unsubscribe()

	var current []*network.Network
	if req.Id == 0 {
		current = s.controller.List()
	} else {
		n, err := s.lookup(req.Id)
		if err != nil {
			return err
		}
		current = []*network.Network{n}
	}
	for _, n := range current {
		if err := stream.Send(toStreamResponse(snapshotEvent(n))); err != nil {
			return err
		}
	}

	for {
		select {
		case <-s.closed:
			return toStatusError(ErrClosed)
		case <-stream.Context().Done():
			err := stream.Context().Err()
			if errors.Is(err, context.Canceled) {
				s.log.Debug("client stream canceled")
				return ErrStatusCanceled
			}
			return err
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			if err := stream.Send(toStreamResponse(ev)); err != nil {
				if isClientCanceled(stream.Context().Err(), err) {
					s.log.Debug("client stream canceled", zap.Error(err))
					return nil
				}
				s.log.Warn("failed to send an event", zap.Error(err))
				return err
			}
		}
	}
}

func toStreamResponse(ev events.Event) *rpcpb.StreamStatusResponse {
	t := network.Topology{Nodes: make([]node.Config, len(ev.Nodes))}
	for i, ni := range ev.Nodes {
		t.Nodes[i] = ni.Config
	}
	return &rpcpb.StreamStatusResponse{
		EventId: ev.ID,
		Kind:    string(ev.Kind),
		Network: toNetworkInfo(network.Info{
			ID:      ev.NetworkID,
			Name:    ev.Name,
			Status:  ev.Status,
			Summary: t.Summary(),
			Nodes:   ev.Nodes,
		}),
		Time: ev.Time,
	}
}

// snapshotEvent reports the current state of [n] as a Changed event.
func snapshotEvent(n *network.Network) events.Event {
	info := n.Info()
	return events.New(events.Changed, info.ID, info.Name, info.Status, info.Nodes)
}
