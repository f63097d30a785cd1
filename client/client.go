// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client implements client.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type Config struct {
	Endpoint    string
	DialTimeout time.Duration
}

// Client calls a network runner server. Errors the server rejected a
// request with match the network package errors with errors.Is, e.g.
// network.ErrNotFound. Start and Stop return the response along with a
// *network.DriverError per failed node.
type Client interface {
	Ping(ctx context.Context) (*rpcpb.PingResponse, error)
	Create(ctx context.Context, name string, opts ...OpOption) (*rpcpb.NetworkInfo, error)
	List(ctx context.Context) ([]*rpcpb.NetworkInfo, error)
	Find(ctx context.Context, id uint64) (*rpcpb.NetworkInfo, error)
	Start(ctx context.Context, id uint64) (*rpcpb.StartResponse, error)
	Stop(ctx context.Context, id uint64) (*rpcpb.StopResponse, error)
	Rename(ctx context.Context, id uint64, name string) (*rpcpb.NetworkInfo, error)
	Remove(ctx context.Context, id uint64) error
	MissingImages(ctx context.Context, id uint64) ([]string, error)
	// StreamStatus streams changes of network [id], or of every network if
	// [id] is 0. The channel is closed when the stream ends.
	StreamStatus(ctx context.Context, id uint64) (<-chan *rpcpb.StreamStatusResponse, error)
	Close() error
}

type client struct {
	cfg Config
	log *zap.Logger

	conn *grpc.ClientConn

	controlc rpcpb.ControlServiceClient

	closed    chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, log *zap.Logger) (Client, error) {
	if log == nil {
		log = zap.L()
	}
	log.Debug("dialing server", zap.String("endpoint", cfg.Endpoint))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	conn, err := grpc.DialContext(
		ctx,
		cfg.Endpoint,
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	cancel()
	if err != nil {
		return nil, err
	}

	return &client{
		cfg:      cfg,
		log:      log,
		conn:     conn,
		controlc: rpcpb.NewControlServiceClient(conn),
		closed:   make(chan struct{}),
	}, nil
}

func (c *client) Ping(ctx context.Context) (*rpcpb.PingResponse, error) {
	c.log.Debug("ping")

	// curl http://localhost:8081/v1/ping
	resp, err := c.controlc.Ping(ctx, &rpcpb.PingRequest{})
	return resp, fromStatusError(err)
}

func (c *client) Create(ctx context.Context, name string, opts ...OpOption) (*rpcpb.NetworkInfo, error) {
	ret := &Op{}
	ret.applyOpts(opts)

	req := &rpcpb.CreateRequest{
		Name:           name,
		NumBitcoin:     ret.numBitcoin,
		NumLightning:   ret.numLightning,
		BitcoinImage:   ret.bitcoinImage,
		LightningImage: ret.lightningImage,
	}
	for _, n := range ret.nodes {
		req.Nodes = append(req.Nodes, &rpcpb.NodeSpec{
			Id:    n.ID,
			Kind:  string(n.Kind),
			Image: n.Image,
		})
	}

	c.log.Info("create", zap.String("name", name))
	resp, err := c.controlc.Create(ctx, req)
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp.Network, nil
}

func (c *client) List(ctx context.Context) ([]*rpcpb.NetworkInfo, error) {
	c.log.Debug("list")
	resp, err := c.controlc.List(ctx, &rpcpb.ListRequest{})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp.Networks, nil
}

func (c *client) Find(ctx context.Context, id uint64) (*rpcpb.NetworkInfo, error) {
	c.log.Debug("find", zap.Uint64("network-id", id))
	resp, err := c.controlc.Find(ctx, &rpcpb.FindRequest{Id: id})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp.Network, nil
}

func (c *client) Start(ctx context.Context, id uint64) (*rpcpb.StartResponse, error) {
	c.log.Info("start", zap.Uint64("network-id", id))
	resp, err := c.controlc.Start(ctx, &rpcpb.StartRequest{Id: id})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp, nodeErrors(resp.NodeErrors)
}

func (c *client) Stop(ctx context.Context, id uint64) (*rpcpb.StopResponse, error) {
	c.log.Info("stop", zap.Uint64("network-id", id))
	resp, err := c.controlc.Stop(ctx, &rpcpb.StopRequest{Id: id})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp, nodeErrors(resp.NodeErrors)
}

func (c *client) Rename(ctx context.Context, id uint64, name string) (*rpcpb.NetworkInfo, error) {
	c.log.Info("rename", zap.Uint64("network-id", id), zap.String("name", name))
	resp, err := c.controlc.Rename(ctx, &rpcpb.RenameRequest{Id: id, Name: name})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp.Network, nil
}

func (c *client) Remove(ctx context.Context, id uint64) error {
	c.log.Info("remove", zap.Uint64("network-id", id))
	_, err := c.controlc.Remove(ctx, &rpcpb.RemoveRequest{Id: id})
	return fromStatusError(err)
}

func (c *client) MissingImages(ctx context.Context, id uint64) ([]string, error) {
	c.log.Debug("missing images", zap.Uint64("network-id", id))
	resp, err := c.controlc.MissingImages(ctx, &rpcpb.MissingImagesRequest{Id: id})
	if err != nil {
		return nil, fromStatusError(err)
	}
	return resp.Images, nil
}

func (c *client) StreamStatus(ctx context.Context, id uint64) (<-chan *rpcpb.StreamStatusResponse, error) {
	stream, err := c.controlc.StreamStatus(ctx, &rpcpb.StreamStatusRequest{Id: id})
	if err != nil {
		return nil, fromStatusError(err)
	}

	ch := make(chan *rpcpb.StreamStatusResponse, 1)
	go func() {
		defer close(ch)
		c.log.Debug("start receive routine")
		for {
			msg, err := stream.Recv()
			if err == nil {
				select {
				case ch <- msg:
					continue
				case <-ctx.Done():
					return
				case <-c.closed:
					return
				}
			}

			if errors.Is(err, io.EOF) {
				c.log.Debug("received EOF from server")
				return
			}
			if isClientCanceled(stream.Context().Err(), err) {
				c.log.Debug("stream closed due to client cancellation", zap.Error(err))
			} else {
				c.log.Warn("failed to receive status from gRPC stream", zap.Error(err))
			}
			return
		}
	}()
	return ch, nil
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return c.conn.Close()
}

type Op struct {
	nodes          []node.Config
	numBitcoin     uint32
	numLightning   uint32
	bitcoinImage   string
	lightningImage string
}

type OpOption func(*Op)

func (op *Op) applyOpts(opts []OpOption) {
	for _, opt := range opts {
		opt(op)
	}
}

// WithNodes lists every node of the network. It overrides every other option.
func WithNodes(nodes ...node.Config) OpOption {
	return func(op *Op) {
		op.nodes = append(op.nodes, nodes...)
	}
}

func WithNumBitcoin(numBitcoin uint32) OpOption {
	return func(op *Op) {
		op.numBitcoin = numBitcoin
	}
}

func WithNumLightning(numLightning uint32) OpOption {
	return func(op *Op) {
		op.numLightning = numLightning
	}
}

func WithBitcoinImage(image string) OpOption {
	return func(op *Op) {
		op.bitcoinImage = image
	}
}

func WithLightningImage(image string) OpOption {
	return func(op *Op) {
		op.lightningImage = image
	}
}

// sentinels the server reports by message prefix
var sentinels = []error{
	network.ErrNotFound,
	network.ErrNodeNotFound,
	network.ErrInvalidName,
	network.ErrAlreadyRunning,
	network.ErrNetworkRunning,
	network.ErrOperationInProgress,
	network.ErrInvalidTopology,
	network.ErrInvalidTransition,
	network.ErrMissingImages,
	network.ErrNoImageProvider,
}

// fromStatusError maps a gRPC status error back to the network error it
// was made from, keeping the status error otherwise.
func fromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	for _, sentinel := range sentinels {
		if rest, found := strings.CutPrefix(msg, sentinel.Error()); found {
			return fmt.Errorf("%w%s", sentinel, rest)
		}
	}
	return err
}

func nodeErrors(nodeErrs []*rpcpb.NodeError) error {
	var errs error
	for _, ne := range nodeErrs {
		errs = multierr.Append(errs, &network.DriverError{
			NodeID: ne.NodeId,
			Op:     ne.Op,
			Err:    errors.New(ne.Message),
		})
	}
	return errs
}

func isClientCanceled(ctxErr error, err error) bool {
	if ctxErr != nil {
		return true
	}

	ev, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch ev.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		// client-side context cancel or deadline exceeded
		// "rpc error: code = Canceled desc = context canceled"
		// "rpc error: code = DeadlineExceeded desc = context deadline exceeded"
		return true
	case codes.Unavailable:
		msg := ev.Message()
		// "rpc error: code = Unavailable desc = client disconnected"
		if msg == "client disconnected" {
			return true
		}
		// "rpc error: code = Unavailable desc = stream error: stream ID 21; CANCEL")
		if strings.HasPrefix(msg, "stream error: ") && strings.HasSuffix(msg, "; CANCEL") {
			return true
		}
	}
	return false
}
