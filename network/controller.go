// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/events"
	"github.com/lnsim/ln-network-runner/images"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	opCreate  = "create"
	opStart   = "start"
	opStop    = "stop"
	opRename  = "rename"
	opRemove  = "remove"
	opRelease = "release"

	DefaultReadyTimeout      = 2 * time.Minute
	DefaultReadyPollInterval = 500 * time.Millisecond
	DefaultMaxConcurrency    = 8
)

var tracer = otel.Tracer("github.com/lnsim/ln-network-runner/network")

type ControllerConfig struct {
	// Required
	Registry *Registry
	// Required
	Driver driver.Driver
	// Consulted by MissingImages, and by Start if [RequireImages].
	Images images.Provider
	// If true, Start fails with ErrMissingImages while images are missing.
	RequireImages bool
	// May be nil
	Events  events.Publisher
	Metrics *Metrics
	Log     *zap.Logger
	// How long a node may take to become ready once issued.
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	// Max concurrent driver calls within one batch.
	MaxConcurrency int
}

// Controller runs the network lifecycle. It is the only component that
// calls the driver and the only one that changes node statuses.
type Controller struct {
	cfg      ControllerConfig
	log      *zap.Logger
	registry *Registry
	driver   driver.Driver
	ops      *opLocks
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("no registry given")
	case cfg.Driver == nil:
		return nil, errors.New("no driver given")
	}
	if cfg.Log == nil {
		cfg.Log = zap.L()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = DefaultReadyPollInterval
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	c := &Controller{
		cfg:      cfg,
		log:      cfg.Log,
		registry: cfg.Registry,
		driver:   cfg.Driver,
		ops:      newOpLocks(),
	}
	c.cfg.Metrics.setNetworks(c.registry.Len())
	return c, nil
}

func (c *Controller) Registry() *Registry { return c.registry }

// Create registers a new stopped network.
func (c *Controller) Create(ctx context.Context, name string, topology Topology) (n *Network, err error) {
	defer func(start time.Time) { c.cfg.Metrics.observeOp(opCreate, start, err) }(time.Now())
	_, span := tracer.Start(ctx, "network.Create")
	defer func() { endSpan(span, err) }()

	n, err = c.registry.Create(name, topology)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("network.id", int64(n.ID())))
	c.cfg.Metrics.setNetworks(c.registry.Len())
	c.publish(events.Created, n)
	return n, nil
}

func (c *Controller) Find(id uint64) (*Network, bool) { return c.registry.Find(id) }

func (c *Controller) List() []*Network { return c.registry.List() }

// InFlight returns the lifecycle operation running on network [id], if any.
func (c *Controller) InFlight(id uint64) (string, bool) { return c.ops.holder(id) }

// acquire looks up [id] and takes its operation lock.
func (c *Controller) acquire(id uint64, op string) (*Network, func(), error) {
	if _, err := c.registry.Get(id); err != nil {
		return nil, nil, err
	}
	release, err := c.ops.tryAcquire(id, op)
	if err != nil {
		return nil, nil, err
	}
	// a remove may have completed between the lookup and the lock
	n, err := c.registry.Get(id)
	if err != nil {
		release()
		return nil, nil, err
	}
	return n, release, nil
}

// Start issues every node to the driver, bitcoin nodes first. Node failures
// don't roll back nodes that did start; they are returned as *DriverError
// and leave the failed node in Error. Start runs to completion even if
// [ctx] is cancelled.
func (c *Controller) Start(ctx context.Context, id uint64) (err error) {
	defer func(start time.Time) { c.cfg.Metrics.observeOp(opStart, start, err) }(time.Now())
	ctx, span := tracer.Start(ctx, "network.Start", trace.WithAttributes(attribute.Int64("network.id", int64(id))))
	defer func() { endSpan(span, err) }()

	n, release, err := c.acquire(id, opStart)
	if err != nil {
		return err
	}
	defer release()

	switch st := n.Status(); st {
	case status.Stopped:
	case status.Started, status.Starting:
		return fmt.Errorf("%w: network %d is %s", ErrAlreadyRunning, id, st)
	default:
		return fmt.Errorf("%w: network %d is %s, stop it first", ErrInvalidTransition, id, st)
	}

	if c.cfg.RequireImages {
		missing, err := c.missingImages(ctx, n)
		if err != nil {
			return err
		}
		if missing.Len() > 0 {
			return fmt.Errorf("%w: %s", ErrMissingImages, missing)
		}
	}

	c.log.Info("starting network", zap.Uint64("network-id", id), zap.String("name", n.Name()))
	ctx = context.WithoutCancel(ctx)
	for _, ni := range n.Nodes() {
		c.setStatus(n, ni.ID, status.Starting)
	}
	if err := c.runStart(ctx, n); err != nil {
		c.log.Warn("network started with errors",
			zap.Uint64("network-id", id),
			zap.Stringer("status", n.Status()),
			zap.Error(err),
		)
		return err
	}
	c.log.Info("network started", zap.Uint64("network-id", id))
	return nil
}

// Stop converges every node to Stopped, lightning nodes first. It is allowed
// in any status, which is how a network leaves Error.
func (c *Controller) Stop(ctx context.Context, id uint64) (err error) {
	defer func(start time.Time) { c.cfg.Metrics.observeOp(opStop, start, err) }(time.Now())
	ctx, span := tracer.Start(ctx, "network.Stop", trace.WithAttributes(attribute.Int64("network.id", int64(id))))
	defer func() { endSpan(span, err) }()

	n, release, err := c.acquire(id, opStop)
	if err != nil {
		return err
	}
	defer release()

	c.log.Info("stopping network", zap.Uint64("network-id", id), zap.Stringer("status", n.Status()))
	if err := c.runStop(context.WithoutCancel(ctx), n); err != nil {
		c.log.Warn("network stopped with errors", zap.Uint64("network-id", id), zap.Error(err))
		return err
	}
	c.log.Info("network stopped", zap.Uint64("network-id", id))
	return nil
}

// Rename is allowed in any status.
func (c *Controller) Rename(ctx context.Context, id uint64, newName string) (err error) {
	defer func(start time.Time) { c.cfg.Metrics.observeOp(opRename, start, err) }(time.Now())
	_, span := tracer.Start(ctx, "network.Rename", trace.WithAttributes(attribute.Int64("network.id", int64(id))))
	defer func() { endSpan(span, err) }()

	if _, err := ValidateName(newName); err != nil {
		if _, getErr := c.registry.Get(id); getErr != nil {
			return getErr
		}
		return err
	}
	n, release, err := c.acquire(id, opRename)
	if err != nil {
		return err
	}
	defer release()

	old := n.Name()
	if err := n.Rename(newName); err != nil {
		return err
	}
	c.log.Info("renamed network", zap.Uint64("network-id", id), zap.String("from", old), zap.String("to", n.Name()))
	c.publish(events.Renamed, n)
	return nil
}

// Remove releases every node and drops the network. The network must be
// stopped; Remove never stops it. If a release fails the network stays
// registered so Remove can be retried. Confirmation is the caller's job.
func (c *Controller) Remove(ctx context.Context, id uint64) (err error) {
	defer func(start time.Time) { c.cfg.Metrics.observeOp(opRemove, start, err) }(time.Now())
	ctx, span := tracer.Start(ctx, "network.Remove", trace.WithAttributes(attribute.Int64("network.id", int64(id))))
	defer func() { endSpan(span, err) }()

	n, release, err := c.acquire(id, opRemove)
	if err != nil {
		return err
	}
	defer release()

	if st := n.Status(); st != status.Stopped {
		return fmt.Errorf("%w: network %d is %s", ErrNetworkRunning, id, st)
	}

	ctx = context.WithoutCancel(ctx)
	var errs error
	for _, ni := range n.Nodes() {
		target := driver.Node{NetworkID: id, Config: ni.Config}
		if err := c.driver.ReleaseNode(ctx, target); err != nil {
			errs = multierr.Append(errs, &DriverError{NodeID: ni.ID, Op: opRelease, Err: err})
		}
	}
	if errs != nil {
		return errs
	}
	if err := c.registry.Remove(id); err != nil {
		return err
	}
	c.cfg.Metrics.setNetworks(c.registry.Len())
	c.publish(events.Removed, n)
	return nil
}

// MissingImages returns the images network [id] needs that the image
// provider doesn't have. Advisory: it never blocks anything by itself.
func (c *Controller) MissingImages(ctx context.Context, id uint64) (images.Set, error) {
	n, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return c.missingImages(ctx, n)
}

func (c *Controller) missingImages(ctx context.Context, n *Network) (images.Set, error) {
	if c.cfg.Images == nil {
		return nil, ErrNoImageProvider
	}
	available, err := c.cfg.Images.AvailableImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't list available images: %w", err)
	}
	return MissingImages(n, available), nil
}

// StopAll stops every network that isn't stopped. Used on shutdown.
func (c *Controller) StopAll(ctx context.Context) error {
	var errs error
	for _, n := range c.registry.List() {
		if n.Status() == status.Stopped {
			continue
		}
		errs = multierr.Append(errs, c.Stop(ctx, n.ID()))
	}
	return errs
}

// MissingImages returns the distinct images of [n] absent from [available].
func MissingImages(n *Network, available images.Set) images.Set {
	return images.Missing(n.Images(), available)
}

// setStatus is the only path that changes a node status.
func (c *Controller) setStatus(n *Network, nodeID string, to status.Status) {
	before, after, err := n.setNodeStatus(nodeID, to)
	if err != nil {
		// the scheduler only asks for legal transitions
		c.log.Error("unexpected node status change",
			zap.Uint64("network-id", n.ID()),
			zap.String("node", nodeID),
			zap.Error(err),
		)
		return
	}
	c.cfg.Metrics.observeTransition(to)
	c.log.Debug("node status changed",
		zap.Uint64("network-id", n.ID()),
		zap.String("node", nodeID),
		zap.Stringer("status", to),
	)
	if before != after {
		c.log.Info("network status changed",
			zap.Uint64("network-id", n.ID()),
			zap.Stringer("from", before),
			zap.Stringer("to", after),
		)
	}
	c.publish(events.Changed, n)
}

func (c *Controller) publish(kind events.Kind, n *Network) {
	if c.cfg.Events == nil {
		return
	}
	info := n.Info()
	c.cfg.Events.Publish(events.New(kind, info.ID, info.Name, info.Status, info.Nodes))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
