// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// phases groups [nodes] by kind rank, lowest rank first.
// Nodes keep their topology order within a phase.
func phases(nodes []node.Info) [][]node.Info {
	byRank := map[int][]node.Info{}
	for _, ni := range nodes {
		byRank[ni.Kind.Rank()] = append(byRank[ni.Kind.Rank()], ni)
	}
	ranks := make([]int, 0, len(byRank))
	for rank := range byRank {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	out := make([][]node.Info, len(ranks))
	for i, rank := range ranks {
		out[i] = byRank[rank]
	}
	return out
}

// batch calls [f] for every node in [nodes], at most
// [c.cfg.MaxConcurrency] at a time, and waits for all of them.
// Errors from every call are combined.
func (c *Controller) batch(nodes []node.Info, f func(node.Info) error) error {
	var (
		g    errgroup.Group
		errs = make([]error, len(nodes))
	)
	g.SetLimit(c.cfg.MaxConcurrency)
	for i, ni := range nodes {
		i, ni := i, ni
		g.Go(func() error {
			errs[i] = f(ni)
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// runStart starts [n] one phase at a time. A phase isn't issued until every
// node of the previous phase is ready. If a phase fails, the nodes of the
// later phases are never issued and end in Error.
// Every node of [n] is assumed to be Starting.
func (c *Controller) runStart(ctx context.Context, n *Network) error {
	ps := phases(n.Nodes())
	for i, phase := range ps {
		err := c.batch(phase, func(ni node.Info) error {
			return c.startNode(ctx, n, ni)
		})
		if err == nil {
			continue
		}
		for _, later := range ps[i+1:] {
			for _, ni := range later {
				c.setStatus(n, ni.ID, status.Error)
				err = multierr.Append(err, &DriverError{NodeID: ni.ID, Op: opStart, Err: ErrDependencyFailed})
			}
		}
		return err
	}
	return nil
}

func (c *Controller) startNode(ctx context.Context, n *Network, ni node.Info) error {
	target := driver.Node{NetworkID: n.ID(), Config: ni.Config}
	ctx, span := tracer.Start(ctx, "driver.StartNode", nodeAttributes(target))
	err := c.issueStart(ctx, target)
	endSpan(span, err)
	if err != nil {
		c.log.Warn("node failed to start",
			zap.Uint64("network-id", n.ID()),
			zap.String("node", ni.ID),
			zap.Error(err),
		)
		c.setStatus(n, ni.ID, status.Error)
		return &DriverError{NodeID: ni.ID, Op: opStart, Err: err}
	}
	c.setStatus(n, ni.ID, status.Started)
	return nil
}

func (c *Controller) issueStart(ctx context.Context, target driver.Node) error {
	ready, err := c.driver.StartNode(ctx, target)
	switch {
	case err != nil:
		return err
	case ready:
		return nil
	}
	checker, ok := c.driver.(driver.ReadinessChecker)
	if !ok {
		return ErrNotConfirmed
	}
	return c.waitReady(ctx, checker, target)
}

// waitReady polls [checker] until [target] is ready or the ready timeout
// expires. Errors from the checker are retried until then.
func (c *Controller) waitReady(ctx context.Context, checker driver.ReadinessChecker, target driver.Node) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ReadyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		ready, err := checker.NodeReady(ctx, target)
		switch {
		case err != nil:
			lastErr = err
			c.log.Debug("readiness check failed", zap.String("node", target.Key()), zap.Error(err))
		case ready:
			return nil
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %v", ErrNodeNotReady, c.cfg.ReadyTimeout, lastErr)
			}
			return fmt.Errorf("%w after %s", ErrNodeNotReady, c.cfg.ReadyTimeout)
		case <-ticker.C:
		}
	}
}

// runStop stops [n] one phase at a time, highest rank first. Unlike
// runStart, a failed phase doesn't stop the next one from being issued.
func (c *Controller) runStop(ctx context.Context, n *Network) error {
	ps := phases(n.Nodes())
	var errs error
	for i := len(ps) - 1; i >= 0; i-- {
		var toStop []node.Info
		for _, ni := range ps[i] {
			if ni.Status != status.Stopped {
				toStop = append(toStop, ni)
			}
		}
		errs = multierr.Append(errs, c.batch(toStop, func(ni node.Info) error {
			return c.stopNode(ctx, n, ni)
		}))
	}
	return errs
}

func (c *Controller) stopNode(ctx context.Context, n *Network, ni node.Info) error {
	switch ni.Status {
	case status.Starting:
		// left over from an interrupted start; there is no direct edge
		c.setStatus(n, ni.ID, status.Error)
		c.setStatus(n, ni.ID, status.Stopping)
	case status.Started, status.Error:
		c.setStatus(n, ni.ID, status.Stopping)
	}

	target := driver.Node{NetworkID: n.ID(), Config: ni.Config}
	ctx, span := tracer.Start(ctx, "driver.StopNode", nodeAttributes(target))
	stopped, err := c.driver.StopNode(ctx, target)
	if err == nil && !stopped {
		err = ErrNotConfirmed
	}
	endSpan(span, err)
	if err != nil {
		c.log.Warn("node failed to stop",
			zap.Uint64("network-id", n.ID()),
			zap.String("node", ni.ID),
			zap.Error(err),
		)
		c.setStatus(n, ni.ID, status.Error)
		return &DriverError{NodeID: ni.ID, Op: opStop, Err: err}
	}
	c.setStatus(n, ni.ID, status.Stopped)
	return nil
}

func nodeAttributes(n driver.Node) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int64("network.id", int64(n.NetworkID)),
		attribute.String("node.id", n.ID),
		attribute.String("node.kind", string(n.Kind)),
		attribute.String("node.image", n.Image),
	)
}
