// Copyright (C) 2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package e2e holds scenarios run against a live network runner server.
package e2e

import (
	"context"
	"fmt"
	"time"

	"github.com/lnsim/ln-network-runner/client"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"golang.org/x/sync/errgroup"
)

// AwaitStatus returns a nil error once network [id] reports [want],
// checking every [freq].
func AwaitStatus(ctx context.Context, cli client.Client, id uint64, want status.Status, freq time.Duration) error {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		info, err := cli.Find(ctx, id)
		if err != nil {
			return err
		}
		if info.Status == want.String() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("network %d is %s, never became %s: %w", id, info.Status, want, ctx.Err())
		case <-ticker.C:
		}
	}
}

// AwaitAll is AwaitStatus for every network in [ids] at once.
func AwaitAll(parentCtx context.Context, cli client.Client, ids []uint64, want status.Status, freq time.Duration) error {
	eg, ctx := errgroup.WithContext(parentCtx)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			return AwaitStatus(ctx, cli, id, want, freq)
		})
	}
	return eg.Wait()
}
