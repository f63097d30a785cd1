// Copyright (C) 2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"context"
	"time"

	"github.com/lnsim/ln-network-runner/client"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// T is satisfied by *testing.T and ginkgo.GinkgoT().
type T interface {
	assert.TestingT
	Fatal(args ...interface{})
}

// RunLifecycle creates the default network through [cli], starts it, waits
// for it, then stops and removes it.
func RunLifecycle(ctx context.Context, t T, cli client.Client) {
	assert := assert.New(t)

	zap.L().Info("creating default network")
	info, err := cli.Create(ctx, "e2e-lifecycle")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		assert.NoError(cli.Remove(ctx, info.Id), "failed to remove network")
	}()
	assert.Len(info.Nodes, 3, "unexpected number of nodes in the network")

	if _, err := cli.Start(ctx, info.Id); err != nil {
		t.Fatal(err)
	}
	if err := AwaitStatus(ctx, cli, info.Id, status.Started, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	found, err := cli.Find(ctx, info.Id)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range found.Nodes {
		assert.Equal(status.Started.String(), n.Status, "node %s", n.Id)
	}

	if _, err := cli.Stop(ctx, info.Id); err != nil {
		t.Fatal(err)
	}
	if err := AwaitStatus(ctx, cli, info.Id, status.Stopped, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
}
