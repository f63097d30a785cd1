package store

import (
	"context"
	"testing"

	"github.com/lnsim/ln-network-runner/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBadgerStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := OpenInMemory(zap.NewNop())
	require.NoError(err)
	defer s.Close()

	// id order, not insertion or lexical order
	require.NoError(s.SaveNetwork(ctx, 10, []byte("ten")))
	require.NoError(s.SaveNetwork(ctx, 2, []byte("two")))
	require.NoError(s.SaveNetwork(ctx, 1, []byte("one")))

	blobs, err := s.ListNetworks(ctx)
	require.NoError(err)
	require.Equal([][]byte{[]byte("one"), []byte("two"), []byte("ten")}, blobs)

	got, err := s.GetNetwork(ctx, 2)
	require.NoError(err)
	require.Equal([]byte("two"), got)

	require.NoError(s.SaveNetwork(ctx, 2, []byte("deux")))
	got, err = s.GetNetwork(ctx, 2)
	require.NoError(err)
	require.Equal([]byte("deux"), got)

	require.NoError(s.DeleteNetwork(ctx, 2))
	require.NoError(s.DeleteNetwork(ctx, 2))
	_, err = s.GetNetwork(ctx, 2)
	require.ErrorIs(err, ErrNotFound)

	blobs, err = s.ListNetworks(ctx)
	require.NoError(err)
	require.Len(blobs, 2)
}

func TestPersistsAcrossOpen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, zap.NewNop())
	require.NoError(err)
	registry := network.NewRegistry(zap.NewNop(), s)
	_, err = registry.Create("alpha", network.DefaultTopology("bitcoind:24", "lnd:0.17", 1, 2))
	require.NoError(err)
	_, err = registry.Create("beta", network.DefaultTopology("bitcoind:24", "lnd:0.17", 1, 1))
	require.NoError(err)
	require.NoError(registry.Save(ctx))
	require.NoError(s.Close())

	s, err = Open(dir, zap.NewNop())
	require.NoError(err)
	defer s.Close()
	restored := network.NewRegistry(zap.NewNop(), s)
	loaded, err := restored.Restore(ctx)
	require.NoError(err)
	require.Equal(2, loaded)

	list := restored.List()
	require.Equal("alpha", list[0].Name())
	require.Equal("1 bitcoind, 1 LND", list[1].Summary())
}
