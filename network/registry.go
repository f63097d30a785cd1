// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store persists serialized networks. The registry only defines the shape of
// what is stored; see Serialize.
type Store interface {
	SaveNetwork(ctx context.Context, id uint64, data []byte) error
	DeleteNetwork(ctx context.Context, id uint64) error
	// Returns every stored network, ordered by id.
	ListNetworks(ctx context.Context) ([][]byte, error)
}

// Registry owns every network. Its lock only guards the collection, never a
// driver call, so List and Find don't wait on lifecycle operations.
type Registry struct {
	log   *zap.Logger
	store Store

	lock sync.RWMutex
	// ids are never reused, even after removal
	nextID uint64
	// network ID --> network
	networks map[uint64]*Network
	// creation order
	order []uint64
	// removed since the last Save
	removed []uint64
}

// NewRegistry returns an empty registry. [store] may be nil, in which case
// Save and Restore are no-ops.
func NewRegistry(log *zap.Logger, store Store) *Registry {
	if log == nil {
		log = zap.L()
	}
	return &Registry{
		log:      log,
		store:    store,
		nextID:   1,
		networks: make(map[uint64]*Network),
	}
}

// Create adds a new stopped network built from [topology].
func (r *Registry) Create(name string, topology Topology) (*Network, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n, err := newNetwork(r.nextID, name, topology)
	if err != nil {
		return nil, err
	}
	r.nextID++
	r.add(n)
	r.log.Info("created network",
		zap.Uint64("network-id", n.ID()),
		zap.String("name", n.Name()),
		zap.String("topology", topology.Summary()),
	)
	return n, nil
}

// Assumes [r.lock] is held.
func (r *Registry) add(n *Network) {
	r.networks[n.ID()] = n
	r.order = append(r.order, n.ID())
}

func (r *Registry) Find(id uint64) (*Network, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	n, ok := r.networks[id]
	return n, ok
}

// Get is Find returning ErrNotFound.
func (r *Registry) Get(id uint64) (*Network, error) {
	n, ok := r.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return n, nil
}

// List returns the networks in creation order.
func (r *Registry) List() []*Network {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]*Network, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.networks[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.networks)
}

// Remove drops the network from the registry. It does not touch node
// processes; use Controller.Remove for that.
func (r *Registry) Remove(id uint64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.networks[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.networks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.removed = append(r.removed, id)
	r.log.Info("removed network", zap.Uint64("network-id", id))
	return nil
}

// Save writes every network to the store and deletes the ones removed
// since the previous Save.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.lock.Lock()
	removed := r.removed
	r.removed = nil
	r.lock.Unlock()

	var (
		errs   error
		failed []uint64
	)
	for _, id := range removed {
		if err := r.store.DeleteNetwork(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("couldn't delete network %d: %w", id, err))
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		// retried by the next Save
		r.lock.Lock()
		r.removed = append(r.removed, failed...)
		r.lock.Unlock()
	}
	for _, n := range r.List() {
		errs = multierr.Append(errs, r.save(ctx, n))
	}
	return errs
}

// SaveNetwork writes a single network to the store.
func (r *Registry) SaveNetwork(ctx context.Context, id uint64) error {
	if r.store == nil {
		return nil
	}
	n, err := r.Get(id)
	if err != nil {
		return err
	}
	return r.save(ctx, n)
}

func (r *Registry) save(ctx context.Context, n *Network) error {
	data, err := Serialize(n)
	if err != nil {
		return err
	}
	if err := r.store.SaveNetwork(ctx, n.ID(), data); err != nil {
		return fmt.Errorf("couldn't save network %d: %w", n.ID(), err)
	}
	return nil
}

// Restore loads every stored network that isn't already registered.
// Loaded networks are stopped. New ids continue above the highest loaded id.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	blobs, err := r.store.ListNetworks(ctx)
	if err != nil {
		return 0, fmt.Errorf("couldn't list stored networks: %w", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	var (
		loaded int
		errs   error
	)
	for _, blob := range blobs {
		n, err := Deserialize(blob)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, exists := r.networks[n.ID()]; exists {
			r.log.Debug("network already registered, skipping", zap.Uint64("network-id", n.ID()))
			continue
		}
		r.add(n)
		if n.ID() >= r.nextID {
			r.nextID = n.ID() + 1
		}
		loaded++
	}
	r.log.Info("restored networks", zap.Int("count", loaded))
	return loaded, errs
}
