// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/network/node/status"
)

// Info is a point-in-time view of a network.
type Info struct {
	ID      uint64        `json:"id"`
	Name    string        `json:"name"`
	Status  status.Status `json:"status"`
	Summary string        `json:"summary"`
	Nodes   []node.Info   `json:"nodes"`
}

type localNode struct {
	config node.Config
	status status.Status
}

// Network is a named set of nodes. Its status is derived from the node
// statuses and cannot be set. Node statuses are only changed by the
// Controller. Readers never wait on driver calls.
type Network struct {
	lock sync.RWMutex
	id   uint64
	name string
	// in topology order
	nodes []*localNode
	// node id --> index in [nodes]
	index map[string]int
	// only ever assigned from AggregateStatus in [recompute]
	status status.Status
}

func newNetwork(id uint64, name string, topology Topology) (*Network, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	nodes := make([]node.Config, len(topology.Nodes))
	for i, c := range topology.Nodes {
		nodes[i] = c.Trimmed()
	}
	topology = Topology{Nodes: nodes}
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		id:    id,
		name:  name,
		nodes: make([]*localNode, 0, len(topology.Nodes)),
		index: make(map[string]int, len(topology.Nodes)),
	}
	for i, nodeConfig := range topology.Nodes {
		n.nodes = append(n.nodes, &localNode{config: nodeConfig, status: status.Stopped})
		n.index[nodeConfig.ID] = i
	}
	n.recompute()
	return n, nil
}

// ValidateName returns the trimmed name, or ErrInvalidName if nothing is left.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return trimmed, nil
}

func (n *Network) ID() uint64 { return n.id }

func (n *Network) Name() string {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.name
}

func (n *Network) Status() status.Status {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.status
}

// Rename doesn't require the network to be stopped.
func (n *Network) Rename(newName string) error {
	name, err := ValidateName(newName)
	if err != nil {
		return err
	}
	n.lock.Lock()
	n.name = name
	n.lock.Unlock()
	return nil
}

// Nodes returns every node in topology order.
func (n *Network) Nodes() []node.Info {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.nodesMatching(func(node.Kind) bool { return true })
}

func (n *Network) BitcoinNodes() []node.Info {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.nodesMatching(func(k node.Kind) bool { return k == node.Bitcoin })
}

func (n *Network) LightningNodes() []node.Info {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.nodesMatching(func(k node.Kind) bool { return k == node.Lightning })
}

// Assumes [n.lock] is held.
func (n *Network) nodesMatching(keep func(node.Kind) bool) []node.Info {
	infos := make([]node.Info, 0, len(n.nodes))
	for _, ln := range n.nodes {
		if keep(ln.config.Kind) {
			infos = append(infos, node.Info{Config: ln.config, Status: ln.status})
		}
	}
	return infos
}

func (n *Network) Node(id string) (node.Info, error) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	i, ok := n.index[id]
	if !ok {
		return node.Info{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	ln := n.nodes[i]
	return node.Info{Config: ln.config, Status: ln.status}, nil
}

// Images returns the image of every node, in topology order, with repeats.
func (n *Network) Images() []string {
	n.lock.RLock()
	defer n.lock.RUnlock()
	images := make([]string, len(n.nodes))
	for i, ln := range n.nodes {
		images[i] = ln.config.Image
	}
	return images
}

func (n *Network) Summary() string {
	return summarize(n.configs())
}

func (n *Network) configs() []node.Config {
	n.lock.RLock()
	defer n.lock.RUnlock()
	configs := make([]node.Config, len(n.nodes))
	for i, ln := range n.nodes {
		configs[i] = ln.config
	}
	return configs
}

// Info returns a consistent snapshot: status always matches the nodes.
func (n *Network) Info() Info {
	n.lock.RLock()
	defer n.lock.RUnlock()
	nodes := n.nodesMatching(func(node.Kind) bool { return true })
	configs := make([]node.Config, len(nodes))
	for i, ni := range nodes {
		configs[i] = ni.Config
	}
	return Info{
		ID:      n.id,
		Name:    n.name,
		Status:  n.status,
		Summary: summarize(configs),
		Nodes:   nodes,
	}
}

// setNodeStatus moves node [id] to [to] and recomputes the network status.
// Returns the network status before and after the change.
func (n *Network) setNodeStatus(id string, to status.Status) (before, after status.Status, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	before = n.status
	i, ok := n.index[id]
	if !ok {
		return before, before, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	ln := n.nodes[i]
	if !status.CanTransition(ln.status, to) {
		return before, before, fmt.Errorf("%w: node %q %s -> %s", ErrInvalidTransition, id, ln.status, to)
	}
	ln.status = to
	n.recompute()
	return before, n.status, nil
}

// Assumes [n.lock] is held.
func (n *Network) recompute() {
	statuses := make([]status.Status, len(n.nodes))
	for i, ln := range n.nodes {
		statuses[i] = ln.status
	}
	n.status = AggregateStatus(statuses)
}
