// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lnsim/ln-network-runner/network/node"
)

// Lightning node ids handed out by DefaultTopology, in order.
var lightningNames = []string{
	"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi",
	"ivan", "judy", "mallory", "niaj", "oscar", "peggy", "rupert", "sybil",
	"trent", "victor", "walter",
}

// Topology defines the nodes of a network when it is created.
// Order is kept: it is the order nodes are listed and persisted in.
type Topology struct {
	Nodes []node.Config `json:"nodes"`
}

func (t Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes given", ErrInvalidTopology)
	}
	var someNodeIsBitcoin bool
	ids := make(map[string]struct{}, len(t.Nodes))
	for i, nodeConfig := range t.Nodes {
		if err := nodeConfig.Validate(); err != nil {
			nodeName := nodeConfig.ID
			if nodeName == "" {
				nodeName = strconv.Itoa(i)
			}
			return fmt.Errorf("%w: node %q: %v", ErrInvalidTopology, nodeName, err)
		}
		if _, ok := ids[nodeConfig.ID]; ok {
			return fmt.Errorf("%w: repeated node id %q", ErrInvalidTopology, nodeConfig.ID)
		}
		ids[nodeConfig.ID] = struct{}{}
		if nodeConfig.Kind == node.Bitcoin {
			someNodeIsBitcoin = true
		}
	}
	if !someNodeIsBitcoin {
		return fmt.Errorf("%w: at least one bitcoin node is required", ErrInvalidTopology)
	}
	return nil
}

// Summary describes the topology the way the network view subtitles it,
// e.g. "1 bitcoind, 2 LND".
func (t Topology) Summary() string {
	return summarize(t.Nodes)
}

func summarize(nodes []node.Config) string {
	counts := map[node.Kind]int{}
	for _, n := range nodes {
		counts[n.Kind]++
	}
	var parts []string
	for _, kind := range []node.Kind{node.Bitcoin, node.Lightning} {
		if counts[kind] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[kind], kind.Label()))
		}
	}
	return strings.Join(parts, ", ")
}

// DefaultTopology returns [numBitcoin] bitcoin nodes named backend-1..N
// followed by [numLightning] lightning nodes named alice, bob, carol...
func DefaultTopology(bitcoinImage, lightningImage string, numBitcoin, numLightning int) Topology {
	var t Topology
	for i := 1; i <= numBitcoin; i++ {
		t.Nodes = append(t.Nodes, node.Config{
			ID:    fmt.Sprintf("backend-%d", i),
			Kind:  node.Bitcoin,
			Image: bitcoinImage,
		})
	}
	for i := 0; i < numLightning; i++ {
		t.Nodes = append(t.Nodes, node.Config{
			ID:    lightningName(i),
			Kind:  node.Lightning,
			Image: lightningImage,
		})
	}
	return t
}

func lightningName(i int) string {
	if i < len(lightningNames) {
		return lightningNames[i]
	}
	return fmt.Sprintf("lnd-%d", i+1)
}
