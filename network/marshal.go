// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/json"
	"fmt"

	"github.com/lnsim/ln-network-runner/network/node"
)

// definition is the persisted shape of a network. Statuses are not kept:
// a loaded network is always stopped.
type definition struct {
	ID    uint64        `json:"id"`
	Name  string        `json:"name"`
	Nodes []node.Config `json:"nodes"`
}

// Serialize encodes the id, name and nodes of [n].
func Serialize(n *Network) ([]byte, error) {
	def := definition{
		ID:    n.ID(),
		Name:  n.Name(),
		Nodes: n.configs(),
	}
	return json.Marshal(def)
}

// Deserialize decodes a network written by Serialize. Every node is Stopped.
func Deserialize(b []byte) (*Network, error) {
	var def definition
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal network: %w", err)
	}
	if def.ID == 0 {
		return nil, fmt.Errorf("couldn't load network %q: missing id", def.Name)
	}
	n, err := newNetwork(def.ID, def.Name, Topology{Nodes: def.Nodes})
	if err != nil {
		return nil, fmt.Errorf("couldn't load network %d: %w", def.ID, err)
	}
	return n, nil
}
