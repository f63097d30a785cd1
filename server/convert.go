// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/utils/constants"
)

func toNetworkInfo(info network.Info) *rpcpb.NetworkInfo {
	out := &rpcpb.NetworkInfo{
		Id:      info.ID,
		Name:    info.Name,
		Status:  info.Status.String(),
		Summary: info.Summary,
		Nodes:   make([]*rpcpb.NodeInfo, len(info.Nodes)),
	}
	for i, ni := range info.Nodes {
		out.Nodes[i] = &rpcpb.NodeInfo{
			Id:     ni.ID,
			Kind:   string(ni.Kind),
			Image:  ni.Image,
			Status: ni.Status.String(),
		}
	}
	return out
}

// topologyFromRequest returns the listed nodes, or the default topology
// when none are listed.
func topologyFromRequest(req *rpcpb.CreateRequest) network.Topology {
	if len(req.Nodes) > 0 {
		t := network.Topology{Nodes: make([]node.Config, len(req.Nodes))}
		for i, spec := range req.Nodes {
			t.Nodes[i] = node.Config{
				ID:    spec.Id,
				Kind:  node.Kind(spec.Kind),
				Image: spec.Image,
			}
		}
		return t
	}
	var (
		bitcoinImage   = req.BitcoinImage
		lightningImage = req.LightningImage
		numBitcoin     = int(req.NumBitcoin)
		numLightning   = int(req.NumLightning)
	)
	if bitcoinImage == "" {
		bitcoinImage = constants.DefaultBitcoinImage
	}
	if lightningImage == "" {
		lightningImage = constants.DefaultLightningImage
	}
	if numBitcoin == 0 && numLightning == 0 {
		numBitcoin, numLightning = constants.DefaultNumBitcoin, constants.DefaultNumLightning
	}
	return network.DefaultTopology(bitcoinImage, lightningImage, numBitcoin, numLightning)
}
