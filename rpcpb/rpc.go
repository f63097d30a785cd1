// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcpb defines the messages and the gRPC service of the control
// server. Messages travel as JSON; see Codec.
package rpcpb

import "time"

type PingRequest struct{}

type PingResponse struct {
	Pid      int32  `json:"pid"`
	Platform string `json:"platform"`
}

type NodeSpec struct {
	Id    string `json:"id"`
	Kind  string `json:"kind"`
	Image string `json:"image"`
}

type NodeInfo struct {
	Id     string `json:"id"`
	Kind   string `json:"kind"`
	Image  string `json:"image"`
	Status string `json:"status"`
}

type NetworkInfo struct {
	Id      uint64      `json:"id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Summary string      `json:"summary"`
	Nodes   []*NodeInfo `json:"nodes"`
	// lifecycle operation in flight, if any
	Operation string `json:"operation,omitempty"`
}

// NodeError is a node the driver failed on.
type NodeError struct {
	NodeId  string `json:"nodeId"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

// CreateRequest either lists the nodes, or leaves Nodes empty to get
// NumBitcoin bitcoin nodes and NumLightning lightning nodes.
type CreateRequest struct {
	Name           string      `json:"name"`
	Nodes          []*NodeSpec `json:"nodes,omitempty"`
	NumBitcoin     uint32      `json:"numBitcoin,omitempty"`
	NumLightning   uint32      `json:"numLightning,omitempty"`
	BitcoinImage   string      `json:"bitcoinImage,omitempty"`
	LightningImage string      `json:"lightningImage,omitempty"`
}

type CreateResponse struct {
	Network *NetworkInfo `json:"network"`
}

type ListRequest struct{}

type ListResponse struct {
	Networks []*NetworkInfo `json:"networks"`
}

type FindRequest struct {
	Id uint64 `json:"id"`
}

type FindResponse struct {
	Network *NetworkInfo `json:"network"`
}

type StartRequest struct {
	Id uint64 `json:"id"`
}

// StartResponse carries the network as it is once the start settled.
// NodeErrors lists the nodes left in Error.
type StartResponse struct {
	Network    *NetworkInfo `json:"network"`
	NodeErrors []*NodeError `json:"nodeErrors,omitempty"`
}

type StopRequest struct {
	Id uint64 `json:"id"`
}

type StopResponse struct {
	Network    *NetworkInfo `json:"network"`
	NodeErrors []*NodeError `json:"nodeErrors,omitempty"`
}

type RenameRequest struct {
	Id   uint64 `json:"id"`
	Name string `json:"name"`
}

type RenameResponse struct {
	Network *NetworkInfo `json:"network"`
}

type RemoveRequest struct {
	Id uint64 `json:"id"`
}

type RemoveResponse struct{}

type MissingImagesRequest struct {
	Id uint64 `json:"id"`
}

type MissingImagesResponse struct {
	Images []string `json:"images"`
}

// StreamStatusRequest with Id 0 streams every network.
type StreamStatusRequest struct {
	Id uint64 `json:"id"`
}

type StreamStatusResponse struct {
	EventId string       `json:"eventId"`
	Kind    string       `json:"kind"`
	Network *NetworkInfo `json:"network"`
	Time    time.Time    `json:"time"`
}
