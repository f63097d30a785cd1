// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lnsim/ln-network-runner/network/node/status"
)

var (
	ErrUnknownKind = errors.New("unknown node kind")
	ErrNoID        = errors.New("node id is empty")
	ErrNoImage     = errors.New("node image is empty")
)

// Kind of daemon a node runs.
type Kind string

const (
	Bitcoin   Kind = "bitcoin-daemon"
	Lightning Kind = "lightning-daemon"
)

func (k Kind) Valid() bool {
	return k == Bitcoin || k == Lightning
}

// Label is the short name used in summaries, e.g. "bitcoind".
func (k Kind) Label() string {
	switch k {
	case Bitcoin:
		return "bitcoind"
	case Lightning:
		return "LND"
	}
	return string(k)
}

// Rank orders kinds by dependency: lower ranks start first and stop last.
func (k Kind) Rank() int {
	if k == Bitcoin {
		return 0
	}
	return 1
}

// Config defines a node when its network is created.
type Config struct {
	// Unique within the network.
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Image string `json:"image"`
}

// Trimmed returns [c] without spaces around its id and image.
func (c Config) Trimmed() Config {
	c.ID = strings.TrimSpace(c.ID)
	c.Image = strings.TrimSpace(c.Image)
	return c
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return ErrNoID
	case !c.Kind.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	case strings.TrimSpace(c.Image) == "":
		return ErrNoImage
	}
	return nil
}

// Info is a point-in-time view of a node.
type Info struct {
	Config
	Status status.Status `json:"status"`
}
