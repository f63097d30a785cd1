// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown status")

// The status of a node, and the aggregate status of a network.
type Status byte

const (
	// process is verified to be stopped, or was never started
	Stopped Status = iota
	// process has been asked to start and is not yet ready
	Starting
	// process reported ready
	Started
	// process has been asked to stop
	Stopping
	// the driver failed for this node
	Error
)

var names = map[Status]string{
	Stopped:  "Stopped",
	Starting: "Starting",
	Started:  "Started",
	Stopping: "Stopping",
	Error:    "Error",
}

// All lists every status, in declaration order.
var All = []Status{Stopped, Starting, Started, Stopping, Error}

func (s Status) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", byte(s))
}

func (s Status) Valid() bool {
	_, ok := names[s]
	return ok
}

// Parse is case insensitive.
func Parse(s string) (Status, error) {
	for st, name := range names {
		if strings.EqualFold(name, s) {
			return st, nil
		}
	}
	return Stopped, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// CanTransition reports whether a node may move from [from] to [to].
//
//	Stopped -> Starting -> Started -> Stopping -> Stopped
//
// Any status may move to Error; Error may only move to Stopping.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if to == Error {
		return true
	}
	switch from {
	case Stopped:
		return to == Starting
	case Starting:
		return to == Started
	case Started:
		return to == Stopping
	case Stopping:
		return to == Stopped
	case Error:
		return to == Stopping
	}
	return false
}

// Transitional reports whether the status is one a node passes through
// while the driver is working on it.
func (s Status) Transitional() bool {
	return s == Starting || s == Stopping
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, byte(s))
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
