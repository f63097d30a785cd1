// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events carries network change notifications to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"go.uber.org/zap"
)

type Kind string

const (
	Created Kind = "created"
	Changed Kind = "status"
	Renamed Kind = "renamed"
	Removed Kind = "removed"
)

const defaultBufferSize = 64

// Event is a snapshot of a network taken right after it changed.
type Event struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	NetworkID uint64        `json:"networkId"`
	Name      string        `json:"name"`
	Status    status.Status `json:"status"`
	Nodes     []node.Info   `json:"nodes"`
	Time      time.Time     `json:"time"`
}

func New(kind Kind, networkID uint64, name string, st status.Status, nodes []node.Info) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		NetworkID: networkID,
		Name:      name,
		Status:    st,
		Nodes:     nodes,
		Time:      time.Now().UTC(),
	}
}

// Publisher must not block the caller for long: the lifecycle controller
// publishes from inside start/stop batches.
type Publisher interface {
	Publish(Event)
}

type multi []Publisher

func (m multi) Publish(ev Event) {
	for _, p := range m {
		p.Publish(ev)
	}
}

// Multi fans an event out to every non-nil publisher.
func Multi(pubs ...Publisher) Publisher {
	var m multi
	for _, p := range pubs {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

var _ Publisher = (*Hub)(nil)

type subscriber struct {
	ch chan Event
	// 0 subscribes to every network
	networkID uint64
}

// Hub delivers events to in-process subscribers keyed by network id.
type Hub struct {
	log *zap.Logger

	lock sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.L()
	}
	return &Hub{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe returns a channel receiving the events of [networkID], or of
// every network if [networkID] is 0. The returned func unsubscribes and
// closes the channel. A subscriber that falls more than the buffer behind
// misses events; the next event still carries the full network state.
func (h *Hub) Subscribe(networkID uint64) (<-chan Event, func()) {
	sub := &subscriber{
		ch:        make(chan Event, defaultBufferSize),
		networkID: networkID,
	}
	h.lock.Lock()
	h.subs[sub] = struct{}{}
	h.lock.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.lock.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.lock.Unlock()
		})
	}
}

func (h *Hub) Publish(ev Event) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	for sub := range h.subs {
		if sub.networkID != 0 && sub.networkID != ev.NetworkID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.log.Debug("dropping event for slow subscriber",
				zap.Uint64("network-id", ev.NetworkID),
				zap.String("event-id", ev.ID),
			)
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.subs)
}
