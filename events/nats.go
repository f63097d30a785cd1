// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const SubjectPrefix = "lnr.networks"

var _ Publisher = (*NatsPublisher)(nil)

// NatsPublisher republishes events on
// "lnr.networks.<network id>.<event kind>".
type NatsPublisher struct {
	log *zap.Logger
	nc  *nats.Conn
}

func NewNatsPublisher(url string, log *zap.Logger) (*NatsPublisher, error) {
	if log == nil {
		log = zap.L()
	}
	opts := []nats.Option{
		nats.Name("ln-network-runner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to nats at %s: %w", url, err)
	}
	return &NatsPublisher{log: log, nc: nc}, nil
}

func Subject(networkID uint64, kind Kind) string {
	return fmt.Sprintf("%s.%d.%s", SubjectPrefix, networkID, kind)
}

func (p *NatsPublisher) Publish(ev Event) {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("couldn't marshal event", zap.String("event-id", ev.ID), zap.Error(err))
		return
	}
	msg := nats.NewMsg(Subject(ev.NetworkID, ev.Kind))
	// lets JetStream consumers deduplicate
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Data = data
	if err := p.nc.PublishMsg(msg); err != nil {
		p.log.Warn("couldn't publish event", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (p *NatsPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Debug("nats drain failed", zap.Error(err))
	}
	p.nc.Close()
}
