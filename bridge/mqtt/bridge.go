// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mqtt bridges a subg_rfspy link to an MQTT broker.
//
// Received packets are published to <prefix>rx, JSON messages on <prefix>tx
// are transmitted, and errors are reported on <prefix>error. Payloads are
// hex encoded.
package mqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/listen"
)

// Topics, relative to the client prefix
const (
	TopicRx    = "rx"
	TopicTx    = "tx"
	TopicError = "error"
)

const txQueueSize = 16

// ErrTxQueueFull is reported when transmit requests arrive faster than the
// link can send them.
var ErrTxQueueFull = errors.New("transmit queue full")

// RxMessage is published for every received packet
type RxMessage struct {
	Data string `json:"data"`
	RSSI int    `json:"rssi"`
	Seq  byte   `json:"seq"`
}

// TxMessage requests a transmission
type TxMessage struct {
	Data        string `json:"data"`
	Repetitions int    `json:"repetitions,omitempty"`
	Delay       byte   `json:"delay,omitempty"`
}

// ErrorMessage reports a failed receive or transmit
type ErrorMessage struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// Bridge moves packets between a listen session and an MQTT broker
type Bridge struct {
	pubsub  PubSub
	session *listen.Session
	txQueue chan TxMessage
}

// New creates a bridge. The session's packet and error callbacks are taken
// over by Run.
func New(pubsub PubSub, session *listen.Session) *Bridge {
	return &Bridge{
		pubsub:  pubsub,
		session: session,
		txQueue: make(chan TxMessage, txQueueSize),
	}
}

// Run listens and serves transmit requests until ctx ends or the session
// fails.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.pubsub.Subscribe(TopicTx, b.handleTx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicTx, err)
	}
	b.session.SetOnPacket(b.publishPacket)
	b.session.SetOnError(func(err error) { b.publishError("rx", err) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.transmitLoop(ctx)
	}()

	err := b.session.Run(ctx)
	cancel()
	wg.Wait()
	return err //nolint:wrapcheck // session errors are already descriptive
}

func (b *Bridge) handleTx(_ string, payload []byte) {
	var msg TxMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.publishError("tx", fmt.Errorf("%w: %w", rfspy.ErrInvalidParameter, err))
		return
	}
	select {
	case b.txQueue <- msg:
	default:
		b.publishError("tx", ErrTxQueueFull)
	}
}

func (b *Bridge) transmitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.txQueue:
			if err := b.transmit(ctx, msg); err != nil && ctx.Err() == nil {
				b.publishError("tx", err)
			}
		}
	}
}

func (b *Bridge) transmit(ctx context.Context, msg TxMessage) error {
	data, err := hex.DecodeString(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: data is not hex: %w", rfspy.ErrInvalidParameter, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", rfspy.ErrInvalidParameter)
	}
	return b.session.Do(ctx, func(ctx context.Context, link *rfspy.Link) error {
		return link.Write(ctx, data, rfspy.WriteParams{
			Repetitions:     msg.Repetitions,
			RepetitionDelay: msg.Delay,
		})
	})
}

func (b *Bridge) publishPacket(pkt *rfspy.Packet) error {
	b.publishJSON(TopicRx, RxMessage{
		Data: hex.EncodeToString(pkt.Data),
		RSSI: pkt.RSSI,
		Seq:  pkt.Sequence,
	})
	return nil
}

func (b *Bridge) publishError(op string, err error) {
	b.publishJSON(TopicError, ErrorMessage{Op: op, Error: err.Error()})
}

// publishJSON logs and drops messages the broker does not take; the client
// reconnects on its own.
func (b *Bridge) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		rfspy.Debugf("mqtt: marshal %s: %v", topic, err)
		return
	}
	if err := b.pubsub.Publish(topic, payload); err != nil {
		rfspy.Debugf("mqtt: publish %s: %v", topic, err)
	}
}
