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

package testing

import (
	"bytes"
	"encoding/hex"
	"slices"

	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
	"github.com/ZaparooProject/go-rfspy/pkg/crc8"
)

// Medtronic packet framing used by the emulated remote device.
const (
	PacketTypePump byte = 0xA7
	MessageAck     byte = 0x06
)

// TestPumpSerial is the serial number of the default remote device.
var TestPumpSerial = []byte{0x12, 0x34, 0x56}

// Responder builds the reply to a received payload, or nil for none.
type Responder func(payload []byte) []byte

// VirtualRemote is a simulated radio device on the far side of the link.
// It only hears packets on its channel whose CRC-8 trailer is valid.
type VirtualRemote struct {
	respond  Responder
	Serial   []byte
	received [][]byte
	mu       syncutil.Mutex
	Channel  byte
	Present  bool
}

// NewVirtualPump creates a remote that acknowledges every packet addressed
// to its serial number: a7 <serial> 06 00 <crc>.
func NewVirtualPump(serial []byte) *VirtualRemote {
	if serial == nil {
		serial = TestPumpSerial
	}
	r := &VirtualRemote{
		Serial:  slices.Clone(serial),
		Present: true,
	}
	r.respond = r.ack
	return r
}

// SetResponder replaces the reply logic.
func (r *VirtualRemote) SetResponder(fn Responder) {
	r.mu.Lock()
	r.respond = fn
	r.mu.Unlock()
}

// Received returns the valid payloads the remote heard.
func (r *VirtualRemote) Received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.received)
}

// SerialString returns the serial number as hex.
func (r *VirtualRemote) SerialString() string {
	return hex.EncodeToString(r.Serial)
}

// Remove takes the remote out of radio range.
func (r *VirtualRemote) Remove() {
	r.mu.Lock()
	r.Present = false
	r.mu.Unlock()
}

// Insert brings the remote back into range.
func (r *VirtualRemote) Insert() {
	r.mu.Lock()
	r.Present = true
	r.mu.Unlock()
}

func (r *VirtualRemote) receive(payload []byte, channel byte) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Present || channel != r.Channel || !crc8.Valid(payload) {
		return nil
	}
	r.received = append(r.received, slices.Clone(payload))
	if r.respond == nil {
		return nil
	}
	return r.respond(payload)
}

func (r *VirtualRemote) ack(payload []byte) []byte {
	if len(payload) < 4 || payload[0] != PacketTypePump || !bytes.Equal(payload[1:4], r.Serial) {
		return nil
	}
	return BuildPumpMessage(r.Serial, MessageAck, 0x00)
}

// BuildPumpMessage frames a pump message and appends its CRC-8.
func BuildPumpMessage(serial []byte, msgType byte, body ...byte) []byte {
	msg := make([]byte, 0, 5+len(serial)+len(body))
	msg = append(msg, PacketTypePump)
	msg = append(msg, serial...)
	msg = append(msg, msgType)
	msg = append(msg, body...)
	return crc8.Append(msg)
}
