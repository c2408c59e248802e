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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
	"github.com/ZaparooProject/go-rfspy/pkg/fourbysix"
)

// ErrPortClosed is returned by Read and Write after Close.
var ErrPortClosed = errors.New("virtual port closed")

// SentPacket records one SendPacket command received by the accessory.
type SentPacket struct {
	Encoded       []byte
	Channel       byte
	Transmissions int
	Delay         byte
}

// VirtualAccessory emulates a subg_rfspy 0.6 accessory at the byte level.
// It satisfies the uart.Port interface: every Write is parsed as one command
// and the terminated reply is queued for Read.
//
// Packets reach the receive queue through InjectPacket, through Loopback
// (every transmitted packet is heard back) or through an attached
// VirtualRemote that answers transmitted packets.
type VirtualAccessory struct {
	remote      *VirtualRemote
	notify      chan struct{}
	version     string
	out         []byte
	rxQueue     [][]byte
	statusQueue []rfspy.ErrorCode
	sent        []SentPacket
	commands    []rfspy.Command
	readTimeout time.Duration
	mu          syncutil.Mutex
	garbage     int
	chunkSize   int
	rssi        byte
	seq         byte
	loopback    bool
	closed      bool
	silent      bool
}

// NewVirtualAccessory returns an accessory reporting "subg_rfspy 0.6".
func NewVirtualAccessory() *VirtualAccessory {
	return &VirtualAccessory{
		version:     "0.6",
		notify:      make(chan struct{}, 1),
		readTimeout: 10 * time.Millisecond,
		rssi:        0x40,
	}
}

// SetVersion changes the firmware version string after "subg_rfspy ".
func (a *VirtualAccessory) SetVersion(version string) {
	a.mu.Lock()
	a.version = version
	a.mu.Unlock()
}

// SetLoopback makes every transmitted packet available to GetPacket.
func (a *VirtualAccessory) SetLoopback(enabled bool) {
	a.mu.Lock()
	a.loopback = enabled
	a.mu.Unlock()
}

// SetRSSI sets the raw RSSI byte reported with received packets.
func (a *VirtualAccessory) SetRSSI(raw byte) {
	a.mu.Lock()
	a.rssi = raw
	a.mu.Unlock()
}

// SetSilent stops the accessory from answering at all.
func (a *VirtualAccessory) SetSilent(silent bool) {
	a.mu.Lock()
	a.silent = silent
	a.mu.Unlock()
}

// SetChunkSize limits how many bytes one Read returns; 0 means no limit.
func (a *VirtualAccessory) SetChunkSize(n int) {
	a.mu.Lock()
	a.chunkSize = n
	a.mu.Unlock()
}

// SetBootGarbage makes the next n GetState probes answer with noise, the
// way an accessory still booting or holding a half-parsed command does.
func (a *VirtualAccessory) SetBootGarbage(n int) {
	a.mu.Lock()
	a.garbage = n
	a.mu.Unlock()
}

// AttachRemote connects a remote device that answers transmitted packets.
func (a *VirtualAccessory) AttachRemote(remote *VirtualRemote) {
	a.mu.Lock()
	a.remote = remote
	a.mu.Unlock()
}

// InjectPacket queues a decoded payload for the next GetPacket.
func (a *VirtualAccessory) InjectPacket(payload []byte) {
	a.mu.Lock()
	a.rxQueue = append(a.rxQueue, fourbysix.Encode(payload))
	a.mu.Unlock()
}

// InjectRaw queues an already encoded (possibly corrupt) payload.
func (a *VirtualAccessory) InjectRaw(encoded []byte) {
	a.mu.Lock()
	a.rxQueue = append(a.rxQueue, slices.Clone(encoded))
	a.mu.Unlock()
}

// InjectStatus makes the next GetPacket answer with a one-byte status.
func (a *VirtualAccessory) InjectStatus(code rfspy.ErrorCode) {
	a.mu.Lock()
	a.statusQueue = append(a.statusQueue, code)
	a.mu.Unlock()
}

// Sent returns every SendPacket the accessory received.
func (a *VirtualAccessory) Sent() []SentPacket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.sent)
}

// Commands returns the command bytes received, in order.
func (a *VirtualAccessory) Commands() []rfspy.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.commands)
}

// Write parses one command. It never fails short of Close.
func (a *VirtualAccessory) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, ErrPortClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	cmd := rfspy.Command(p[0])
	a.commands = append(a.commands, cmd)
	if a.silent {
		return len(p), nil
	}

	if body, ok := a.handle(cmd, p[1:]); ok {
		a.out = append(a.out, body...)
		a.out = append(a.out, 0x00)
		select {
		case a.notify <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// handle returns the reply body for cmd and whether the accessory replies.
func (a *VirtualAccessory) handle(cmd rfspy.Command, args []byte) ([]byte, bool) {
	switch cmd {
	case rfspy.CmdGetState:
		if a.garbage > 0 {
			a.garbage--
			return []byte{0x55, 0x13}, true
		}
		return []byte("OK"), true

	case rfspy.CmdGetVersion:
		return []byte("subg_rfspy " + a.version), true

	case rfspy.CmdSendPacket:
		if len(args) < 3 {
			return nil, false
		}
		pkt := SentPacket{
			Channel:       args[0],
			Transmissions: int(args[1]) + 1,
			Delay:         args[2],
			Encoded:       slices.Clone(args[3:]),
		}
		a.sent = append(a.sent, pkt)
		a.deliver(pkt)
		return []byte{}, true

	case rfspy.CmdGetPacket:
		if len(args) != 3 {
			return []byte{byte(rfspy.ErrorZeroData)}, true
		}
		if len(a.statusQueue) > 0 {
			code := a.statusQueue[0]
			a.statusQueue = a.statusQueue[1:]
			return []byte{byte(code)}, true
		}
		if len(a.rxQueue) == 0 {
			return []byte{byte(rfspy.ErrorRXTimeout)}, true
		}
		encoded := a.rxQueue[0]
		a.rxQueue = a.rxQueue[1:]
		a.seq++
		return append([]byte{a.rssi, a.seq}, encoded...), true

	case rfspy.CmdUpdateRegister:
		return []byte{0x01}, true

	default:
		// Reset and unknown commands get no reply.
		return nil, false
	}
}

// deliver routes a transmitted packet to loopback and the remote.
func (a *VirtualAccessory) deliver(pkt SentPacket) {
	if a.loopback {
		a.rxQueue = append(a.rxQueue, slices.Clone(pkt.Encoded))
	}
	if a.remote == nil {
		return
	}
	payload, err := fourbysix.Decode(pkt.Encoded)
	if err != nil {
		return
	}
	if reply := a.remote.receive(payload, pkt.Channel); reply != nil {
		a.rxQueue = append(a.rxQueue, fourbysix.Encode(reply))
	}
}

// Read returns queued reply bytes, or 0 bytes after the read timeout like a
// serial port with VMIN=0.
func (a *VirtualAccessory) Read(p []byte) (int, error) {
	a.mu.Lock()
	deadline := time.Now().Add(a.readTimeout)
	a.mu.Unlock()

	for {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return 0, ErrPortClosed
		}
		if len(a.out) > 0 {
			limit := len(p)
			if a.chunkSize > 0 && a.chunkSize < limit {
				limit = a.chunkSize
			}
			n := copy(p[:limit], a.out)
			a.out = a.out[n:]
			a.mu.Unlock()
			return n, nil
		}
		a.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-a.notify:
			timer.Stop()
		case <-timer.C:
			return 0, nil
		}
	}
}

// SetReadTimeout sets how long Read waits for data.
func (a *VirtualAccessory) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("invalid read timeout %v", timeout)
	}
	a.mu.Lock()
	a.readTimeout = timeout
	a.mu.Unlock()
	return nil
}

// ResetInputBuffer drops reply bytes not yet read.
func (a *VirtualAccessory) ResetInputBuffer() error {
	a.mu.Lock()
	a.out = nil
	a.mu.Unlock()
	return nil
}

// Close closes the port.
func (a *VirtualAccessory) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
