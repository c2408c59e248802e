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
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

// Port is the byte stream SimulatorTransport drives. VirtualAccessory and
// JitteryPort implement it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// CommandLogEntry records a command sent to the transport
type CommandLogEntry struct {
	Timestamp time.Time
	Args      []byte
	Cmd       rfspy.Command
}

// SimulatorTransport implements rfspy.Transport on top of an emulated port.
// It frames requests like the UART transport but ends a reply at the first
// read that leaves a trailing 0x00, which is safe because the emulator
// queues whole replies.
type SimulatorTransport struct {
	port       Port
	commandLog []CommandLogEntry
	mu         syncutil.Mutex
	closed     bool
}

// NewSimulatorTransport creates a transport backed by port
func NewSimulatorTransport(port Port) *SimulatorTransport {
	return &SimulatorTransport{port: port}
}

// Sync implements rfspy.Transport
func (t *SimulatorTransport) Sync(ctx context.Context) error {
	for range rfspy.SyncAttempts {
		resp, err := t.SendCommand(ctx, rfspy.CmdGetState, nil, rfspy.SyncProbeTimeout)
		if err == nil && string(resp) == "OK" {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rfspy.IsFatal(err) {
			return err
		}
	}
	return rfspy.NewTimeoutError("Sync", t.PortName())
}

// SendCommand implements rfspy.Transport
func (t *SimulatorTransport) SendCommand(
	ctx context.Context, cmd rfspy.Command, args []byte, timeout time.Duration,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, rfspy.NewTransportClosedError("SendCommand", t.PortName())
	}
	t.commandLog = append(t.commandLog, CommandLogEntry{
		Cmd:       cmd,
		Args:      slices.Clone(args),
		Timestamp: time.Now(),
	})

	_ = t.port.ResetInputBuffer()
	req := append([]byte{byte(cmd)}, args...)
	if _, err := t.port.Write(req); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)
	var resp []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := t.port.Read(buf)
		if err != nil {
			return nil, rfspy.NewTransportError("read", t.PortName(),
				fmt.Errorf("%w: %w", rfspy.ErrTransportRead, err), rfspy.ErrorTypePermanent)
		}
		if n > 0 {
			resp = append(resp, buf[:n]...)
			continue
		}
		if len(resp) > 0 && resp[len(resp)-1] == 0x00 {
			return resp[:len(resp)-1], nil
		}
		if time.Now().After(deadline) {
			return nil, rfspy.NewTimeoutError("read", t.PortName())
		}
	}
}

// Close implements rfspy.Transport
func (t *SimulatorTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}

// IsConnected implements rfspy.Transport
func (t *SimulatorTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type implements rfspy.Transport
func (*SimulatorTransport) Type() rfspy.TransportType {
	return rfspy.TransportMock
}

// PortName implements rfspy.Transport
func (*SimulatorTransport) PortName() string {
	return "simulator"
}

// CommandLog returns the commands sent so far
func (t *SimulatorTransport) CommandLog() []CommandLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.commandLog)
}

// CommandCount returns how many times cmd was sent
func (t *SimulatorTransport) CommandCount(cmd rfspy.Command) int {
	count := 0
	for _, entry := range t.CommandLog() {
		if entry.Cmd == cmd {
			count++
		}
	}
	return count
}

var _ rfspy.Transport = (*SimulatorTransport)(nil)
