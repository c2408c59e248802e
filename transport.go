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

package rfspy

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

// Transport is the command channel to a subg_rfspy accessory. It frames a
// command and its argument bytes, waits up to timeout for the accessory's
// reply and returns the reply body. UART and SPI backends implement it.
type Transport interface {
	// Sync brings the accessory's command parser to a known state
	Sync(ctx context.Context) error

	// SendCommand executes one request/response exchange
	SendCommand(ctx context.Context, cmd Command, args []byte, timeout time.Duration) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is open
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType

	// PortName returns the device path the transport was opened on
	PortName() string
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockCall records one SendCommand on a MockTransport
type MockCall struct {
	Args    []byte
	Timeout time.Duration
	Cmd     Command
}

// MockTransport provides a scripted Transport for tests
type MockTransport struct {
	responses map[Command][][]byte
	errorMap  map[Command]error
	syncErr   error
	calls     []MockCall
	delay     time.Duration
	syncCount int
	mu        syncutil.Mutex
	connected bool
}

// NewMockTransport creates a mock that answers like a healthy 0.6 accessory
// with no packet traffic.
func NewMockTransport() *MockTransport {
	m := &MockTransport{
		connected: true,
		responses: make(map[Command][][]byte),
		errorMap:  make(map[Command]error),
	}
	m.responses[CmdGetState] = [][]byte{[]byte("OK")}
	m.responses[CmdGetVersion] = [][]byte{[]byte("subg_rfspy 0.6")}
	m.responses[CmdSendPacket] = [][]byte{{}}
	m.responses[CmdGetPacket] = [][]byte{{byte(ErrorRXTimeout)}}
	return m
}

// Sync implements Transport
func (m *MockTransport) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return NewTransportClosedError("Sync", "mock")
	}
	m.syncCount++
	return m.syncErr
}

// SendCommand implements Transport
func (m *MockTransport) SendCommand(
	ctx context.Context, cmd Command, args []byte, timeout time.Duration,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	connected := m.connected
	delay := m.delay
	m.mu.Unlock()

	if !connected {
		return nil, NewTransportClosedError("SendCommand", "mock")
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Cmd:     cmd,
		Args:    append([]byte(nil), args...),
		Timeout: timeout,
	})

	if err, exists := m.errorMap[cmd]; exists {
		return nil, err
	}

	queue := m.responses[cmd]
	if len(queue) == 0 {
		return []byte{}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		m.responses[cmd] = queue[1:]
	}
	return append([]byte(nil), resp...), nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// PortName implements Transport
func (*MockTransport) PortName() string {
	return "mock"
}

// Test helper methods

// SetResponse makes every following cmd exchange return response
func (m *MockTransport) SetResponse(cmd Command, response []byte) {
	m.mu.Lock()
	m.responses[cmd] = [][]byte{response}
	m.mu.Unlock()
}

// QueueResponses scripts successive replies for cmd. The last reply repeats
// once the queue is drained.
func (m *MockTransport) QueueResponses(cmd Command, responses ...[]byte) {
	m.mu.Lock()
	m.responses[cmd] = append([][]byte(nil), responses...)
	m.mu.Unlock()
}

// SetError configures an error to be returned for a specific command
func (m *MockTransport) SetError(cmd Command, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd Command) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetSyncError makes Sync fail with err
func (m *MockTransport) SetSyncError(err error) {
	m.mu.Lock()
	m.syncErr = err
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Calls returns every recorded exchange in order
func (m *MockTransport) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsFor returns the recorded exchanges of one command
func (m *MockTransport) CallsFor(cmd Command) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.calls {
		if c.Cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}

// GetCallCount returns how many times a command was called
func (m *MockTransport) GetCallCount(cmd Command) int {
	return len(m.CallsFor(cmd))
}

// SyncCount returns how many times Sync was called
func (m *MockTransport) SyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncCount
}

// Reset clears recorded calls and reconnects the mock
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.syncCount = 0
	m.connected = true
	m.mu.Unlock()
}
