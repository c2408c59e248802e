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

// Package uart talks to a subg_rfspy accessory over a serial port.
//
// Requests are the command byte followed by its arguments. The accessory
// answers with the response body and a 0x00 terminator. Status and RSSI bytes
// can themselves be zero, so a zero only ends the response once the line has
// been quiet for a short gap.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/frame"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

const (
	// BaudRate is the fixed line speed of the subg_rfspy UART build.
	BaudRate = 19200

	// pollInterval is the port read timeout; each Read returns at least this often.
	pollInterval = 10 * time.Millisecond
	// terminatorGap is how long the line must stay quiet after a 0x00
	// before it is taken as the terminator. Two byte times at 19200 baud
	// are about 1ms, so this leaves plenty of margin for USB latency.
	terminatorGap = 20 * time.Millisecond
	// traceEntries bounds the per-exchange wire trace.
	traceEntries = 8
)

// Port is the part of a serial port the transport uses. go.bug.st/serial
// ports satisfy it; tests plug in an emulated accessory.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// Transport implements rfspy.Transport over a serial port.
type Transport struct {
	port     Port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// New opens portName at 19200 8N1.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, rfspy.NewTransportOpenError(portName, err)
	}
	return NewWithPort(port, portName)
}

// NewWithPort wraps an already open port. The port is closed if it cannot
// be configured.
func NewWithPort(port Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		return nil, rfspy.NewTransportOpenError(portName, fmt.Errorf("set read timeout: %w", err))
	}
	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Sync probes the accessory with GetState until it answers "OK". Garbage
// left in the accessory's command parser by an earlier session is flushed
// by the failed probes.
func (t *Transport) Sync(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return rfspy.NewTransportClosedError("Sync", t.portName)
	}

	var lastResp []byte
	for attempt := 1; attempt <= rfspy.SyncAttempts; attempt++ {
		resp, err := t.exchange(ctx, rfspy.CmdGetState, nil, rfspy.SyncProbeTimeout)
		switch {
		case err == nil && string(resp) == "OK":
			rfspy.Debugf("UART %s: synced after %d probe(s)", t.portName, attempt)
			return nil
		case err == nil:
			lastResp = resp
		case ctx.Err() != nil:
			return ctx.Err()
		case rfspy.IsFatal(err):
			return err
		}
		rfspy.Debugf("UART %s: sync probe %d got %q", t.portName, attempt, lastResp)
	}

	return rfspy.NewTimeoutError("Sync", t.portName)
}

// SendCommand writes [cmd]+args and returns the accessory's reply without
// its terminator.
func (t *Transport) SendCommand(
	ctx context.Context, cmd rfspy.Command, args []byte, timeout time.Duration,
) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, rfspy.NewTransportClosedError("SendCommand", t.portName)
	}
	return t.exchange(ctx, cmd, args, timeout)
}

func (t *Transport) exchange(
	ctx context.Context, cmd rfspy.Command, args []byte, timeout time.Duration,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := rfspy.NewTraceBuffer("UART", t.portName, traceEntries)

	// Bytes still in the input buffer belong to an exchange the host gave up on.
	if err := t.port.ResetInputBuffer(); err != nil {
		rfspy.Debugf("UART %s: reset input buffer: %v", t.portName, err)
	}

	req := make([]byte, 0, 1+len(args))
	req = append(req, byte(cmd))
	req = append(req, args...)
	trace.RecordTX(req, cmd.String())

	n, err := t.port.Write(req)
	if err != nil {
		return nil, trace.WrapError(t.portError("write", rfspy.ErrTransportWrite, err))
	}
	if n != len(req) {
		return nil, trace.WrapError(rfspy.NewTransportWriteError("write", t.portName))
	}

	resp, err := t.readResponse(ctx, timeout)
	if err != nil {
		trace.RecordTimeout(cmd.String())
		return nil, trace.WrapError(err)
	}
	trace.RecordRX(resp, cmd.String())
	rfspy.Debugf("UART %s: %s TX %s RX %s", t.portName, cmd, rfspy.FormatHex(req), rfspy.FormatHex(resp))
	return resp, nil
}

// readResponse collects bytes until a 0x00 is followed by terminatorGap of
// silence or the timeout expires.
func (t *Transport) readResponse(ctx context.Context, timeout time.Duration) ([]byte, error) {
	chunk := frame.GetBuffer(frame.SmallBufferSize)
	defer frame.PutBuffer(chunk)

	deadline := time.Now().Add(timeout)
	var resp []byte
	var lastByte time.Time

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return nil, t.portError("read", rfspy.ErrTransportRead, err)
		}

		now := time.Now()
		if n > 0 {
			resp = append(resp, chunk[:n]...)
			lastByte = now
			if len(resp) > frame.ResponseBufferSize {
				return nil, rfspy.NewDataTooLargeError("read", t.portName)
			}
		}

		terminated := len(resp) > 0 && resp[len(resp)-1] == 0x00
		if terminated && now.Sub(lastByte) >= terminatorGap {
			return resp[:len(resp)-1], nil
		}
		if now.After(deadline) {
			if terminated {
				return resp[:len(resp)-1], nil
			}
			if len(resp) > 0 {
				rfspy.Debugf("UART %s: unterminated response %s", t.portName, rfspy.FormatHex(resp))
			}
			return nil, rfspy.NewTimeoutError("read", t.portName)
		}
	}
}

// portError wraps an OS-level port failure. Timeouts surface as zero-length
// reads, so anything the port reports as an error means the device is gone.
func (t *Transport) portError(op string, category, cause error) *rfspy.TransportError {
	return rfspy.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", category, cause), rfspy.ErrorTypePermanent)
}

// Close closes the serial port. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() rfspy.TransportType {
	return rfspy.TransportUART
}

// PortName returns the serial device path
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") || strings.Contains(errStr, "eintr")
}

var _ rfspy.Transport = (*Transport)(nil)
