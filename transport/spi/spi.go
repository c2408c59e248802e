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

// Package spi talks to a subg_rfspy accessory wired to an SPI bus, such as
// the Explorer board's CC1110 on /dev/spidev5.1.
//
// Every transfer starts with the 0x99 marker and a length byte. The host
// writes a request as [0x99, len] + request. It then polls with [0x99, 0x00];
// the byte clocked back in the length position is the number of reply bytes
// the accessory has queued, which the host clocks out with zero bytes. Replies
// end with the same 0x00 terminator as on the UART.
package spi

import (
	"context"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/frame"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

const (
	// Marker starts every transfer
	Marker = 0x99

	// DefaultSpeed is the clock the subg_rfspy SPI build is tested at
	DefaultSpeed = 62500 * physic.Hertz

	maxRequestLen = 255
	pollInterval  = 5 * time.Millisecond
	traceEntries  = 16
)

// Conn is the full-duplex part of a periph spi.Conn the transport uses.
type Conn interface {
	Tx(w, r []byte) error
}

// Transport implements rfspy.Transport over SPI
type Transport struct {
	conn     Conn
	closer   io.Closer
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// New opens an SPI port by its periph name or device path.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, rfspy.NewTransportOpenError(portName, fmt.Errorf("failed to initialize periph host: %w", err))
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, rfspy.NewTransportOpenError(portName, err)
	}

	conn, err := port.Connect(DefaultSpeed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, rfspy.NewTransportOpenError(portName, fmt.Errorf("failed to connect SPI: %w", err))
	}

	return NewWithConn(conn, port, portName), nil
}

// NewWithConn wraps an already connected bus. closer may be nil.
func NewWithConn(conn Conn, closer io.Closer, portName string) *Transport {
	return &Transport{
		conn:     conn,
		closer:   closer,
		portName: portName,
	}
}

// Sync polls GetState until the accessory answers "OK"
func (t *Transport) Sync(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return rfspy.NewTransportClosedError("Sync", t.portName)
	}

	for attempt := 1; attempt <= rfspy.SyncAttempts; attempt++ {
		resp, err := t.exchange(ctx, rfspy.CmdGetState, nil, rfspy.SyncProbeTimeout)
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
	return rfspy.NewTimeoutError("Sync", t.portName)
}

// SendCommand writes [cmd]+args and returns the reply without its terminator.
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

//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) exchange(
	ctx context.Context, cmd rfspy.Command, args []byte, timeout time.Duration,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if 1+len(args) > maxRequestLen {
		return nil, rfspy.NewDataTooLargeError("SendCommand", t.portName)
	}

	trace := rfspy.NewTraceBuffer("SPI", t.portName, traceEntries)

	w := make([]byte, 0, 3+len(args))
	w = append(w, Marker, byte(1+len(args)), byte(cmd))
	w = append(w, args...)
	trace.RecordTX(w[2:], cmd.String())

	if err := t.conn.Tx(w, make([]byte, len(w))); err != nil {
		return nil, trace.WrapError(t.busError("write", rfspy.ErrTransportWrite, err))
	}

	resp, err := t.receive(ctx, timeout)
	if err != nil {
		trace.RecordTimeout(cmd.String())
		return nil, trace.WrapError(err)
	}
	trace.RecordRX(resp, cmd.String())
	rfspy.Debugf("SPI %s: %s TX %s RX %s", t.portName, cmd, rfspy.FormatHex(w[2:]), rfspy.FormatHex(resp))
	return resp, nil
}

// receive polls for queued reply bytes until the terminator arrives and the
// accessory reports nothing more, or the timeout expires.
func (t *Transport) receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	poll := []byte{Marker, 0x00}
	status := frame.GetBuffer(len(poll))
	defer frame.PutBuffer(status)

	deadline := time.Now().Add(timeout)
	var resp []byte

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := t.conn.Tx(poll, status); err != nil {
			return nil, t.busError("poll", rfspy.ErrTransportRead, err)
		}

		if pending := int(status[1]); pending > 0 {
			chunk := make([]byte, pending)
			if err := t.conn.Tx(make([]byte, pending), chunk); err != nil {
				return nil, t.busError("read", rfspy.ErrTransportRead, err)
			}
			resp = append(resp, chunk...)
			if len(resp) > frame.ResponseBufferSize {
				return nil, rfspy.NewDataTooLargeError("read", t.portName)
			}
			continue
		}

		if len(resp) > 0 && resp[len(resp)-1] == 0x00 {
			return resp[:len(resp)-1], nil
		}
		if time.Now().After(deadline) {
			return nil, rfspy.NewTimeoutError("read", t.portName)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (t *Transport) busError(op string, category, cause error) *rfspy.TransportError {
	return rfspy.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", category, cause), rfspy.ErrorTypePermanent)
}

// Close releases the SPI port. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
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
	return rfspy.TransportSPI
}

// PortName returns the SPI port name
func (t *Transport) PortName() string {
	return t.portName
}

var _ rfspy.Transport = (*Transport)(nil)
