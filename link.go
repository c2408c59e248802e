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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-rfspy/internal/frame"
	"github.com/ZaparooProject/go-rfspy/pkg/crc8"
	"github.com/ZaparooProject/go-rfspy/pkg/fourbysix"
)

const (
	// DefaultTimeout is the receive window and command timeout used when a
	// call does not name one.
	DefaultTimeout = 1 * time.Second
	// DefaultRepetitionDelay is the gap byte sent between repeated transmissions.
	DefaultRepetitionDelay byte = 0
	// MaxRepetitionBatchSize is the most transmissions a single SendPacket carries.
	MaxRepetitionBatchSize = frame.MaxRepetitionBatchSize
	// MaxReadTimeout is the longest receive window GetPacket can encode.
	MaxReadTimeout = frame.MaxTimeoutMillis * time.Millisecond
	// MinReadTimeout is the shortest receive window; GetPacket reads 0ms as
	// "wait forever".
	MinReadTimeout = time.Millisecond

	versionTimeout = 1 * time.Second
	// readTimeoutMargin keeps the host waiting past the accessory's own
	// receive window so its timeout status can still arrive.
	readTimeoutMargin = 1 * time.Second
)

// ChecksumFunc computes the 8-bit integrity code of a payload
type ChecksumFunc func(data []byte) byte

// Codec is the forward error correction applied to payloads on the air
type Codec interface {
	Encode(data []byte) []byte
	Decode(data []byte) ([]byte, error)
}

// LinkConfig contains configuration options for a Link
type LinkConfig struct {
	// Checksum computes the CRC logged for outbound payloads
	Checksum ChecksumFunc
	// Codec encodes outbound and decodes inbound payloads
	Codec Codec
	// Timeout is the default timeout for Write and Read
	Timeout time.Duration
	// Channel is the initial radio channel
	Channel byte
	// SkipSetupCheck allows Write and Read before CheckSetup succeeded
	SkipSetupCheck bool
}

// DefaultLinkConfig returns the default link configuration
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		Checksum: crc8.Checksum,
		Codec:    fourbysix.Codec{},
		Timeout:  DefaultTimeout,
	}
}

// Link exchanges radio packets with a remote device through a subg_rfspy
// accessory.
//
// Thread Safety: Link is NOT thread-safe. The accessory answers one command
// at a time, so callers sharing a Link must serialize every call, for example
// through listen.Session.Do.
type Link struct {
	transport Transport
	config    *LinkConfig
	firmware  *FirmwareVersion
	timeout   time.Duration
	channel   byte
}

// New creates a link over an already open transport
func New(transport Transport, opts ...Option) (*Link, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	link := &Link{
		transport: transport,
		config:    DefaultLinkConfig(),
	}

	for _, opt := range opts {
		if err := opt(link); err != nil {
			return nil, err
		}
	}

	link.timeout = link.config.Timeout
	link.channel = link.config.Channel
	return link, nil
}

// Transport returns the underlying transport
func (l *Link) Transport() Transport {
	return l.transport
}

// Channel returns the radio channel used by Write and Read
func (l *Link) Channel() byte {
	return l.channel
}

// SetChannel selects the radio channel used by following calls
func (l *Link) SetChannel(channel byte) {
	l.channel = channel
}

// Timeout returns the default timeout
func (l *Link) Timeout() time.Duration {
	return l.timeout
}

// SetTimeout sets the default timeout for Write and Read
func (l *Link) SetTimeout(timeout time.Duration) error {
	if timeout < MinReadTimeout || timeout > MaxReadTimeout {
		return fmt.Errorf("%w: timeout %v must be within [%v, %v]",
			ErrInvalidParameter, timeout, MinReadTimeout, MaxReadTimeout)
	}
	l.timeout = timeout
	return nil
}

// FirmwareVersion returns the version recorded by CheckSetup, or nil
func (l *Link) FirmwareVersion() *FirmwareVersion {
	return l.firmware
}

// Close closes the link and its transport
func (l *Link) Close() error {
	if l.transport == nil {
		return nil
	}
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// CheckSetup synchronizes with the accessory and verifies its firmware is a
// supported version. It must succeed before Write or Read; repeating it is harmless.
func (l *Link) CheckSetup(ctx context.Context) error {
	// A failed re-check must block Write and Read like a first failure.
	l.firmware = nil

	if err := l.transport.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync with accessory: %w", err)
	}

	fw, err := l.Version(ctx)
	if err != nil {
		return err
	}
	Debugf("subg_rfspy firmware version: %s", fw.Version)

	if !fw.IsSupported() {
		return &UnsupportedVersionError{
			Reported:  fw.Version,
			Supported: append([]string(nil), SupportedVersions...),
		}
	}

	l.firmware = fw
	return nil
}

// Version queries the accessory firmware version without checking it
func (l *Link) Version(ctx context.Context) (*FirmwareVersion, error) {
	resp, err := l.transport.SendCommand(ctx, CmdGetVersion, nil, versionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to send GetVersion command: %w", err)
	}
	fw, err := ParseFirmwareVersion(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GetVersion response: %w", err)
	}
	return fw, nil
}

// GetState asks the accessory whether it is ready; a healthy one answers "OK".
func (l *Link) GetState(ctx context.Context) error {
	resp, err := l.transport.SendCommand(ctx, CmdGetState, nil, l.timeout)
	if err != nil {
		return fmt.Errorf("failed to send GetState command: %w", err)
	}
	if string(resp) != "OK" {
		return fmt.Errorf("%w: GetState returned %q", ErrInvalidResponse, resp)
	}
	return nil
}

// WriteParams controls one Write call. The zero value sends a single
// transmission with no delay and the link's default timeout.
type WriteParams struct {
	// Repetitions is the total number of transmissions; 0 means 1
	Repetitions int
	// Timeout overrides the link timeout for each SendPacket exchange
	Timeout time.Duration
	// RepetitionDelay is passed to the accessory unchanged
	RepetitionDelay byte
}

// Send transmits payload once
func (l *Link) Send(ctx context.Context, payload []byte) error {
	return l.Write(ctx, payload, WriteParams{})
}

// Write encodes payload and transmits it Repetitions times. Counts above
// MaxRepetitionBatchSize are split across consecutive SendPacket commands.
// Errors are returned as-is; Write never retries.
func (l *Link) Write(ctx context.Context, payload []byte, params WriteParams) error {
	if err := l.ready("Write"); err != nil {
		return err
	}

	repetitions := params.Repetitions
	if repetitions == 0 {
		repetitions = 1
	}
	batches, err := frame.SplitRepetitions(repetitions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	timeout := params.Timeout
	if timeout == 0 {
		timeout = l.timeout
	}
	if timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidParameter, timeout)
	}

	crc := l.config.Checksum(payload)
	encoded := l.config.Codec.Encode(payload)
	for i, batch := range batches {
		Debugf("SendPacket %d/%d: channel=%d transmissions=%d delay=%d crc=0x%02X payload=%s",
			i+1, len(batches), l.channel, batch, params.RepetitionDelay, crc, FormatHex(payload))

		args := frame.SendPacketArgs(l.channel, batch, params.RepetitionDelay, encoded)
		if _, err := l.transport.SendCommand(ctx, CmdSendPacket, args, timeout); err != nil {
			return fmt.Errorf("SendPacket batch %d of %d failed: %w", i+1, len(batches), err)
		}
	}
	return nil
}

// Packet is a decoded packet received from the remote device
type Packet struct {
	// Data is the decoded payload
	Data []byte
	// Raw is the still-encoded payload as received
	Raw []byte
	// RSSI is the received signal strength in dBm
	RSSI int
	// RawRSSI is the RSSI register value reported by the accessory
	RawRSSI byte
	// Sequence is the accessory's packet counter
	Sequence byte
}

// Read waits up to timeout for a packet and returns its decoded payload. A
// zero timeout selects the link default.
func (l *Link) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	pkt, err := l.ReadPacket(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return pkt.Data, nil
}

// ReadPacket is Read returning the packet metadata alongside the payload.
//
// A one-byte reply is an accessory status and is returned as *DeviceError;
// IsDeviceTimeout tells an empty receive window apart from real failures.
func (l *Link) ReadPacket(ctx context.Context, timeout time.Duration) (*Packet, error) {
	if err := l.ready("Read"); err != nil {
		return nil, err
	}

	if timeout == 0 {
		timeout = l.timeout
	}
	args, err := frame.GetPacketArgs(l.channel, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	resp, err := l.transport.SendCommand(ctx, CmdGetPacket, args, timeout+readTimeoutMargin)
	if err != nil {
		return nil, fmt.Errorf("GetPacket failed: %w", err)
	}

	switch len(resp) {
	case 0:
		return nil, NewNoResponseError("GetPacket", l.transport.PortName(), len(resp))
	case 1:
		return nil, &DeviceError{Command: CmdGetPacket, Channel: l.channel, Code: ErrorCode(resp[0])}
	}

	// Two or more bytes: RSSI, sequence, then the encoded payload.
	rawRSSI, seq, encoded := resp[0], resp[1], resp[frame.PacketHeaderLen:]
	data, err := l.config.Codec.Decode(encoded)
	if err != nil {
		Debugf("GetPacket decode failed for %s: %v", FormatHex(encoded), err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidPacket, err)
	}
	rssi := frame.RSSIToDBm(rawRSSI)
	Debugf("GetPacket: channel=%d rssi=%d seq=%d payload=%s", l.channel, rssi, seq, FormatHex(data))

	return &Packet{
		Data:     data,
		Raw:      encoded,
		RSSI:     rssi,
		RawRSSI:  rawRSSI,
		Sequence: seq,
	}, nil
}

// ready fails fast when the transport is gone or setup was never checked
func (l *Link) ready(op string) error {
	if !l.transport.IsConnected() {
		return NewTransportClosedError(op, l.transport.PortName())
	}
	if l.firmware == nil && !l.config.SkipSetupCheck {
		return fmt.Errorf("%s: %w", op, ErrNotSetup)
	}
	return nil
}
