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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodedA7 is the 4b6b encoding of the single byte 0xA7.
var encodedA7 = []byte{0xA9, 0x65}

func newSetupLink(t *testing.T, opts ...Option) (*Link, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	link, err := New(mock, opts...)
	require.NoError(t, err)
	require.NoError(t, link.CheckSetup(context.Background()))
	return link, mock
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	link, err := New(NewMockTransport())
	require.NoError(t, err)

	assert.Equal(t, byte(0), link.Channel())
	assert.Equal(t, DefaultTimeout, link.Timeout())
	assert.Nil(t, link.FirmwareVersion())
	assert.Equal(t, TransportMock, link.Transport().Type())
}

func TestNew_Options(t *testing.T) {
	t.Parallel()

	link, err := New(NewMockTransport(), WithChannel(2), WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, byte(2), link.Channel())
	assert.Equal(t, 3*time.Second, link.Timeout())
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "zero timeout", opt: WithTimeout(0)},
		{name: "timeout beyond 16-bit ms", opt: WithTimeout(66 * time.Second)},
		{name: "sub-millisecond timeout", opt: WithTimeout(500 * time.Microsecond)},
		{name: "nil codec", opt: WithCodec(nil)},
		{name: "nil checksum", opt: WithChecksum(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(NewMockTransport(), tt.opt)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestLink_Accessors(t *testing.T) {
	t.Parallel()

	link, _ := newSetupLink(t)

	link.SetChannel(4)
	assert.Equal(t, byte(4), link.Channel())

	require.NoError(t, link.SetTimeout(500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, link.Timeout())
	require.ErrorIs(t, link.SetTimeout(-time.Second), ErrInvalidParameter)
	require.ErrorIs(t, link.SetTimeout(500*time.Microsecond), ErrInvalidParameter)
	assert.Equal(t, 500*time.Millisecond, link.Timeout())
	require.NoError(t, link.SetTimeout(MinReadTimeout))
}

func TestCheckSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr  error
		name     string
		response string
	}{
		{name: "supported", response: "subg_rfspy 0.6"},
		{name: "supported with trailing newline", response: "subg_rfspy 0.6\r\n"},
		{name: "older firmware", response: "subg_rfspy 0.5", wantErr: ErrUnsupportedVersion},
		{name: "no version token", response: "subg_rfspy", wantErr: ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport()
			mock.SetResponse(CmdGetVersion, []byte(tt.response))
			link, err := New(mock)
			require.NoError(t, err)

			err = link.CheckSetup(context.Background())
			assert.Equal(t, 1, mock.SyncCount())
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.NotNil(t, link.FirmwareVersion())
				assert.Equal(t, "0.6", link.FirmwareVersion().Version)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, link.FirmwareVersion())
		})
	}
}

func TestCheckSetup_UnsupportedVersionDetails(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(CmdGetVersion, []byte("subg_rfspy 0.5"))
	link, err := New(mock)
	require.NoError(t, err)

	err = link.CheckSetup(context.Background())
	var versionErr *UnsupportedVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, "0.5", versionErr.Reported)
	assert.Equal(t, []string{"0.6"}, versionErr.Supported)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsFatal(err))
}

func TestCheckSetup_VersionQueryUsesOneSecond(t *testing.T) {
	t.Parallel()

	_, mock := newSetupLink(t)

	calls := mock.CallsFor(CmdGetVersion)
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Args)
	assert.Equal(t, time.Second, calls[0].Timeout)
}

func TestCheckSetup_Idempotent(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	require.NoError(t, link.CheckSetup(context.Background()))
	assert.Equal(t, 2, mock.SyncCount())
	assert.Equal(t, "0.6", link.FirmwareVersion().Version)
}

func TestCheckSetup_FailedRecheckBlocksUse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		breakSetup func(mock *MockTransport)
		wantErr    error
		name       string
	}{
		{
			name:       "firmware downgraded",
			breakSetup: func(mock *MockTransport) { mock.SetResponse(CmdGetVersion, []byte("subg_rfspy 0.5")) },
			wantErr:    ErrUnsupportedVersion,
		},
		{
			name:       "sync fails",
			breakSetup: func(mock *MockTransport) { mock.SetSyncError(NewTimeoutError("Sync", "mock")) },
			wantErr:    ErrTransportTimeout,
		},
		{
			name:       "version query fails",
			breakSetup: func(mock *MockTransport) { mock.SetError(CmdGetVersion, NewTimeoutError("read", "mock")) },
			wantErr:    ErrTransportTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, mock := newSetupLink(t)
			require.NotNil(t, link.FirmwareVersion())

			tt.breakSetup(mock)
			require.ErrorIs(t, link.CheckSetup(context.Background()), tt.wantErr)
			assert.Nil(t, link.FirmwareVersion())

			require.ErrorIs(t, link.Write(context.Background(), []byte{0xA7}, WriteParams{}), ErrNotSetup)
			_, err := link.Read(context.Background(), 0)
			require.ErrorIs(t, err, ErrNotSetup)
			assert.Zero(t, mock.GetCallCount(CmdSendPacket))
			assert.Zero(t, mock.GetCallCount(CmdGetPacket))
		})
	}
}

func TestCheckSetup_SyncFailure(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetSyncError(NewTimeoutError("Sync", "mock"))
	link, err := New(mock)
	require.NoError(t, err)

	err = link.CheckSetup(context.Background())
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Zero(t, mock.GetCallCount(CmdGetVersion))
}

func TestGetState(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	require.NoError(t, link.GetState(context.Background()))

	mock.SetResponse(CmdGetState, []byte("??"))
	require.ErrorIs(t, link.GetState(context.Background()), ErrInvalidResponse)
}

func TestWriteRead_RequireSetup(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	link, err := New(mock)
	require.NoError(t, err)

	err = link.Write(context.Background(), []byte{0xA7}, WriteParams{})
	require.ErrorIs(t, err, ErrNotSetup)
	_, err = link.Read(context.Background(), 0)
	require.ErrorIs(t, err, ErrNotSetup)
	assert.Empty(t, mock.Calls())

	raw, err := New(mock, WithoutSetupCheck())
	require.NoError(t, err)
	require.NoError(t, raw.Send(context.Background(), []byte{0xA7}))
}

func TestWrite_SingleTransmission(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t, WithChannel(1))

	require.NoError(t, link.Send(context.Background(), []byte{0xA7}))

	calls := mock.CallsFor(CmdSendPacket)
	require.Len(t, calls, 1)
	assert.Equal(t, append([]byte{1, 0, DefaultRepetitionDelay}, encodedA7...), calls[0].Args)
	assert.Equal(t, DefaultTimeout, calls[0].Timeout)
}

func TestWrite_Batching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		wantCounts  []byte
		repetitions int
	}{
		{name: "one", repetitions: 1, wantCounts: []byte{0}},
		{name: "exactly one batch", repetitions: 250, wantCounts: []byte{249}},
		{name: "one over", repetitions: 251, wantCounts: []byte{249, 0}},
		{name: "three hundred", repetitions: 300, wantCounts: []byte{249, 49}},
		{name: "three batches", repetitions: 600, wantCounts: []byte{249, 249, 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, mock := newSetupLink(t)
			err := link.Write(context.Background(), []byte{0xA7}, WriteParams{
				Repetitions:     tt.repetitions,
				RepetitionDelay: 10,
				Timeout:         2 * time.Second,
			})
			require.NoError(t, err)

			calls := mock.CallsFor(CmdSendPacket)
			require.Len(t, calls, len(tt.wantCounts))
			total := 0
			for i, call := range calls {
				assert.Equal(t, byte(0), call.Args[0], "channel")
				assert.Equal(t, tt.wantCounts[i], call.Args[1], "count byte of batch %d", i)
				assert.Equal(t, byte(10), call.Args[2], "delay")
				assert.Equal(t, encodedA7, call.Args[3:], "every batch carries the same encoded payload")
				assert.Equal(t, 2*time.Second, call.Timeout)
				total += int(call.Args[1]) + 1
			}
			assert.Equal(t, tt.repetitions, total)
		})
	}
}

func TestWrite_InvalidRepetitions(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	err := link.Write(context.Background(), []byte{0xA7}, WriteParams{Repetitions: -1})
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Zero(t, mock.GetCallCount(CmdSendPacket))
}

func TestWrite_StopsOnFirstFailure(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	mock.SetError(CmdSendPacket, NewTransportWriteError("SendCommand", "mock"))

	err := link.Write(context.Background(), []byte{0xA7}, WriteParams{Repetitions: 600})
	require.ErrorIs(t, err, ErrTransportWrite)
	assert.Equal(t, 1, mock.GetCallCount(CmdSendPacket), "no retries and no further batches")
}

func TestWrite_UsesChecksumAndCodec(t *testing.T) {
	t.Parallel()

	var summed []byte
	link, mock := newSetupLink(t,
		WithCodec(identityCodec{}),
		WithChecksum(func(data []byte) byte {
			summed = append([]byte(nil), data...)
			return 0
		}))

	require.NoError(t, link.Send(context.Background(), []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, summed)
	assert.Equal(t, []byte{0, 0, 0, 1, 2, 3}, mock.CallsFor(CmdSendPacket)[0].Args)
}

func TestRead_TimeoutEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		timeout     time.Duration
		wantArgs    []byte
		wantTimeout time.Duration
	}{
		{name: "default", timeout: 0, wantArgs: []byte{0, 0x03, 0xE8}, wantTimeout: 2 * time.Second},
		{name: "two seconds", timeout: 2 * time.Second, wantArgs: []byte{0, 7, 208}, wantTimeout: 3 * time.Second},
		{name: "sub-millisecond truncated", timeout: 1500 * time.Microsecond, wantArgs: []byte{0, 0, 1},
			wantTimeout: 1500*time.Microsecond + time.Second},
		{name: "largest", timeout: 65535 * time.Millisecond, wantArgs: []byte{0, 0xFF, 0xFF},
			wantTimeout: 65535*time.Millisecond + time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, mock := newSetupLink(t)
			_, _ = link.Read(context.Background(), tt.timeout)

			calls := mock.CallsFor(CmdGetPacket)
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantArgs, calls[0].Args)
			assert.Equal(t, tt.wantTimeout, calls[0].Timeout)
		})
	}
}

func TestRead_TimeoutOutOfRange(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	for _, timeout := range []time.Duration{66 * time.Second, -time.Second, 500 * time.Microsecond} {
		_, err := link.Read(context.Background(), timeout)
		require.ErrorIs(t, err, ErrInvalidParameter, "timeout %v", timeout)
	}
	assert.Zero(t, mock.GetCallCount(CmdGetPacket))
}

func TestReadPacket_Success(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t, WithChannel(3))
	mock.SetResponse(CmdGetPacket, append([]byte{0x40, 0x05}, encodedA7...))

	pkt, err := link.ReadPacket(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA7}, pkt.Data)
	assert.Equal(t, encodedA7, pkt.Raw)
	assert.Equal(t, -41, pkt.RSSI)
	assert.Equal(t, byte(0x40), pkt.RawRSSI)
	assert.Equal(t, byte(5), pkt.Sequence)

	data, err := link.Read(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA7}, data)
}

func TestReadPacket_HeaderOnly(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	mock.SetResponse(CmdGetPacket, []byte{0x40, 0x05})

	pkt, err := link.ReadPacket(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pkt.Data)
	assert.Empty(t, pkt.Raw)
	assert.Equal(t, byte(0x40), pkt.RawRSSI)
	assert.Equal(t, -41, pkt.RSSI)
	assert.Equal(t, byte(0x05), pkt.Sequence)
}

func TestRead_ErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantIs      error
		name        string
		wantMessage string
		response    []byte
		retryable   bool
	}{
		{
			name: "empty", response: []byte{}, wantIs: ErrNoResponse, retryable: true,
		},
		{
			name: "timeout", response: []byte{0xAA}, wantIs: ErrDeviceTimeout,
			wantMessage: "received an error response 0xAA (Timeout)", retryable: true,
		},
		{
			name: "interrupted", response: []byte{0xBB}, wantIs: ErrCommunicationFailed,
			wantMessage: "Command Interrupted", retryable: true,
		},
		{
			name: "zero data", response: []byte{0xCC}, wantIs: ErrCommunicationFailed,
			wantMessage: "Zero Data", retryable: true,
		},
		{
			name: "unknown status", response: []byte{0x42}, wantIs: ErrUnknownDeviceStatus,
			wantMessage: "Unknown Error",
		},
		{
			name: "undecodable payload", response: []byte{0x40, 0x05, 0xFF, 0xFF, 0xFF},
			wantIs: ErrInvalidPacket, retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link, mock := newSetupLink(t)
			mock.SetResponse(CmdGetPacket, tt.response)

			data, err := link.Read(context.Background(), 0)
			assert.Nil(t, data)
			require.ErrorIs(t, err, tt.wantIs)
			require.ErrorIs(t, err, ErrCommunicationFailed)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			if tt.wantMessage != "" {
				assert.Contains(t, err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestRead_DeviceErrorCarriesCode(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t, WithChannel(2))
	mock.SetResponse(CmdGetPacket, []byte{0xBB})

	_, err := link.Read(context.Background(), 0)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ErrorCmdInterrupted, devErr.Code)
	assert.Equal(t, byte(2), devErr.Channel)
	assert.Equal(t, CmdGetPacket, devErr.Command)
	assert.False(t, IsDeviceTimeout(err))
}

func TestRead_TransportErrorPropagates(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	mock.SetError(CmdGetPacket, NewTransportReadError("SendCommand", "mock"))

	_, err := link.Read(context.Background(), 0)
	require.ErrorIs(t, err, ErrTransportRead)
	assert.Equal(t, 1, mock.GetCallCount(CmdGetPacket))
}

func TestLink_ClosedTransport(t *testing.T) {
	t.Parallel()

	link, mock := newSetupLink(t)
	require.NoError(t, link.Close())
	assert.False(t, mock.IsConnected())

	err := link.Send(context.Background(), []byte{0xA7})
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.True(t, IsFatal(err))
}

func TestLink_ContextCancelled(t *testing.T) {
	t.Parallel()

	link, _ := newSetupLink(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := link.Read(ctx, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type identityCodec struct{}

func (identityCodec) Encode(data []byte) []byte          { return append([]byte(nil), data...) }
func (identityCodec) Decode(data []byte) ([]byte, error) { return append([]byte(nil), data...), nil }
