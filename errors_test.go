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
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "transport timeout retryable", err: ErrTransportTimeout, want: true},
		{name: "transport read retryable", err: ErrTransportRead, want: true},
		{name: "transport write retryable", err: ErrTransportWrite, want: true},
		{name: "no response retryable", err: ErrNoResponse, want: true},
		{name: "invalid packet retryable", err: ErrInvalidPacket, want: true},
		{name: "wrapped communication failure", err: fmt.Errorf("read: %w", ErrCommunicationFailed), want: true},
		{name: "transport closed not retryable", err: ErrTransportClosed, want: false},
		{name: "invalid parameter not retryable", err: ErrInvalidParameter, want: false},
		{name: "unsupported version not retryable", err: ErrUnsupportedVersion, want: false},
		{name: "plain error not retryable", err: errors.New("boom"), want: false},
		{name: "timeout transport error", err: NewTimeoutError("read", "/dev/ttyUSB0"), want: true},
		{name: "closed transport error", err: NewTransportClosedError("read", "/dev/ttyUSB0"), want: false},
		{name: "open transport error", err: NewTransportOpenError("/dev/ttyUSB0", errors.New("busy")), want: false},
		{name: "device receive timeout", err: &DeviceError{Code: ErrorRXTimeout}, want: true},
		{name: "device interrupted", err: &DeviceError{Code: ErrorCmdInterrupted}, want: true},
		{name: "device zero data", err: &DeviceError{Code: ErrorZeroData}, want: true},
		{name: "device unknown status", err: &DeviceError{Code: 0x42}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "transport closed", err: ErrTransportClosed, want: true},
		{name: "device not found", err: ErrDeviceNotFound, want: true},
		{name: "unsupported version", err: &UnsupportedVersionError{Reported: "0.5"}, want: true},
		{name: "EOF", err: io.EOF, want: true},
		{name: "closed pipe", err: fmt.Errorf("read: %w", io.ErrClosedPipe), want: true},
		{name: "EIO", err: fmt.Errorf("read: %w", syscall.EIO), want: true},
		{name: "ENODEV", err: syscall.ENODEV, want: true},
		{name: "ENXIO", err: syscall.ENXIO, want: true},
		{name: "EAGAIN", err: syscall.EAGAIN, want: false},
		{name: "permanent transport error", err: NewTransportClosedError("write", "/dev/ttyUSB0"), want: true},
		{name: "timeout transport error", err: NewTimeoutError("read", "/dev/ttyUSB0"), want: false},
		{name: "device timeout", err: &DeviceError{Code: ErrorRXTimeout}, want: false},
		{name: "no response", err: ErrNoResponse, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDeviceTimeout(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDeviceTimeout(&DeviceError{Code: ErrorRXTimeout}))
	assert.True(t, IsDeviceTimeout(fmt.Errorf("listen: %w", &DeviceError{Code: ErrorRXTimeout})))
	assert.False(t, IsDeviceTimeout(&DeviceError{Code: ErrorZeroData}))
	assert.False(t, IsDeviceTimeout(ErrTransportTimeout))
	assert.False(t, IsDeviceTimeout(nil))
}

func TestNewTransportError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		errType       ErrorType
		wantRetryable bool
	}{
		{name: "transient", errType: ErrorTypeTransient, wantRetryable: true},
		{name: "timeout", errType: ErrorTypeTimeout, wantRetryable: true},
		{name: "permanent", errType: ErrorTypePermanent, wantRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewTransportError("read", "/dev/ttyUSB0", ErrTransportRead, tt.errType)
			assert.Equal(t, "read", err.Op)
			assert.Equal(t, "/dev/ttyUSB0", err.Port)
			assert.Equal(t, tt.errType, err.Type)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
			assert.ErrorIs(t, err, ErrTransportRead)
		})
	}
}

func TestTransportError_Error(t *testing.T) {
	t.Parallel()

	withPort := NewTimeoutError("SendCommand", "/dev/ttyUSB0")
	assert.Equal(t, "SendCommand /dev/ttyUSB0: transport timeout", withPort.Error())

	withoutPort := NewTimeoutError("SendCommand", "")
	assert.Equal(t, "SendCommand: transport timeout", withoutPort.Error())
}

func TestErrorConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	open := NewTransportOpenError("/dev/ttyUSB0", cause)
	require.ErrorIs(t, open, ErrTransportOpen)
	require.ErrorIs(t, open, cause)
	assert.Equal(t, ErrorTypePermanent, open.Type)

	noResp := NewNoResponseError("GetPacket", "/dev/ttyUSB0", 0)
	require.ErrorIs(t, noResp, ErrNoResponse)
	require.ErrorIs(t, noResp, ErrCommunicationFailed)
	assert.True(t, noResp.Retryable)

	tooLarge := NewDataTooLargeError("SendCommand", "/dev/spidev5.1")
	require.ErrorIs(t, tooLarge, ErrDataTooLarge)
	assert.True(t, IsFatal(tooLarge))

	notReady := NewTransportNotReadyError("Sync", "/dev/ttyUSB0")
	require.ErrorIs(t, notReady, ErrTransportNotReady)
	assert.True(t, notReady.Retryable)

	assert.ErrorIs(t, NewTransportWriteError("write", "p"), ErrTransportWrite)
	assert.ErrorIs(t, NewTransportReadError("read", "p"), ErrTransportRead)
}

func TestDeviceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		wantText    string
		code        ErrorCode
		wantTimeout bool
		wantUnknown bool
	}{
		{name: "timeout", code: ErrorRXTimeout, wantText: "Timeout", wantTimeout: true},
		{name: "interrupted", code: ErrorCmdInterrupted, wantText: "Command Interrupted"},
		{name: "zero data", code: ErrorZeroData, wantText: "Zero Data"},
		{name: "unknown", code: 0x42, wantUnknown: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := &DeviceError{Command: CmdGetPacket, Channel: 2, Code: tt.code}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
			assert.Contains(t, err.Error(), "channel 2")
			assert.ErrorIs(t, err, ErrCommunicationFailed)
			assert.Equal(t, tt.wantTimeout, errors.Is(err, ErrDeviceTimeout))
			assert.Equal(t, tt.wantUnknown, errors.Is(err, ErrUnknownDeviceStatus))
		})
	}
}

func TestUnsupportedVersionError(t *testing.T) {
	t.Parallel()

	err := &UnsupportedVersionError{Reported: "0.5", Supported: []string{"0.6", "0.7"}}
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Contains(t, err.Error(), `"0.5"`)
	assert.Contains(t, err.Error(), "0.6, 0.7")
}

func TestTraceBuffer_BasicOperations(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 10)
	tb.RecordTX([]byte{0x02}, "GetVersion")
	tb.RecordRX([]byte("subg_rfspy 0.6"), "")
	tb.RecordRX([]byte{0x00}, "terminator")

	wrappedErr := tb.WrapError(errors.New("test error"))

	var te *TraceableError
	if !errors.As(wrappedErr, &te) {
		t.Fatal("WrapError should return a TraceableError")
	}
	if len(te.Trace) != 3 {
		t.Errorf("Expected 3 trace entries, got %d", len(te.Trace))
	}
	if te.Trace[0].Direction != TraceTX {
		t.Errorf("First entry should be TX, got %v", te.Trace[0].Direction)
	}
	if te.Transport != "UART" || te.Port != "/dev/ttyUSB0" {
		t.Errorf("Transport/Port = %q/%q", te.Transport, te.Port)
	}
}

func TestTraceableError_Unwrap(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("SPI", "/dev/spidev5.1", 10)
	tb.RecordTX([]byte{0x99, 0x01, 0x01}, "GetState")
	wrappedErr := tb.WrapError(ErrNoResponse)

	assert.ErrorIs(t, wrappedErr, ErrNoResponse)
	assert.ErrorIs(t, wrappedErr, ErrCommunicationFailed)
	assert.Equal(t, ErrNoResponse.Error(), wrappedErr.Error())
}

func TestTraceableError_FormatTrace(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 10)
	tb.RecordTX([]byte{0x03, 0x00, 0x03, 0xE8}, "GetPacket")
	tb.RecordTimeout("2s")

	te := GetTrace(tb.WrapError(ErrTransportTimeout))
	require.NotNil(t, te)

	out := te.FormatTrace()
	assert.Contains(t, out, "[UART:/dev/ttyUSB0] Wire trace (2 entries)")
	assert.Contains(t, out, "> 03 00 03 E8 (GetPacket)")
	assert.Contains(t, out, "< (empty) (TIMEOUT: 2s)")

	empty := &TraceableError{Err: ErrTransportTimeout, Transport: "SPI", Port: "/dev/spidev5.1"}
	assert.Equal(t, "[SPI:/dev/spidev5.1] (no trace data)", empty.FormatTrace())
}

func TestTraceBuffer_CircularBuffer(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 3)
	for i := range 5 {
		tb.RecordTX([]byte{byte(i)}, "")
	}

	entries := tb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []byte{2}, entries[0].Data)
	assert.Equal(t, []byte{4}, entries[2].Data)

	assert.Equal(t, 16, NewTraceBuffer("UART", "p", 0).maxSize)
}

func TestTraceBuffer_WrapNilError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 10)
	tb.RecordTX([]byte{0x01}, "")
	assert.NoError(t, tb.WrapError(nil))
}

func TestGetTrace(t *testing.T) {
	t.Parallel()

	assert.Nil(t, GetTrace(errors.New("plain")))
	assert.Nil(t, GetTrace(nil))

	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 10)
	wrapped := fmt.Errorf("read: %w", tb.WrapError(ErrTransportRead))
	assert.NotNil(t, GetTrace(wrapped))
}

func TestTraceEntry_String(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	entry := TraceEntry{Timestamp: ts, Direction: TraceRX, Data: []byte{0x4F, 0x4B}, Note: "GetState"}
	assert.Equal(t, "[15:04:05.000] RX: 4F 4B (GetState)", entry.String())

	entry.Note = ""
	assert.Equal(t, "[15:04:05.000] RX: 4F 4B", entry.String())
}

func TestFormatHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", FormatHex(nil))
	assert.Equal(t, "A7 01", FormatHex([]byte{0xA7, 0x01}))

	long := make([]byte, 40)
	out := FormatHex(long)
	assert.True(t, strings.HasSuffix(out, "... (40 bytes total)"))
	assert.Equal(t, 32, strings.Count(out, "00"))
}
