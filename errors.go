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
	"runtime"
	"strings"
	"syscall"
)

// Error categories for error handling and retry decisions
var (
	// Transport errors
	ErrTransportOpen     = errors.New("transport open failed")
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Communication errors - recoverable by the caller
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoResponse          = fmt.Errorf("%w: no response or response too short", ErrCommunicationFailed)
	ErrInvalidPacket       = fmt.Errorf("%w: invalid packet received", ErrCommunicationFailed)
	ErrDeviceTimeout       = fmt.Errorf("%w: accessory receive timeout", ErrCommunicationFailed)

	// Device errors - generally not retryable
	ErrDeviceNotFound      = errors.New("device not found")
	ErrUnsupportedVersion  = errors.New("unsupported subg_rfspy version")
	ErrInvalidResponse     = errors.New("invalid response format")
	ErrUnknownDeviceStatus = errors.New("unknown accessory status")
	ErrNotSetup            = errors.New("link setup has not been checked")

	// Parameter errors
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceError reports a one-byte status the accessory sent in place of a packet.
// It matches ErrCommunicationFailed with errors.Is, plus ErrDeviceTimeout for
// receive timeouts and ErrUnknownDeviceStatus for codes outside the documented set.
type DeviceError struct {
	Command Command
	Channel byte
	Code    ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s on channel %d: received an error response 0x%02X (%s)",
		e.Command, e.Channel, byte(e.Code), e.Code)
}

// Is matches the sentinel categories a status code belongs to.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrCommunicationFailed:
		return true
	case ErrDeviceTimeout:
		return e.Code == ErrorRXTimeout
	case ErrUnknownDeviceStatus:
		return !e.Code.Known()
	default:
		return false
	}
}

// UnsupportedVersionError is returned by CheckSetup when the accessory firmware
// is not one this package speaks.
type UnsupportedVersionError struct {
	Reported  string
	Supported []string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("subg_rfspy version %q is not in the supported version list: %s",
		e.Reported, strings.Join(e.Supported, ", "))
}

func (*UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var de *DeviceError
	if errors.As(err, &de) {
		return de.Code.Known()
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed):
		return true
	default:
		return false
	}
}

// IsDeviceTimeout reports whether err is the accessory's "no packet within the
// listen window" status. Receive loops treat it as an empty poll.
func IsDeviceTimeout(err error) bool {
	return errors.Is(err, ErrDeviceTimeout)
}

// IsFatal returns true if the error indicates the device or connection is gone,
// or that the accessory cannot be used at all.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrUnsupportedVersion),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a USB serial
// adapter is unplugged mid-exchange.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}

// Error constructors for consistent error creation

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTransportOpenError creates the error returned when a port cannot be opened (permanent)
func NewTransportOpenError(port string, cause error) *TransportError {
	return NewTransportError("open", port, fmt.Errorf("%w: %w", ErrTransportOpen, cause), ErrorTypePermanent)
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportClosedError creates a closed transport error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewNoResponseError creates an empty-response error (transient)
func NewNoResponseError(op, port string, length int) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %d bytes", ErrNoResponse, length), ErrorTypeTransient)
}

// NewDataTooLargeError creates a data too large error (permanent)
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewTransportNotReadyError creates a transport not ready error (timeout)
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTimeout)
}
