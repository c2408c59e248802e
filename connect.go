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
	"fmt"

	"github.com/ZaparooProject/go-rfspy/detection"
)

// TransportFactory opens a transport on a device path
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory opens a transport on a detected device
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// DeviceDetector lists candidate accessories; detection.DetectAll by default
type DeviceDetector func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)

// ConnectOption represents a functional option for ConnectLink
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         DeviceDetector
	linkOptions            []Option
	connectionRetries      int
	autoDetect             bool
}

// WithAutoDetection picks the first detected accessory instead of a path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithLinkOptions adds options applied to the created Link
func WithLinkOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.linkOptions = append(c.linkOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the factory used for explicit paths
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the factory used for detected devices
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets how many times setup is attempted
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector replaces the detector used by auto-detection
func WithDeviceDetector(detector DeviceDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// ConnectLink opens a transport, builds a Link and runs CheckSetup. The
// transport is closed on every failure path, so a returned error never leaks
// an open port.
//
// Example usage:
//
//	link, err := rfspy.ConnectLink(ctx, "/dev/ttyACM0",
//		rfspy.WithTransportFactory(func(path string) (rfspy.Transport, error) {
//			return uart.New(path)
//		}))
//
//	// Auto-detect the accessory
//	link, err := rfspy.ConnectLink(ctx, "", rfspy.WithAutoDetection(),
//		rfspy.WithTransportFromDeviceFactory(factory))
func ConnectLink(ctx context.Context, path string, opts ...ConnectOption) (*Link, error) {
	config := &connectConfig{connectionRetries: DefaultConnectionRetries}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	link, err := setupLinkWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return link, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config)
	}
	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(ctx context.Context, config *connectConfig) (Transport, error) {
	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	detector := config.deviceDetector
	if detector == nil {
		detector = detection.DetectAll
	}
	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	Debugf("auto-detected %s", devices[0])
	return config.transportDeviceFactory(devices[0])
}

// setupLinkWithRetry retries CheckSetup while the accessory is still booting.
// An unsupported firmware version is permanent and fails at once.
func setupLinkWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Link, error) {
	link, err := New(transport, config.linkOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	err = RetryWithConfig(ctx, ConnectionRetryConfig(config.connectionRetries), link.CheckSetup)
	if err != nil {
		return nil, fmt.Errorf("failed to set up link after %d attempts: %w", config.connectionRetries, err)
	}
	return link, nil
}
