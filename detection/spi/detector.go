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

// Package spi finds subg_rfspy accessories on SPI buses, such as the
// Explorer board's CC1110 on /dev/spidev5.1.
package spi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/detection"
	"github.com/ZaparooProject/go-rfspy/transport/spi"
)

// EnvDevice names an SPI device to try before globbing /dev/spidev*.
const EnvDevice = "RFSPY_SPI_DEVICE"

const probeTimeout = 2 * time.Second

var (
	devicePattern = "/dev/spidev*"
	probeDeviceFn = probeDevice
)

type detector struct{}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect probes candidate SPI devices. Passive mode only lists them.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	var devices []detection.DeviceInfo
	for _, path := range candidatePaths() {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		device := detection.DeviceInfo{
			Transport:  "spi",
			Path:       path,
			Name:       fmt.Sprintf("SPI device %s", filepath.Base(path)),
			Confidence: detection.Low,
			Metadata:   map[string]string{},
		}

		if opts.Mode != detection.Passive {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			ok := probeDeviceFn(probeCtx, path, opts.Mode)
			cancel()
			if !ok {
				continue
			}
			device.Confidence = detection.High
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// candidatePaths returns the environment override first, then every
// accessible spidev node, without duplicates.
func candidatePaths() []string {
	var paths []string
	seen := map[string]bool{}
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		paths = append(paths, path)
	}

	add(os.Getenv(EnvDevice))
	matches, err := filepath.Glob(devicePattern)
	if err == nil {
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				add(path)
			}
		}
	}
	return paths
}

func probeDevice(ctx context.Context, path string, mode detection.Mode) bool {
	transport, err := spi.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	link, err := rfspy.New(transport, rfspy.WithoutSetupCheck())
	if err != nil {
		return false
	}
	if mode == detection.Full {
		return link.CheckSetup(ctx) == nil
	}
	fw, err := link.Version(ctx)
	return err == nil && fw.Name == "subg_rfspy"
}
