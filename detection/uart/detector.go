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

package uart

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/detection"
	"github.com/ZaparooProject/go-rfspy/transport/uart"
)

const probeTimeout = 2 * time.Second

// knownAccessories lists USB IDs subg_rfspy hardware enumerates with.
var knownAccessories = []string{
	"0451:16A7", // TI CC1111 USB CDC (subg_rfspy USB build)
	"0403:6015", // FTDI FT231X (Slice of Radio, ERF sticks)
	"0403:6001", // FTDI FT232R
	"10C4:EA60", // Silicon Labs CP210x
}

var accessoryKeywords = []string{"subg_rfspy", "rfspy", "cc111"}

// probeDeviceFn is swapped out in tests
var probeDeviceFn = probeDevice

type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect searches serial ports for subg_rfspy accessories
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for i, port := range d.filterPorts(ports, opts) {
		if ctx.Err() != nil {
			break
		}
		rfspy.Debugf("uart detection: checking port %d %s (%s)", i, port.Path, port.VIDPID)
		if device, ok := d.processPort(ctx, &port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts drops blocked and ignored ports
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

func (*detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	likely := isLikelyAccessory(port)

	if opts.Mode == detection.Passive {
		if !likely {
			return detection.DeviceInfo{}, false
		}
		return createDeviceInfo(port, detection.Medium), true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if !probeDeviceFn(probeCtx, port.Path, opts.Mode) {
		return detection.DeviceInfo{}, false
	}
	return createDeviceInfo(port, detection.High), true
}

func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Description != "" {
		device.Metadata["description"] = port.Description
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

type serialPort struct {
	Path         string
	Name         string
	Description  string
	VIDPID       string
	Manufacturer string
	SerialNumber string
}

// isLikelyAccessory reports whether the port metadata looks like subg_rfspy
// hardware without talking to it.
func isLikelyAccessory(port *serialPort) bool {
	if port.VIDPID != "" && slices.Contains(knownAccessories, detection.NormalizeVIDPID(port.VIDPID)) {
		return true
	}

	text := strings.ToLower(port.Description + " " + port.Manufacturer)
	for _, keyword := range accessoryKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens the port once and asks for the firmware version. Safe
// mode accepts any subg_rfspy reply; Full mode also requires a supported
// version. Detection never retries, so a port that is not an accessory is
// only poked once.
func probeDevice(ctx context.Context, path string, mode detection.Mode) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	return probeLink(ctx, transport, mode)
}

func probeLink(ctx context.Context, transport rfspy.Transport, mode detection.Mode) bool {
	link, err := rfspy.New(transport, rfspy.WithoutSetupCheck())
	if err != nil {
		return false
	}

	switch mode {
	case detection.Safe:
		fw, err := link.Version(ctx)
		return err == nil && fw.Name == "subg_rfspy"
	case detection.Full:
		return link.CheckSetup(ctx) == nil
	default:
		return false
	}
}
