//go:build linux

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
	"os"
	"path/filepath"
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
	"golang.org/x/sys/unix"
)

// getSerialPorts lists serial ports the process can open read-write, with
// USB identifiers from sysfs where available.
func getSerialPorts(_ context.Context) ([]serialPort, error) {
	devices, err := serialdet.List()
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Detect
	}

	ports := make([]serialPort, 0, len(devices))
	for _, device := range devices {
		path := device.Path()
		if unix.Access(path, unix.R_OK|unix.W_OK) != nil {
			continue
		}
		port := serialPort{
			Path:        path,
			Name:        filepath.Base(path),
			Description: device.Description(),
		}
		readUSBAttributes(&port, filepath.Join("/sys/class/tty", port.Name, "device"))
		ports = append(ports, port)
	}
	return ports, nil
}

// readUSBAttributes walks up from the tty's device node to the USB device
// carrying idVendor/idProduct.
func readUSBAttributes(port *serialPort, devicePath string) {
	current, err := filepath.EvalSymlinks(devicePath)
	if err != nil || !strings.Contains(current, "/usb") {
		return
	}
	for range 10 {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(port *serialPort, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return false
	}

	vid, err := readAttr(path, "idVendor")
	if err != nil {
		return false
	}
	pid, err := readAttr(path, "idProduct")
	if err != nil {
		return false
	}
	port.VIDPID = strings.ToUpper(vid + ":" + pid)

	if mfg, err := readAttr(path, "manufacturer"); err == nil {
		port.Manufacturer = mfg
	}
	if serial, err := readAttr(path, "serial"); err == nil {
		port.SerialNumber = serial
	}
	return true
}

func readAttr(dir, name string) (string, error) {
	// #nosec G304 -- dir is validated to be under /sys/
	data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, name)))
	if err != nil {
		return "", err //nolint:wrapcheck // callers only test for presence
	}
	return strings.TrimSpace(string(data)), nil
}
