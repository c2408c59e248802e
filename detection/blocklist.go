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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB VID:PID pairs that must never be probed.
// Opening them at 19200 baud and writing command bytes upsets the device.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, resets when the port opens
		"1366:0105", // SEGGER J-Link CDC
	}
}

// IsBlocked reports whether vidpid is on the blocklist, ignoring case.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = NormalizeVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if NormalizeVIDPID(blocked) == vidpid {
			return true
		}
	}
	return false
}

// NormalizeVIDPID upper-cases a "vvvv:pppp" pair and left-pads each half to
// four digits, so "451:16a7" and "0451:16A7" compare equal. Anything that is
// not two hex halves yields "".
func NormalizeVIDPID(vidpid string) string {
	vid, pid, ok := strings.Cut(strings.TrimSpace(vidpid), ":")
	if !ok || !isHex(vid) || !isHex(pid) || len(vid) > 4 || len(pid) > 4 {
		return ""
	}
	pad := func(s string) string {
		return strings.Repeat("0", 4-len(s)) + strings.ToUpper(s)
	}
	return pad(vid) + ":" + pad(pid)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths
// after cleaning. The comparison is case-insensitive.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalized := normalizedPath(devicePath)
	for _, ignore := range ignorePaths {
		if ignore == "" {
			continue
		}
		if ignore == devicePath || normalizedPath(ignore) == normalized {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
