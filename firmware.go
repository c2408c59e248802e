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
	"fmt"
	"slices"
	"strings"
)

// SupportedVersions lists the subg_rfspy firmware versions this package speaks.
var SupportedVersions = []string{"0.6"}

// FirmwareVersion describes the accessory firmware as reported by CmdGetVersion
type FirmwareVersion struct {
	// Raw is the full response line, e.g. "subg_rfspy 0.6"
	Raw string
	// Name is the first token, normally "subg_rfspy"
	Name string
	// Version is the second token, e.g. "0.6"
	Version string
}

// IsSupported reports whether the version is in SupportedVersions
func (fv *FirmwareVersion) IsSupported() bool {
	return slices.Contains(SupportedVersions, fv.Version)
}

// ParseFirmwareVersion parses a space-delimited version response.
func ParseFirmwareVersion(resp []byte) (*FirmwareVersion, error) {
	raw := strings.TrimRight(string(resp), "\x00\r\n ")
	tokens := strings.Split(raw, " ")
	if len(tokens) < 2 || tokens[1] == "" {
		return nil, fmt.Errorf("%w: version response %q", ErrInvalidResponse, raw)
	}
	return &FirmwareVersion{
		Raw:     raw,
		Name:    tokens[0],
		Version: tokens[1],
	}, nil
}
