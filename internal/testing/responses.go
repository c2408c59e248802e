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

package testing

import (
	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/pkg/fourbysix"
)

// Reply bodies as the transport hands them to the link, without the UART
// terminator. Handy with rfspy.MockTransport.

// BuildVersionResponse creates a GetVersion reply for version
func BuildVersionResponse(version string) []byte {
	return []byte("subg_rfspy " + version)
}

// BuildStateResponse creates a healthy GetState reply
func BuildStateResponse() []byte {
	return []byte("OK")
}

// BuildPacketResponse creates a GetPacket reply carrying payload
func BuildPacketResponse(rssi, seq byte, payload []byte) []byte {
	encoded := fourbysix.Encode(payload)
	resp := make([]byte, 0, 2+len(encoded))
	resp = append(resp, rssi, seq)
	return append(resp, encoded...)
}

// BuildStatusResponse creates a one-byte GetPacket status reply
func BuildStatusResponse(code rfspy.ErrorCode) []byte {
	return []byte{byte(code)}
}

// Terminate appends the UART 0x00 terminator to a reply body
func Terminate(body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	return append(out, 0x00)
}
