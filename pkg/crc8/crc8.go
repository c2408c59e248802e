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

// Package crc8 computes the CRC-8 used by Medtronic radio packets.
package crc8

import "github.com/sigurn/crc8"

// Medtronic describes the CRC-8 carried by Medtronic packets (polynomial 0x9B,
// no reflection, zero init). It is the same parameter set as CRC-8/LTE.
var Medtronic = crc8.Params{
	Poly:   0x9B,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xEA,
	Name:   "CRC-8/MEDTRONIC",
}

var table = crc8.MakeTable(Medtronic)

// Checksum returns the Medtronic CRC-8 of data.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, table)
}

// Append returns data with its checksum appended.
func Append(data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, data...)
	return append(out, Checksum(data))
}

// Valid reports whether the last byte of packet is the checksum of the bytes before it.
func Valid(packet []byte) bool {
	if len(packet) < 2 {
		return false
	}
	n := len(packet) - 1
	return Checksum(packet[:n]) == packet[n]
}
