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

// Package fourbysix implements the 4b6b line code used on the Medtronic
// sub-GHz link. Every nibble is sent as a 6-bit symbol with balanced ones
// and zeros, so a corrupted symbol is usually detectable on receipt.
package fourbysix

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSymbol is returned when a 6-bit group is not a valid code word.
	ErrInvalidSymbol = errors.New("invalid 4b6b symbol")
	// ErrOddLength is returned when the symbols decode to half a byte.
	ErrOddLength = errors.New("4b6b data decodes to an odd number of nibbles")
)

// padding fills the last four bits of an encoding with an odd symbol count.
const padding = 0x5

var encodeTable = [16]byte{
	0x15, 0x31, 0x32, 0x23, 0x34, 0x25, 0x26, 0x16,
	0x1A, 0x19, 0x2A, 0x0B, 0x2C, 0x0D, 0x0E, 0x1C,
}

// decodeTable maps a 6-bit symbol to nibble+1, zero meaning invalid.
var decodeTable = func() [64]byte {
	var t [64]byte
	for nibble, sym := range encodeTable {
		t[sym] = byte(nibble) + 1
	}
	return t
}()

// EncodedLen returns the number of bytes Encode produces for n input bytes.
func EncodedLen(n int) int {
	return (n*12 + 7) / 8
}

// Encode expands data into its 4b6b representation.
func Encode(data []byte) []byte {
	out := make([]byte, 0, EncodedLen(len(data)))
	var acc uint32
	var bits uint
	for _, b := range data {
		acc = acc<<12 | uint32(encodeTable[b>>4])<<6 | uint32(encodeTable[b&0x0F])
		bits += 12
		for bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
		acc &= 1<<bits - 1
	}
	if bits > 0 {
		out = append(out, byte(acc<<(8-bits))|padding)
	}
	return out
}

// Decode reverses Encode. Decoding stops at the first all-zero symbol, which
// the radio emits after the end of a packet.
func Decode(data []byte) ([]byte, error) {
	nibbles := make([]byte, 0, len(data)*8/6)
	var acc uint32
	var bits uint
decode:
	for i, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 6 {
			bits -= 6
			sym := byte(acc>>bits) & 0x3F
			acc &= 1<<bits - 1
			if sym == 0 {
				break decode
			}
			v := decodeTable[sym]
			if v == 0 {
				return nil, fmt.Errorf("%w 0x%02X at byte %d", ErrInvalidSymbol, sym, i)
			}
			nibbles = append(nibbles, v-1)
		}
	}

	if len(nibbles)%2 != 0 {
		return nil, fmt.Errorf("%w (%d)", ErrOddLength, len(nibbles))
	}

	out := make([]byte, len(nibbles)/2)
	for i := range out {
		out[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return out, nil
}

// Codec adapts the package functions to an encoder/decoder value.
type Codec struct{}

// Encode implements the link codec.
func (Codec) Encode(data []byte) []byte {
	return Encode(data)
}

// Decode implements the link codec.
func (Codec) Decode(data []byte) ([]byte, error) {
	return Decode(data)
}
