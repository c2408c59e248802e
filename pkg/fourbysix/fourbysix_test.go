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

package fourbysix

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{
			name: "empty",
			data: []byte{},
			want: []byte{},
		},
		{
			name: "single byte is padded",
			data: []byte{0xA7},
			want: []byte{0xA9, 0x65},
		},
		{
			name: "two bytes fill three bytes exactly",
			data: []byte{0xA7, 0x12},
			want: []byte{0xA9, 0x6C, 0x72},
		},
		{
			name: "zero nibbles",
			data: []byte{0x00},
			want: []byte{0x55, 0x55},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Encode(tt.data)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, EncodedLen(len(tt.data)))
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for n := 0; n < 80; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*37 + n)
		}
		decoded, err := Decode(Encode(data))
		require.NoError(t, err, "length %d", n)
		assert.True(t, bytes.Equal(data, decoded), "length %d: got % X", n, decoded)
	}
}

func TestDecodeStopsAtZeroSymbol(t *testing.T) {
	t.Parallel()

	encoded := append(Encode([]byte{0xA7, 0x12}), 0x00, 0x00)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA7, 0x12}, decoded)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		data    []byte
	}{
		{
			name:    "invalid symbol",
			data:    []byte{0xFF, 0xFF, 0xFF},
			wantErr: ErrInvalidSymbol,
		},
		{
			name:    "single symbol leaves half a byte",
			data:    []byte{0x54, 0x00},
			wantErr: ErrOddLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
