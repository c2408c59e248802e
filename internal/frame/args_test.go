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

package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRepetitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		want  []int
		total int
	}{
		{name: "single", total: 1, want: []int{1}},
		{name: "just under a batch", total: 249, want: []int{249}},
		{name: "exactly one batch", total: 250, want: []int{250}},
		{name: "one over a batch", total: 251, want: []int{250, 1}},
		{name: "three hundred", total: 300, want: []int{250, 50}},
		{name: "several full batches", total: 1000, want: []int{250, 250, 250, 250}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SplitRepetitions(tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitRepetitionsInvariants(t *testing.T) {
	t.Parallel()

	for total := 1; total <= 2000; total++ {
		batches, err := SplitRepetitions(total)
		require.NoError(t, err)

		sum := 0
		for _, b := range batches {
			require.GreaterOrEqual(t, b, 1)
			require.LessOrEqual(t, b-1, 249, "count byte must fit the accessory limit")
			sum += b
		}
		require.Equal(t, total, sum)
		require.Len(t, batches, (total+249)/250)
	}
}

func TestSplitRepetitionsRejectsZero(t *testing.T) {
	t.Parallel()

	_, err := SplitRepetitions(0)
	require.ErrorIs(t, err, ErrRepetitions)
	_, err = SplitRepetitions(-3)
	require.ErrorIs(t, err, ErrRepetitions)
}

func TestSendPacketArgs(t *testing.T) {
	t.Parallel()

	args := SendPacketArgs(2, 250, 7, []byte{0xA9, 0x65})
	assert.Equal(t, []byte{2, 249, 7, 0xA9, 0x65}, args)

	args = SendPacketArgs(0, 1, 0, nil)
	assert.Equal(t, []byte{0, 0, 0}, args)
}

func TestEncodeTimeout(t *testing.T) {
	t.Parallel()

	for seconds := 0; seconds <= 65; seconds++ {
		hi, lo, err := EncodeTimeout(time.Duration(seconds) * time.Second)
		require.NoError(t, err, "%ds", seconds)
		assert.Equal(t, seconds*1000, int(hi)*256+int(lo), "%ds", seconds)
	}

	hi, lo, err := EncodeTimeout(65535 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), hi)
	assert.Equal(t, byte(0xFF), lo)

	_, _, err = EncodeTimeout(66 * time.Second)
	require.ErrorIs(t, err, ErrTimeoutRange)
	_, _, err = EncodeTimeout(-time.Second)
	require.ErrorIs(t, err, ErrTimeoutRange)

	// A zero window tells the accessory to wait forever.
	_, _, err = EncodeTimeout(500 * time.Microsecond)
	require.ErrorIs(t, err, ErrTimeoutRange)

	hi, lo, err = EncodeTimeout(time.Millisecond + 500*time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, []byte{hi, lo})
}

func TestGetPacketArgs(t *testing.T) {
	t.Parallel()

	args, err := GetPacketArgs(0, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 7, 208}, args)

	args, err = GetPacketArgs(4, 1500*time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 1}, args, "sub-millisecond remainder is truncated")
}

func TestRSSIToDBm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -73, RSSIToDBm(0x00))
	assert.Equal(t, -41, RSSIToDBm(0x40))
	assert.Equal(t, -74, RSSIToDBm(0xFE))
	assert.Equal(t, -137, RSSIToDBm(0x80))
}

func TestBufferPool(t *testing.T) {
	t.Parallel()

	pool := NewBufferPool()
	small := pool.GetBuffer(4)
	assert.Len(t, small, 4)
	assert.Equal(t, SmallBufferSize, cap(small))
	small[0] = 0xFF
	pool.PutBuffer(small)

	resp := pool.GetBuffer(300)
	assert.Len(t, resp, 300)
	assert.Equal(t, ResponseBufferSize, cap(resp))
	pool.PutBuffer(resp)

	big := pool.GetBuffer(ResponseBufferSize + 1)
	assert.Len(t, big, ResponseBufferSize+1)
	pool.PutBuffer(big)
}
