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

// Package frame builds and splits the argument and response buffers of the
// subg_rfspy packet commands.
package frame

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxRepetitionBatchSize is the most transmissions one SendPacket command
	// can request; the count travels as count-1 in a single byte.
	MaxRepetitionBatchSize = 250
	// MaxTimeoutMillis is the largest receive window GetPacket can encode.
	MaxTimeoutMillis = 0xFFFF
	// PacketHeaderLen is the number of metadata bytes ahead of the encoded
	// payload in a GetPacket response.
	PacketHeaderLen = 2
)

var (
	// ErrTimeoutRange is returned for receive windows that do not fit 16 bits.
	ErrTimeoutRange = errors.New("timeout out of range")
	// ErrRepetitions is returned for repetition counts below one.
	ErrRepetitions = errors.New("repetitions must be at least 1")
)

// SplitRepetitions splits a repetition count into per-command batches of at
// most MaxRepetitionBatchSize that sum to total.
func SplitRepetitions(total int) ([]int, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrRepetitions, total)
	}
	batches := make([]int, 0, (total+MaxRepetitionBatchSize-1)/MaxRepetitionBatchSize)
	for remaining := total; remaining > 0; {
		batch := min(remaining, MaxRepetitionBatchSize)
		remaining -= batch
		batches = append(batches, batch)
	}
	return batches, nil
}

// SendPacketArgs builds [channel, transmissions-1, delay] + encoded.
// transmissions must be within 1..MaxRepetitionBatchSize.
func SendPacketArgs(channel byte, transmissions int, delay byte, encoded []byte) []byte {
	args := make([]byte, 0, 3+len(encoded))
	args = append(args, channel, byte(transmissions-1), delay)
	return append(args, encoded...)
}

// EncodeTimeout splits a receive window into the big-endian millisecond pair
// GetPacket expects. Sub-millisecond remainders are truncated.
func EncodeTimeout(timeout time.Duration) (hi, lo byte, err error) {
	if timeout > 0 && timeout < time.Millisecond {
		return 0, 0, fmt.Errorf("%w: %v is shorter than 1ms and would mean no timeout", ErrTimeoutRange, timeout)
	}
	ms := timeout.Milliseconds()
	if ms < 0 || ms > MaxTimeoutMillis {
		return 0, 0, fmt.Errorf("%w: %v is not within 0..%dms", ErrTimeoutRange, timeout, MaxTimeoutMillis)
	}
	return byte(ms / 256), byte(ms % 256), nil
}

// GetPacketArgs builds [channel, timeout_ms_high, timeout_ms_low].
func GetPacketArgs(channel byte, timeout time.Duration) ([]byte, error) {
	hi, lo, err := EncodeTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return []byte{channel, hi, lo}, nil
}

// RSSIToDBm converts the CC111x raw RSSI register value to dBm.
func RSSIToDBm(raw byte) int {
	const offset = 73
	return int(int8(raw))/2 - offset
}
