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
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryPort.
type JitterConfig struct {
	// MaxLatency is the longest random delay added before a read
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment a read returns
	FragmentMinBytes int
	// StallAfterBytes stalls once after this many bytes; 0 disables
	StallAfterBytes int
	// StallDuration is how long the stall lasts
	StallDuration time.Duration
	// Seed makes runs reproducible; 0 picks a random seed
	Seed uint64
	// FragmentReads splits reads at random points
	FragmentReads bool
}

// DefaultJitterConfig returns USB-serial-like timing that stays under the
// UART transport's terminator gap.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       5 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryPort wraps a Port to simulate USB-UART bridges (FTDI, CH340,
// CC111x USB CDC) that deliver a reply in fragments with small random
// gaps. Buffered so fragmentation never drops bytes.
type JitteryPort struct {
	Port
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	bytesReadSinceStall int
	stallTriggered      bool
}

// NewJitteryPort wraps backend with jitter simulation.
func NewJitteryPort(backend Port, config JitterConfig) *JitteryPort {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test code
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryPort{
		Port:    backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test code
		readBuf: make([]byte, 0, 256),
	}
}

// Read returns a random-sized fragment of the backend's data after a random delay.
func (j *JitteryPort) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 256)
		n, err := j.Port.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := min(len(j.readBuf), len(buf))

	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			time.Sleep(j.config.StallDuration)
		} else {
			toReturn = min(toReturn, j.config.StallAfterBytes-j.bytesReadSinceStall)
		}
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

// ResetInputBuffer drops buffered fragments and the backend's pending bytes.
func (j *JitteryPort) ResetInputBuffer() error {
	j.readBuf = j.readBuf[:0]
	return j.Port.ResetInputBuffer() //nolint:wrapcheck // pass-through
}

// ResetStallState re-arms the one-shot stall.
func (j *JitteryPort) ResetStallState() {
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
}
