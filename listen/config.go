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

package listen

import "time"

// SleepRecoveryConfig configures recovery after the host slept. An accessory
// on USB is often re-enumerated or left mid-command across a suspend.
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is how far past the expected end of a
	// receive window a poll may return before a sleep is assumed. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
	}
}

// DetectSleep reports whether a poll that took elapsed, for a window
// expected to last at most window, spanned a host sleep.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, window time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > window+cfg.TimeDiscontinuityThreshold
}

// Config holds listen session options
type Config struct {
	// ReceiveTimeout is the accessory-side listen window of each GetPacket
	ReceiveTimeout time.Duration
	// ErrorBackoff is the first pause after a retryable error; it doubles
	// up to MaxErrorBackoff while errors keep coming.
	ErrorBackoff    time.Duration
	MaxErrorBackoff time.Duration
	// MaxConsecutiveErrors ends the session after that many retryable
	// errors in a row. 0 means never.
	MaxConsecutiveErrors int
	SleepRecovery        SleepRecoveryConfig
}

// DefaultConfig returns the default listen configuration
func DefaultConfig() *Config {
	return &Config{
		ReceiveTimeout:       time.Second,
		ErrorBackoff:         50 * time.Millisecond,
		MaxErrorBackoff:      2 * time.Second,
		MaxConsecutiveErrors: 10,
		SleepRecovery:        DefaultSleepRecoveryConfig(),
	}
}
