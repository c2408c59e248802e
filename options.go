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
	"time"
)

// Option configures a Link at construction
type Option func(*Link) error

// WithTimeout sets the default timeout used by Write and Read
func WithTimeout(timeout time.Duration) Option {
	return func(l *Link) error {
		if timeout < MinReadTimeout || timeout > MaxReadTimeout {
			return fmt.Errorf("%w: timeout %v must be within [%v, %v]",
				ErrInvalidParameter, timeout, MinReadTimeout, MaxReadTimeout)
		}
		l.config.Timeout = timeout
		return nil
	}
}

// WithChannel sets the initial radio channel
func WithChannel(channel byte) Option {
	return func(l *Link) error {
		l.config.Channel = channel
		return nil
	}
}

// WithCodec replaces the 4b6b codec
func WithCodec(codec Codec) Option {
	return func(l *Link) error {
		if codec == nil {
			return fmt.Errorf("%w: nil codec", ErrInvalidParameter)
		}
		l.config.Codec = codec
		return nil
	}
}

// WithChecksum replaces the CRC-8 used for outbound payloads
func WithChecksum(checksum ChecksumFunc) Option {
	return func(l *Link) error {
		if checksum == nil {
			return fmt.Errorf("%w: nil checksum", ErrInvalidParameter)
		}
		l.config.Checksum = checksum
		return nil
	}
}

// WithoutSetupCheck lets Write and Read run before CheckSetup. Meant for
// tests and raw tooling talking to an accessory already known to be good.
func WithoutSetupCheck() Option {
	return func(l *Link) error {
		l.config.SkipSetupCheck = true
		return nil
	}
}

// WithConfig replaces the whole link configuration; nil fields keep defaults.
func WithConfig(cfg *LinkConfig) Option {
	return func(l *Link) error {
		if cfg == nil {
			return nil
		}
		merged := *cfg
		if merged.Codec == nil {
			merged.Codec = l.config.Codec
		}
		if merged.Checksum == nil {
			merged.Checksum = l.config.Checksum
		}
		if merged.Timeout == 0 {
			merged.Timeout = l.config.Timeout
		}
		l.config = &merged
		return nil
	}
}
