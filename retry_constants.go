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

import "time"

const (
	// DefaultConnectionRetries is the number of attempts ConnectLink makes.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the delay after the first failed attempt.
	ConnectionInitialBackoff = 250 * time.Millisecond
	// ConnectionMaxBackoff caps the delay between connection attempts.
	ConnectionMaxBackoff = 2 * time.Second
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0).
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout bounds all connection attempts together.
	// The accessory can take a few seconds to boot after the port opens.
	ConnectionRetryTimeout = 15 * time.Second
)

const (
	// SyncAttempts is how many GetState probes Sync sends before giving up.
	SyncAttempts = 20
	// SyncProbeTimeout is the wait for each GetState reply during Sync.
	SyncProbeTimeout = 250 * time.Millisecond
)
