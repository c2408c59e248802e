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

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

// Recoverer brings a link back after a fatal error or host sleep
type Recoverer interface {
	// AttemptRecovery returns nil once the link is usable again
	AttemptRecovery(ctx context.Context) error

	// Link returns the current link, which may change after reconnection
	Link() *rfspy.Link
}

// ReopenFunc opens a fresh link, typically through rfspy.ConnectLink
type ReopenFunc func(ctx context.Context) (*rfspy.Link, error)

// DefaultRecoverer re-runs setup on the existing link first and reopens the
// connection only when that fails.
type DefaultRecoverer struct {
	link        *rfspy.Link
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer. If reopenFunc is nil only the
// setup check is retried.
func NewDefaultRecoverer(
	link *rfspy.Link,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		link:        link,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery implements Recoverer
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.link.CheckSetup(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		rfspy.Debugf("listen: recovery attempt %d setup check failed: %v", attempt+1, err)

		if r.reopenFunc != nil {
			_ = r.link.Close()
			link, reopenErr := r.reopenFunc(ctx)
			if reopenErr == nil {
				r.link = link
				return nil
			}
			lastErr = reopenErr
		}
	}
	return lastErr
}

// Link implements Recoverer
func (r *DefaultRecoverer) Link() *rfspy.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.link
}
