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

// Package listen runs a continuous receive loop on a subg_rfspy link.
//
// The accessory answers GetPacket with a Timeout status when nothing was
// heard during the listen window; the session treats that as an empty poll
// and asks again. Other retryable errors back off, fatal ones end the
// session unless a Recoverer brings the link back.
package listen

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/internal/syncutil"
)

// ErrSessionRunning is returned by Run when the session is already running
var ErrSessionRunning = errors.New("listen session already running")

// readMargin matches the extra time the link allows a GetPacket exchange
const readMargin = time.Second

// Session delivers received packets to OnPacket until its context ends.
// The link is not safe for concurrent use; other callers share it through Do.
type Session struct {
	onPacket  func(*rfspy.Packet) error
	onError   func(error)
	link      *rfspy.Link
	recoverer Recoverer
	config    *Config
	stats     Stats
	linkMu    syncutil.Mutex
	cbMu      syncutil.RWMutex
	statsMu   syncutil.RWMutex
	running   atomic.Bool
}

// NewSession creates a session on link. A nil config uses DefaultConfig.
func NewSession(link *rfspy.Link, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		link:   link,
		config: config,
	}
}

// SetOnPacket sets the callback for received packets. An error from the
// callback ends Run.
func (s *Session) SetOnPacket(callback func(*rfspy.Packet) error) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onPacket = callback
}

// SetOnError sets the callback for errors the session survives.
func (s *Session) SetOnError(callback func(error)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onError = callback
}

// SetRecoverer enables recovery from fatal errors and host sleep
func (s *Session) SetRecoverer(r Recoverer) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	s.recoverer = r
}

// Link returns the link currently in use
func (s *Session) Link() *rfspy.Link {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	return s.link
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Do runs fn with exclusive use of the link, between two receive windows.
func (s *Session) Do(ctx context.Context, fn func(context.Context, *rfspy.Link) error) error {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s.link)
}

// Run polls the accessory until ctx ends, OnPacket fails or the link fails
// for good. It returns ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer s.running.Store(false)

	consecutive := 0
	backoff := s.config.ErrorBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		pkt, err := s.poll(ctx)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			consecutive, backoff = 0, s.config.ErrorBackoff
			if cbErr := s.deliver(pkt); cbErr != nil {
				return fmt.Errorf("packet handler failed: %w", cbErr)
			}

		case rfspy.IsDeviceTimeout(err):
			consecutive, backoff = 0, s.config.ErrorBackoff
			s.updateStats(func(st *Stats) { st.Timeouts++ })
			if s.config.SleepRecovery.DetectSleep(elapsed, s.config.ReceiveTimeout+readMargin) {
				rfspy.Debugf("listen: poll took %v, assuming host sleep", elapsed)
				if recErr := s.recover(ctx, err); recErr != nil {
					return recErr
				}
			}

		case ctx.Err() != nil:
			return ctx.Err()

		case rfspy.IsFatal(err):
			if recErr := s.recover(ctx, err); recErr != nil {
				return recErr
			}

		case errors.Is(err, rfspy.ErrInvalidPacket):
			s.updateStats(func(st *Stats) { st.InvalidPackets++ })
			s.reportError(err)

		case rfspy.IsRetryable(err):
			consecutive++
			s.updateStats(func(st *Stats) { st.Errors++ })
			if s.config.MaxConsecutiveErrors > 0 && consecutive >= s.config.MaxConsecutiveErrors {
				return fmt.Errorf("giving up after %d consecutive errors: %w", consecutive, err)
			}
			s.reportError(err)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, s.config.MaxErrorBackoff)

		default:
			return err
		}
	}
}

func (s *Session) poll(ctx context.Context) (*rfspy.Packet, error) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	s.updateStats(func(st *Stats) { st.Polls++ })
	pkt, err := s.link.ReadPacket(ctx, s.config.ReceiveTimeout)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by Run
	}
	return pkt, nil
}

func (s *Session) deliver(pkt *rfspy.Packet) error {
	s.updateStats(func(st *Stats) { st.recordPacket(pkt) })

	s.cbMu.RLock()
	cb := s.onPacket
	s.cbMu.RUnlock()
	if cb == nil {
		return nil
	}
	return cb(pkt)
}

func (s *Session) reportError(err error) {
	rfspy.Debugf("listen: %v", err)
	s.cbMu.RLock()
	cb := s.onError
	s.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// recover swaps in the recovered link, or returns cause when there is no
// recoverer or recovery fails.
func (s *Session) recover(ctx context.Context, cause error) error {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	if s.recoverer == nil {
		return cause
	}
	if err := s.recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("recovery failed after %w: %w", cause, err)
	}
	s.link = s.recoverer.Link()
	s.updateStats(func(st *Stats) { st.Recoveries++ })
	return nil
}

func (s *Session) updateStats(fn func(*Stats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
