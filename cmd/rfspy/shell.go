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

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/listen"
)

const shellKey = "$state"

// shellState backs the interactive shell. Commands go through the session so
// they never overlap a receive window.
type shellState struct {
	ctx     context.Context
	session *listen.Session
	cfg     *config
}

func newShellState(session *listen.Session, cfg *config) *shellState {
	return &shellState{session: session, cfg: cfg, ctx: context.Background()}
}

func (s *shellState) do(fn func(context.Context, *rfspy.Link) error) error {
	return s.session.Do(s.ctx, fn) //nolint:wrapcheck // errors are printed as is
}

func (s *shellState) version() (string, error) {
	var out string
	err := s.do(func(ctx context.Context, link *rfspy.Link) error {
		fw, err := link.Version(ctx)
		if err != nil {
			return err
		}
		out = fw.Raw
		return nil
	})
	return out, err
}

func (s *shellState) state() (string, error) {
	err := s.do(func(ctx context.Context, link *rfspy.Link) error {
		return link.GetState(ctx)
	})
	if err != nil {
		return "", err
	}
	return "OK", nil
}

func (s *shellState) channel(args []string) (string, error) {
	if len(args) == 0 {
		return strconv.Itoa(int(s.session.Link().Channel())), nil
	}
	ch, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return "", fmt.Errorf("%w: channel %q", rfspy.ErrInvalidParameter, args[0])
	}
	err = s.do(func(_ context.Context, link *rfspy.Link) error {
		link.SetChannel(byte(ch))
		return nil
	})
	return fmt.Sprintf("channel %d", ch), err
}

func (s *shellState) send(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("usage: send <hex> [repetitions] [delay]")
	}
	data, err := hex.DecodeString(args[0])
	if err != nil {
		return "", fmt.Errorf("payload is not hex: %w", err)
	}
	params := rfspy.WriteParams{Repetitions: 1}
	if len(args) > 1 {
		if params.Repetitions, err = strconv.Atoi(args[1]); err != nil {
			return "", fmt.Errorf("%w: repetitions %q", rfspy.ErrInvalidParameter, args[1])
		}
	}
	if len(args) > 2 {
		delay, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return "", fmt.Errorf("%w: delay %q", rfspy.ErrInvalidParameter, args[2])
		}
		params.RepetitionDelay = byte(delay)
	}
	err = s.do(func(ctx context.Context, link *rfspy.Link) error {
		return link.Write(ctx, data, params)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sent %d bytes x%d", len(data), params.Repetitions), nil
}

// listen waits for one packet; the optional argument is the window.
func (s *shellState) listen(args []string) (string, error) {
	timeout := s.cfg.timeout
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return "", fmt.Errorf("%w: timeout %q", rfspy.ErrInvalidParameter, args[0])
		}
		timeout = d
	}
	var pkt *rfspy.Packet
	err := s.do(func(ctx context.Context, link *rfspy.Link) error {
		var err error
		pkt, err = link.ReadPacket(ctx, timeout)
		return err
	})
	if rfspy.IsDeviceTimeout(err) {
		return "no packet", nil
	}
	if err != nil {
		return "", err
	}
	return formatPacket(pkt), nil
}

func stateFrom(c *ishell.Context) *shellState {
	return c.Get(shellKey).(*shellState) //nolint:forcetypeassert // set in newShell
}

func shellCmd(name, help string, fn func(*shellState, []string) (string, error)) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: help,
		Func: func(c *ishell.Context) {
			out, err := fn(stateFrom(c), c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(out)
		},
	}
}

func newShell(state *shellState) *ishell.Shell {
	sh := ishell.New()
	sh.Set(shellKey, state)
	sh.SetPrompt("rfspy> ")
	sh.AddCmd(shellCmd("version", "show accessory firmware version",
		func(s *shellState, _ []string) (string, error) { return s.version() }))
	sh.AddCmd(shellCmd("state", "check the accessory answers OK",
		func(s *shellState, _ []string) (string, error) { return s.state() }))
	sh.AddCmd(shellCmd("channel", "show or set the radio channel: channel [n]", (*shellState).channel))
	sh.AddCmd(shellCmd("send", "transmit a packet: send <hex> [repetitions] [delay]", (*shellState).send))
	sh.AddCmd(shellCmd("listen", "wait for one packet: listen [timeout]", (*shellState).listen))
	return sh
}

func runShell(ctx context.Context, state *shellState) error {
	state.ctx = ctx
	sh := newShell(state)
	sh.Println(fmt.Sprintf("Connected to %s on channel %d",
		strings.TrimSpace(state.session.Link().Transport().PortName()), state.session.Link().Channel()))
	go func() {
		<-ctx.Done()
		sh.Stop()
	}()
	sh.Run()
	return nil
}
