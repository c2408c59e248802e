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

// Command rfspy talks to a subg_rfspy accessory.
//
//	rfspy [flags] version
//	rfspy [flags] send <hex>
//	rfspy [flags] listen
//	rfspy [flags] shell
//	rfspy [flags] -mqtt mqtt://broker:1883/rfspy/ bridge
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-rfspy"
	"github.com/ZaparooProject/go-rfspy/bridge/mqtt"
	"github.com/ZaparooProject/go-rfspy/detection"
	_ "github.com/ZaparooProject/go-rfspy/detection/spi"
	_ "github.com/ZaparooProject/go-rfspy/detection/uart"
	"github.com/ZaparooProject/go-rfspy/listen"
	"github.com/ZaparooProject/go-rfspy/transport/spi"
	"github.com/ZaparooProject/go-rfspy/transport/uart"
)

type config struct {
	mode       string
	devicePath string
	payload    string
	logDir     string
	mqttURL    string
	timeout    time.Duration
	repeat     int
	channel    uint
	delay      uint
	debug      bool
}

var errUsage = errors.New("usage error")

func parseConfig(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("rfspy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.devicePath, "device", "", "Serial or SPI device path (auto-detect if empty)")
	fs.UintVar(&cfg.channel, "channel", 0, "Radio channel")
	fs.DurationVar(&cfg.timeout, "timeout", rfspy.DefaultTimeout, "Default exchange and receive timeout")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.StringVar(&cfg.logDir, "log", "", "Write a debug session log to this directory")
	fs.IntVar(&cfg.repeat, "repeat", 1, "Transmissions per send")
	fs.UintVar(&cfg.delay, "delay", uint(rfspy.DefaultRepetitionDelay), "Accessory delay between repetitions")
	fs.StringVar(&cfg.mqttURL, "mqtt", "", "Broker URL for bridge mode")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	cfg.mode = fs.Arg(0)
	if cfg.mode == "" {
		cfg.mode = "listen"
	}

	switch {
	case cfg.channel > 0xFF:
		return nil, fmt.Errorf("%w: channel %d out of range", errUsage, cfg.channel)
	case cfg.delay > 0xFF:
		return nil, fmt.Errorf("%w: delay %d out of range", errUsage, cfg.delay)
	}

	switch cfg.mode {
	case "version", "listen", "shell":
	case "send":
		cfg.payload = fs.Arg(1)
		if cfg.payload == "" {
			return nil, fmt.Errorf("%w: send needs a hex payload", errUsage)
		}
	case "bridge":
		if cfg.mqttURL == "" {
			return nil, fmt.Errorf("%w: bridge needs -mqtt", errUsage)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", errUsage, cfg.mode)
	}
	return cfg, nil
}

// newTransport picks SPI for spidev paths and UART for everything else
func newTransport(path string) (rfspy.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	if strings.Contains(strings.ToLower(path), "spi") {
		return newTransportOfType("spi", path)
	}
	return newTransportOfType("uart", path)
}

func newTransportOfType(kind, path string) (rfspy.Transport, error) {
	if strings.EqualFold(kind, "spi") {
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

func newTransportFromDevice(device detection.DeviceInfo) (rfspy.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "uart", "spi":
		return newTransportOfType(device.Transport, device.Path)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

func connectToLink(ctx context.Context, cfg *config) (*rfspy.Link, error) {
	opts := []rfspy.ConnectOption{
		rfspy.WithLinkOptions(rfspy.WithChannel(byte(cfg.channel)), rfspy.WithTimeout(cfg.timeout)),
	}
	if cfg.devicePath == "" {
		opts = append(opts, rfspy.WithAutoDetection(), rfspy.WithTransportFromDeviceFactory(newTransportFromDevice))
		rfspy.Debugln("Auto-detecting subg_rfspy accessories...")
	} else {
		opts = append(opts, rfspy.WithTransportFactory(newTransport))
	}

	link, err := rfspy.ConnectLink(ctx, cfg.devicePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to accessory: %w", err)
	}
	rfspy.Debugf("Connected to %s (%s)", link.Transport().PortName(), link.FirmwareVersion().Raw)
	return link, nil
}

func runVersion(_ context.Context, link *rfspy.Link, out io.Writer) error {
	_, _ = fmt.Fprintln(out, link.FirmwareVersion().Raw)
	return nil
}

func runSend(ctx context.Context, link *rfspy.Link, cfg *config, out io.Writer) error {
	data, err := hex.DecodeString(strings.ReplaceAll(cfg.payload, " ", ""))
	if err != nil {
		return fmt.Errorf("payload is not hex: %w", err)
	}
	params := rfspy.WriteParams{Repetitions: cfg.repeat, RepetitionDelay: byte(cfg.delay)}
	if err := link.Write(ctx, data, params); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "sent %d bytes x%d on channel %d\n", len(data), max(cfg.repeat, 1), link.Channel())
	return nil
}

func formatPacket(pkt *rfspy.Packet) string {
	return fmt.Sprintf("seq=%d rssi=%d dBm data=%s", pkt.Sequence, pkt.RSSI, hex.EncodeToString(pkt.Data))
}

func newSession(link *rfspy.Link, cfg *config) *listen.Session {
	lcfg := listen.DefaultConfig()
	lcfg.ReceiveTimeout = cfg.timeout
	session := listen.NewSession(link, lcfg)
	session.SetRecoverer(listen.NewDefaultRecoverer(link, func(ctx context.Context) (*rfspy.Link, error) {
		return connectToLink(ctx, cfg)
	}, time.Second, 3))
	return session
}

func runListen(ctx context.Context, session *listen.Session, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Listening. Press Ctrl+C to stop...")
	session.SetOnPacket(func(pkt *rfspy.Packet) error {
		_, _ = fmt.Fprintln(out, formatPacket(pkt))
		return nil
	})
	session.SetOnError(func(err error) {
		_, _ = fmt.Fprintf(out, "receive error: %v\n", err)
	})
	return session.Run(ctx) //nolint:wrapcheck // session errors are already descriptive
}

func runBridge(ctx context.Context, session *listen.Session, cfg *config) error {
	client, err := mqtt.Dial(ctx, cfg.mqttURL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() { _ = client.Close() }()
	return mqtt.New(client, session).Run(ctx) //nolint:wrapcheck // session errors are already descriptive
}

func run(ctx context.Context, cfg *config) error {
	link, err := connectToLink(ctx, cfg)
	if err != nil {
		return err
	}
	session := newSession(link, cfg)
	defer func() {
		if err := session.Link().Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close link: %v\n", err)
		}
	}()

	switch cfg.mode {
	case "version":
		return runVersion(ctx, link, os.Stdout)
	case "send":
		return runSend(ctx, link, cfg, os.Stdout)
	case "shell":
		return runShell(ctx, newShellState(session, cfg))
	case "bridge":
		return runBridge(ctx, session, cfg)
	default:
		return runListen(ctx, session, os.Stdout)
	}
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.debug {
		rfspy.SetDebugEnabled(true)
	}
	if cfg.logDir != "" {
		path, err := rfspy.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = rfspy.CloseSessionLog() }()
		_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
