// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
	"github.com/Thermoquad/gaiastat/pkg/transport/bluez"
	"github.com/Thermoquad/gaiastat/pkg/transport/serialport"
	"github.com/Thermoquad/gaiastat/pkg/transport/wsbridge"
)

// ErrNoDevice is returned when no paired headset matches
var ErrNoDevice = errors.New("no paired headset found")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("GAIASTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// openHost builds the link.Host for the configured transport. The returned
// func releases host resources.
func openHost(t TransportConfig) (link.Host, func() error, string, error) {
	noop := func() error { return nil }

	if t.URL != "" {
		// WebSocket mode
		password := ""
		if t.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, nil, "", err
			}
		}
		host := wsbridge.NewHost(wsbridge.Options{
			URL:           t.URL,
			Username:      t.Username,
			Password:      password,
			SkipTLSVerify: t.NoSSLVerify,
			Device:        t.Device,
			Channel:       t.Channel,
		}, "GAIA bridge")
		return host, noop, fmt.Sprintf("WebSocket: %s", t.URL), nil
	}

	if t.Port != "" {
		// Serial mode
		host := serialport.NewHost(t.Port, t.Baud, "GAIA serial")
		return host, noop, fmt.Sprintf("Serial: %s @ %d baud", t.Port, t.Baud), nil
	}

	host, err := bluez.New(bluez.Options{Adapter: t.Adapter, Channel: t.Channel})
	if err != nil {
		return nil, nil, "", err
	}
	info := "Bluetooth"
	if t.Adapter != "" {
		info += ": " + t.Adapter
	}
	return host, host.Close, info, nil
}

// selectDevice picks the headset named by selector (address or name, case
// insensitive), else the first connected one, else the first one
func selectDevice(devices []link.Device, selector string) (link.Device, error) {
	if len(devices) == 0 {
		return link.Device{}, ErrNoDevice
	}
	if selector != "" {
		for _, d := range devices {
			if strings.EqualFold(d.Address, selector) || strings.EqualFold(d.Name, selector) {
				return d, nil
			}
		}
		return link.Device{}, fmt.Errorf("%w matching %q", ErrNoDevice, selector)
	}
	for _, d := range devices {
		if d.Connected {
			return d, nil
		}
	}
	return devices[0], nil
}

// session bundles a link and a controller for one command invocation
type session struct {
	info       string
	device     link.Device
	manager    *link.Manager
	controller *headset.Controller
	closeHost  func() error
}

// newSession builds the link stack without connecting. rec may be nil.
func newSession(rec link.Recorder) (*session, error) {
	host, closeHost, info, err := openHost(cfg.Transport)
	if err != nil {
		return nil, err
	}
	manager := link.New(host, cfg.linkConfig(logger.With("component", "link"), rec))
	controller := headset.New(manager, cfg.headsetConfig(logger.With("component", "headset")))
	return &session{
		info:       info,
		manager:    manager,
		controller: controller,
		closeHost:  closeHost,
	}, nil
}

// openSession builds the link stack and connects to the selected headset
func openSession(ctx context.Context, rec link.Recorder) (*session, error) {
	s, err := newSession(rec)
	if err != nil {
		return nil, err
	}
	if err := s.connect(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) connect(ctx context.Context) error {
	devices, err := s.manager.Scan(ctx)
	if err != nil {
		return err
	}
	selector := cfg.Transport.Device
	if cfg.Transport.URL != "" || cfg.Transport.Port != "" {
		// Static hosts expose exactly one device
		selector = ""
	}
	dev, err := selectDevice(devices, selector)
	if err != nil {
		return err
	}
	logger.Info("connecting", "device", dev.String(), "transport", s.info)
	if err := s.manager.Connect(ctx, dev); err != nil {
		return fmt.Errorf("connect %s: %w", dev, err)
	}
	s.device = dev
	return nil
}

// refresh registers for notifications and reads every setting
func (s *session) refresh(ctx context.Context) error {
	s.controller.Attach(s.device)
	if err := s.controller.FetchAll(ctx); err != nil {
		return err
	}
	return s.controller.Wait(ctx)
}

func (s *session) Close() {
	_ = s.manager.Close()
	if err := s.closeHost(); err != nil {
		logger.Debug("host close", "error", err)
	}
}
