// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package bluez

import (
	"context"

	"github.com/Thermoquad/gaiastat/pkg/link"
)

// Host is unavailable outside Linux
type Host struct{}

func New(opts Options) (*Host, error) {
	return nil, ErrUnsupported
}

func (h *Host) Close() error { return nil }

func (h *Host) PairedDevices(ctx context.Context) ([]link.Device, error) {
	return nil, ErrUnsupported
}

func (h *Host) CachedServices(dev link.Device) []link.ServiceRecord { return nil }

func (h *Host) QueryServices(ctx context.Context, dev link.Device) error {
	return ErrUnsupported
}

func (h *Host) Open(ctx context.Context, dev link.Device, ch link.Channel) (link.Conn, error) {
	return nil, ErrUnsupported
}
