// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Device is a paired headset as reported by the host
type Device struct {
	Address   string
	Name      string
	Connected bool // baseband link is up
}

// String returns "Name (Address)"
func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return d.Name + " (" + d.Address + ")"
}

// ServiceRecord is one SDP record of a device.
// Channel 0 means the record has no RFCOMM channel.
type ServiceRecord struct {
	Channel uint8
	Classes []uuid.UUID
}

// Conn is an open GAIA byte stream.
// Close must be safe to call more than once.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport opens the RFCOMM channel of a device
type Transport interface {
	Open(ctx context.Context, dev Device, ch Channel) (Conn, error)
}

// DeviceEnumerator lists paired devices
type DeviceEnumerator interface {
	PairedDevices(ctx context.Context) ([]Device, error)
}

// ServiceDiscovery exposes SDP records of a device
type ServiceDiscovery interface {
	// CachedServices returns the records the host already knows
	CachedServices(dev Device) []ServiceRecord
	// QueryServices performs an SDP query, refreshing the cache
	QueryServices(ctx context.Context, dev Device) error
}

// Host bundles the collaborators a Manager needs
type Host interface {
	DeviceEnumerator
	ServiceDiscovery
	Transport
}

// StaticHost is a Host with a single device and a fixed dialer.
// Used for serial ports and WebSocket bridges where the byte stream is
// already bound to one headset.
type StaticHost struct {
	Device  Device
	Records []ServiceRecord
	Dial    func(ctx context.Context) (io.ReadWriteCloser, error)
}

// NewStaticHost creates a StaticHost that advertises one Serial Port record
func NewStaticHost(dev Device, dial func(ctx context.Context) (io.ReadWriteCloser, error)) *StaticHost {
	return &StaticHost{
		Device:  dev,
		Records: []ServiceRecord{{Channel: 1, Classes: []uuid.UUID{ClassSerialPort}}},
		Dial:    dial,
	}
}

func (h *StaticHost) PairedDevices(ctx context.Context) ([]Device, error) {
	return []Device{h.Device}, nil
}

func (h *StaticHost) CachedServices(dev Device) []ServiceRecord {
	return h.Records
}

func (h *StaticHost) QueryServices(ctx context.Context, dev Device) error {
	return nil
}

func (h *StaticHost) Open(ctx context.Context, dev Device, ch Channel) (Conn, error) {
	if h.Dial == nil {
		return nil, errors.New("no dialer configured")
	}
	rwc, err := h.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return NewConn(rwc), nil
}

// onceConn makes Close idempotent
type onceConn struct {
	io.ReadWriteCloser
	once sync.Once
	err  error
}

// NewConn wraps rwc so repeated Close calls return the first result
func NewConn(rwc io.ReadWriteCloser) Conn {
	if c, ok := rwc.(*onceConn); ok {
		return c
	}
	return &onceConn{ReadWriteCloser: rwc}
}

func (c *onceConn) Close() error {
	c.once.Do(func() {
		c.err = c.ReadWriteCloser.Close()
	})
	return c.err
}

// FilterHeadsets narrows devices to likely Sennheiser headsets by name.
// If nothing matches, all devices are returned.
func FilterHeadsets(devices []Device) []Device {
	var matched []Device
	for _, d := range devices {
		name := strings.ToLower(d.Name)
		if strings.Contains(name, "hdb") || strings.Contains(name, "sennheiser") || strings.Contains(name, "630") {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return devices
	}
	return matched
}
