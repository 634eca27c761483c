// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package serialport carries GAIA over a serial device, typically an RFCOMM
// tty bound with `rfcomm bind` (/dev/rfcomm0) or a USB serial adapter.
package serialport

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/Thermoquad/gaiastat/pkg/link"
)

// DefaultBaudRate is ignored by RFCOMM ttys but required by the serial API
const DefaultBaudRate = 115200

// Port wraps a serial port
type Port struct {
	port serial.Port
	name string
}

func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err == nil && n == 0 {
		// Without a read timeout a zero length read means the tty hung up
		return 0, io.EOF
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *Port) Close() error {
	return p.port.Close()
}

// Name returns the device path
func (p *Port) Name() string {
	return p.name
}

// Open opens a serial port in 8N1 mode
func Open(portName string, baudRate int) (*Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &Port{port: port, name: portName}, nil
}

// NewHost returns a link.Host whose only device is the headset behind
// portName. The port is opened on Connect.
func NewHost(portName string, baudRate int, name string) *link.StaticHost {
	dev := link.Device{Address: portName, Name: name, Connected: true}
	return link.NewStaticHost(dev, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return Open(portName, baudRate)
	})
}

// ListPorts returns the serial devices present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
