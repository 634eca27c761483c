// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import "fmt"

// Frame is one decoded GAIA frame
type Frame struct {
	Vendor  uint16
	Command uint16
	Payload []byte
}

// NewFrame creates a frame with a copy of payload
func NewFrame(vendor, command uint16, payload []byte) Frame {
	var p []byte
	if len(payload) > 0 {
		p = append([]byte(nil), payload...)
	}
	return Frame{Vendor: vendor, Command: command, Payload: p}
}

// IsError reports whether the device flagged this frame as an error response
func (f Frame) IsError() bool {
	return f.Command&ErrorFlag != 0
}

// Key returns the correlation key an inbound frame is matched on.
// The error bit is cleared so a rejected request resolves its waiter.
func (f Frame) Key() CorrelationKey {
	return CorrelationKey{Vendor: f.Vendor, Command: f.Command &^ ErrorFlag}
}

// Len returns the encoded frame length
func (f Frame) Len() int {
	return HeaderSize + len(f.Payload)
}

// String returns a one-line summary of the frame
func (f Frame) String() string {
	return fmt.Sprintf("vendor=0x%04X cmd=0x%04X (%s) len=%d", f.Vendor, f.Command, CommandName(f.Vendor, f.Command), len(f.Payload))
}

// CorrelationKey matches an outbound request to its inbound reply.
// Command is the response command id, not the request id.
type CorrelationKey struct {
	Vendor  uint16
	Command uint16
}

// String formats the key the same way frames are logged
func (k CorrelationKey) String() string {
	return fmt.Sprintf("%04X_%04X", k.Vendor, k.Command)
}

// ResponseCommand returns the command id a device replies with for request
func ResponseCommand(request uint16) uint16 {
	return request | ResponseFlag
}

// ErrorCommand returns the command id a device uses to reject request
func ErrorCommand(request uint16) uint16 {
	return request | ResponseFlag | ErrorFlag
}

// ResponseKey returns the correlation key for the reply to request
func ResponseKey(vendor, request uint16) CorrelationKey {
	return CorrelationKey{Vendor: vendor, Command: ResponseCommand(request)}
}
