// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// Link errors
var (
	ErrNotConnected      = errors.New("link: not connected")
	ErrTimeout           = errors.New("link: command timed out")
	ErrChannelNotFound   = errors.New("link: GAIA service not found")
	ErrDeviceUnreachable = errors.New("link: device not reachable")
	ErrConnectTimeout    = errors.New("link: connection timed out")
	ErrBusy              = errors.New("link: connection attempt in progress")
	ErrClosed            = errors.New("link: manager closed")
)

// WriteError is returned when the transport rejects an outbound frame
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("link: write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CommandError is returned when the device answers with an error response.
// Command is the command id as received, with the error bit set.
type CommandError struct {
	Vendor  uint16
	Command uint16
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("link: device error for command 0x%04X (%s)", e.Command, gaia.CommandName(e.Vendor, e.Command))
}

// OpenError is returned when the transport fails to open the channel
type OpenError struct {
	Channel uint8
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("link: failed to open RFCOMM channel %d: %v", e.Channel, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
