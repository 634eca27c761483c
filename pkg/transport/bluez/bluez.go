// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bluez implements link.Host on top of the BlueZ D-Bus API.
//
// BlueZ does not publish RFCOMM channel numbers over D-Bus. Service records
// built from Device1.UUIDs therefore carry ProfileChannel, and opening such a
// channel registers a client Profile1 for the class and lets BlueZ resolve the
// channel and hand over the socket. A fixed channel configured by the user is
// dialed directly with an RFCOMM socket.
package bluez

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ProfileChannel marks a record whose RFCOMM channel is resolved by BlueZ
// at connect time. Valid RFCOMM channels are 1-30.
const ProfileChannel uint8 = 0xFF

// ErrUnsupported is returned on platforms without BlueZ
var ErrUnsupported = errors.New("bluez: not supported on this platform")

// Options configures a Host
type Options struct {
	// Adapter restricts devices to one controller, e.g. "hci0". Empty means all.
	Adapter string
	// Channel, when non-zero, is dialed directly instead of going through
	// Profile1.
	Channel uint8
}

// ParseAddress converts "AA:BB:CC:DD:EE:FF" to the little-endian byte order
// the kernel uses for bdaddr_t
func ParseAddress(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return out, fmt.Errorf("invalid bluetooth address %q", s)
		}
		out[5-i] = byte(b)
	}
	return out, nil
}

// AddressFromPath extracts the address from a Device1 object path such as
// /org/bluez/hci0/dev_00_1B_66_AA_BB_CC
func AddressFromPath(path string) string {
	idx := strings.LastIndex(path, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(path[idx+5:], "_", ":")
}

// parseUUIDs converts Device1.UUIDs strings, skipping malformed entries
func parseUUIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}
