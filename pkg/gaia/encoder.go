// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload does not fit the 16 bit size field
var ErrPayloadTooLarge = errors.New("gaia: payload too large")

// Encode creates a complete wire-formatted GAIA frame.
func Encode(vendor, command uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, HeaderSize, HeaderSize+len(payload))
	frame[0] = SyncByte
	frame[1] = VersionByte
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	binary.BigEndian.PutUint16(frame[4:6], vendor)
	binary.BigEndian.PutUint16(frame[6:8], command)

	return append(frame, payload...), nil
}

// EncodeFrame encodes an existing Frame back to wire format.
func EncodeFrame(f Frame) ([]byte, error) {
	return Encode(f.Vendor, f.Command, f.Payload)
}

// MustEncode encodes a frame and panics on error (use Encode for error handling).
func MustEncode(vendor, command uint16, payload []byte) []byte {
	data, err := Encode(vendor, command, payload)
	if err != nil {
		panic(fmt.Sprintf("gaia: encode error: %v", err))
	}
	return data
}
