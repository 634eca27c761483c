// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import "encoding/binary"

// Command builder functions create Frames ready for sending.
// These are convenience wrappers around NewFrame that pin the payload
// layout each Sennheiser setter expects.

// ANC mode selectors for NewSetANCMode
const (
	ANCModeAntiWind uint8 = 0x01 // value 0=off, 1=on, 2=auto
	ANCModeComfort  uint8 = 0x02
	ANCModeAdaptive uint8 = 0x03
)

// NewRegisterNotification creates a REGISTER_NOTIFICATION frame for feature.
func NewRegisterNotification(vendor uint16, feature uint8) Frame {
	return NewFrame(vendor, CmdRegisterNotification, []byte{feature})
}

// NewRead creates a Sennheiser read request with no parameters.
func NewRead(command uint16) Frame {
	return NewFrame(VendorSennheiser, command, nil)
}

// NewGetSerial creates a Qualcomm GET_SERIAL frame.
// The device replies with the serial number as UTF-8.
func NewGetSerial() Frame {
	return NewFrame(VendorQualcomm, CmdGetSerial, nil)
}

// NewSetBool creates a Sennheiser setter carrying a single on/off byte.
// Used for ANC status, auto pause, on-head detection, smart pause, auto
// call, comfort call and bass boost.
func NewSetBool(command uint16, enabled bool) Frame {
	return NewFrame(VendorSennheiser, command, []byte{boolByte(enabled)})
}

// NewSetLevel creates a Sennheiser setter carrying a single level byte.
// Used for transparency, sidetone and crossfeed.
func NewSetLevel(command uint16, level uint8) Frame {
	return NewFrame(VendorSennheiser, command, []byte{level})
}

// NewSetANCMode creates a SET_ANC_MODE frame for one ANC sub-mode.
func NewSetANCMode(mode, value uint8) Frame {
	return NewFrame(VendorSennheiser, CmdSetANCMode, []byte{mode, value})
}

// NewSetPodcastMode creates a SET_PODCAST_MODE frame.
// The device encodes on as 0x02 and off as 0x01.
func NewSetPodcastMode(enabled bool) Frame {
	state := byte(0x01)
	if enabled {
		state = 0x02
	}
	return NewFrame(VendorSennheiser, CmdSetPodcastMode, []byte{0x00, state})
}

// NewGetTimer creates a GET_TIMER frame. Timer 0 is auto power off.
func NewGetTimer(timer uint8) Frame {
	return NewFrame(VendorSennheiser, CmdGetTimer, []byte{timer})
}

// NewSetTimer creates a SET_TIMER frame with a duration in seconds.
func NewSetTimer(timer uint8, seconds uint16) Frame {
	payload := []byte{timer, 0, 0}
	binary.BigEndian.PutUint16(payload[1:3], seconds)
	return NewFrame(VendorSennheiser, CmdSetTimer, payload)
}

// NewGetEQBand creates a GET_EQ frame for one band (0-4).
func NewGetEQBand(band uint8) Frame {
	return NewFrame(VendorSennheiser, CmdGetEQ, []byte{band})
}

// NewSetEQBand creates a SET_EQ_BAND frame. Gain is in tenths of a dB.
func NewSetEQBand(band uint8, gain int8) Frame {
	return NewFrame(VendorSennheiser, CmdSetEQBand, []byte{band, byte(gain)})
}

// NewGetDeviceInfo creates a GET_DEVICE_INFO frame for a paired device slot.
func NewGetDeviceInfo(index uint8) Frame {
	return NewFrame(VendorSennheiser, CmdGetDeviceInfo, []byte{index})
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
