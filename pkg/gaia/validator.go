// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidValue
	AnomalyErrorResponse
	AnomalyUnknownVendor
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "LENGTH_MISMATCH"
	case AnomalyInvalidValue:
		return "INVALID_VALUE"
	case AnomalyErrorResponse:
		return "ERROR_RESPONSE"
	case AnomalyUnknownVendor:
		return "UNKNOWN_VENDOR"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// minPayload is the shortest payload a known frame must carry
var minPayload = map[uint16]int{
	RespBattery:       1,
	NotifCharging:     1,
	NotifCodec:        1,
	RespCodec:         1,
	NotifPodcast:      2,
	RespPodcast:       2,
	NotifSidetone:     1,
	RespSidetone:      1,
	NotifSmartPause:   1,
	NotifComfortCall:  1,
	NotifEQ:           EQBands,
	RespEQ:            1,
	NotifBassBoost:    1,
	NotifBassBoostAlt: 1,
	RespBassBoostSet:  1,
	RespBassBoostGet:  1,
	NotifConnection:   2,
	NotifANCMode:      6,
	RespANCMode:       6,
	NotifTransparency: 1,
	RespTransparency:  1,
	NotifANCStatus:    1,
	RespANCStatus:     1,
	NotifCrossfeed:    1,
	RespCrossfeed:     1,

	ResponseCommand(CmdGetPairedDeviceListSize): 2,
	ResponseCommand(CmdGetDeviceInfo):           3,
	ResponseCommand(CmdGetTimer):                3,
	ResponseCommand(CmdGetFirmwareVersion):      3,
}

// ValidateFrame checks a frame for structural anomalies.
// Returns a slice of validation errors (empty if the frame is valid).
func ValidateFrame(f Frame) []ValidationError {
	errors := []ValidationError{}

	if f.Vendor != VendorSennheiser && f.Vendor != VendorQualcomm {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownVendor,
			Message: fmt.Sprintf("Unknown vendor 0x%04X", f.Vendor),
			Details: map[string]interface{}{"vendor": f.Vendor},
		})
	}

	if f.IsError() && f.Command&ResponseFlag != 0 {
		return append(errors, ValidationError{
			Type:    AnomalyErrorResponse,
			Message: fmt.Sprintf("%s rejected by device", CommandName(f.Vendor, f.Command)),
			Details: map[string]interface{}{"command": f.Command},
		})
	}

	if f.Vendor != VendorSennheiser {
		return errors
	}

	if want, ok := minPayload[f.Command]; ok && len(f.Payload) < want {
		return append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload too short (expected at least %d bytes)", CommandName(f.Vendor, f.Command), want),
			Details: map[string]interface{}{"length": len(f.Payload), "minimum": want},
		})
	}

	switch f.Command {
	case RespBattery:
		if f.Payload[0] > 100 {
			errors = append(errors, invalidValue("battery", int(f.Payload[0]), 0, 100))
		}
	case NotifSidetone, RespSidetone:
		if f.Payload[0] > 4 {
			errors = append(errors, invalidValue("sidetone", int(f.Payload[0]), 0, 4))
		}
	case NotifCrossfeed, RespCrossfeed:
		if f.Payload[0] > 2 {
			errors = append(errors, invalidValue("crossfeed", int(f.Payload[0]), 0, 2))
		}
	case NotifCharging:
		if f.Payload[0] > 2 {
			errors = append(errors, invalidValue("charging status", int(f.Payload[0]), 0, 2))
		}
	case NotifANCMode, RespANCMode:
		if f.Payload[1] > 2 {
			errors = append(errors, invalidValue("anti-wind", int(f.Payload[1]), 0, 2))
		}
	case NotifEQ:
		for i := 0; i < EQBands; i++ {
			gain := int(int8(f.Payload[i]))
			if gain < -60 || gain > 60 {
				errors = append(errors, invalidValue(fmt.Sprintf("eq band %d", i), gain, -60, 60))
			}
		}
	}

	return errors
}

func invalidValue(name string, value, min, max int) ValidationError {
	return ValidationError{
		Type:    AnomalyInvalidValue,
		Message: fmt.Sprintf("Invalid %s value=%d (valid %d-%d)", name, value, min, max),
		Details: map[string]interface{}{"value": value, "min": min, "max": max},
	}
}
