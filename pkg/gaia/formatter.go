// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

var qualcommNames = map[uint16]string{
	CmdRegisterNotification: "REGISTER_NOTIFICATION",
	CmdGetSerial:            "GET_SERIAL",
	CmdGetAPIVersion:        "GET_API_VERSION",
}

var sennheiserNames = map[uint16]string{
	CmdRegisterNotification:    "REGISTER_NOTIFICATION",
	CmdSetOnHeadDetection:      "SET_ON_HEAD_DETECTION",
	CmdGetOnHeadDetection:      "GET_ON_HEAD_DETECTION",
	CmdSetTimer:                "SET_TIMER",
	CmdGetTimer:                "GET_TIMER",
	CmdGetChargingStatus:       "GET_CHARGING_STATUS",
	CmdGetBattery:              "GET_BATTERY",
	CmdGetCodec:                "GET_CODEC",
	CmdSetPodcastMode:          "SET_PODCAST_MODE",
	CmdGetPodcastMode:          "GET_PODCAST_MODE",
	CmdSetSidetone:             "SET_SIDETONE",
	CmdGetSidetone:             "GET_SIDETONE",
	CmdGetVoiceLanguage:        "GET_VOICE_LANGUAGE",
	CmdSetAutoCall:             "SET_AUTO_CALL",
	CmdGetAutoCall:             "GET_AUTO_CALL",
	CmdSetSmartPause:           "SET_SMART_PAUSE",
	CmdGetSmartPause:           "GET_SMART_PAUSE",
	CmdSetComfortCall:          "SET_COMFORT_CALL",
	CmdGetComfortCall:          "GET_COMFORT_CALL",
	CmdSetEQBand:               "SET_EQ_BAND",
	CmdGetEQ:                   "GET_EQ",
	CmdSetBassBoost:            "SET_BASS_BOOST",
	CmdGetBassBoost:            "GET_BASS_BOOST",
	CmdGetFirmwareVersion:      "GET_FIRMWARE_VERSION",
	CmdGetPairedDeviceListSize: "GET_PAIRED_DEVICE_LIST_SIZE",
	CmdGetDeviceInfo:           "GET_DEVICE_INFO",
	CmdGetConnectionStatus:     "GET_CONNECTION_STATUS",
	CmdGetOwnDeviceIndex:       "GET_OWN_DEVICE_INDEX",
	CmdGetMaxBTConnections:     "GET_MAX_BT_CONNECTIONS",
	CmdSetAutoPause:            "SET_AUTO_PAUSE",
	CmdGetAutoPause:            "GET_AUTO_PAUSE",
	CmdSetANCMode:              "SET_ANC_MODE",
	CmdGetANCMode:              "GET_ANC_MODE",
	CmdSetTransparency:         "SET_TRANSPARENCY",
	CmdGetTransparency:         "GET_TRANSPARENCY",
	CmdSetANCStatus:            "SET_ANC_STATUS",
	CmdGetANCStatus:            "GET_ANC_STATUS",
	CmdSetCrossfeed:            "SET_CROSSFEED",
	CmdGetCrossfeed:            "GET_CROSSFEED",

	NotifCharging:     "NOTIF_CHARGING",
	NotifCodec:        "NOTIF_CODEC",
	NotifPodcast:      "NOTIF_PODCAST",
	NotifSidetone:     "NOTIF_SIDETONE",
	NotifSmartPause:   "NOTIF_SMART_PAUSE",
	NotifComfortCall:  "NOTIF_COMFORT_CALL",
	NotifEQ:           "NOTIF_EQ",
	NotifBassBoostAlt: "NOTIF_BASS_BOOST",
	NotifBassBoost:    "NOTIF_BASS_BOOST",
	NotifConnection:   "NOTIF_CONNECTION",
	NotifANCMode:      "NOTIF_ANC_MODE",
	NotifTransparency: "NOTIF_TRANSPARENCY",
	NotifANCStatus:    "NOTIF_ANC_STATUS",
	NotifCrossfeed:    "NOTIF_CROSSFEED",
}

// FormatVendor returns the human-readable name for a vendor id
func FormatVendor(vendor uint16) string {
	switch vendor {
	case VendorQualcomm:
		return "QUALCOMM"
	case VendorSennheiser:
		return "SENNHEISER"
	default:
		return fmt.Sprintf("VENDOR_%04X", vendor)
	}
}

// CommandName returns the human-readable name for a command id.
// Responses and error responses are named after their request.
func CommandName(vendor, command uint16) string {
	names := sennheiserNames
	if vendor == VendorQualcomm {
		names = qualcommNames
	} else if vendor != VendorSennheiser {
		return "UNKNOWN"
	}

	if name, ok := names[command]; ok {
		return name
	}
	if command&ResponseFlag != 0 {
		request := command &^ (ResponseFlag | ErrorFlag)
		if name, ok := names[request]; ok {
			if command&ErrorFlag != 0 {
				return name + "_ERROR"
			}
			return name + "_RESPONSE"
		}
	}
	return "UNKNOWN"
}

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f Frame, at time.Time) string {
	timestamp := at.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%04X) %s len=%d\n",
		timestamp, CommandName(f.Vendor, f.Command), f.Command, FormatVendor(f.Vendor), len(f.Payload))
	return result + FormatPayload(f)
}

// FormatPayload decodes the payload of well-known frames, falling back to a hex dump
func FormatPayload(f Frame) string {
	p := f.Payload
	if len(p) == 0 {
		return "  (no payload)\n"
	}
	if f.Vendor != VendorSennheiser || f.IsError() && f.Command&ResponseFlag != 0 {
		return hexDump(p)
	}

	switch f.Command {
	case RespBattery:
		return fmt.Sprintf("  Battery: %d%%\n", p[0])

	case NotifCharging:
		return fmt.Sprintf("  Charging: %s (%d)\n", formatCharging(p[0]), p[0])

	case NotifCodec, RespCodec:
		name, ok := CodecName(p[0])
		if !ok {
			name = "Unknown"
		}
		return fmt.Sprintf("  Codec: %s (%d)\n", name, p[0])

	case NotifSidetone, RespSidetone:
		return fmt.Sprintf("  Sidetone: %d\n", p[0])

	case NotifTransparency, RespTransparency:
		return fmt.Sprintf("  Transparency: %d\n", p[0])

	case NotifANCStatus, RespANCStatus:
		return fmt.Sprintf("  ANC: %s\n", onOff(p[0] == 0x01))

	case NotifANCMode, RespANCMode:
		if len(p) >= 6 {
			return fmt.Sprintf("  Anti-wind: %d, Comfort: %s, Adaptive: %s\n",
				p[1], onOff(p[3] == 1), onOff(p[5] == 1))
		}

	case NotifPodcast, RespPodcast:
		if len(p) >= 2 {
			return fmt.Sprintf("  Podcast mode: %s\n", onOff(p[1] == 0x02))
		}

	case NotifEQ:
		if len(p) >= EQBands {
			gains := make([]string, EQBands)
			for i := range gains {
				gains[i] = fmt.Sprintf("%+.1f", float64(int8(p[i]))/10)
			}
			return fmt.Sprintf("  EQ gains (dB): %s\n", strings.Join(gains, " "))
		}

	case RespEQ:
		return fmt.Sprintf("  EQ gain: %+.1f dB\n", float64(int8(p[0]))/10)

	case NotifBassBoost, NotifBassBoostAlt, RespBassBoostGet, RespBassBoostSet:
		return fmt.Sprintf("  Bass boost: %s\n", onOff(p[0] == 0x01))

	case NotifSmartPause:
		return fmt.Sprintf("  Smart pause: %s\n", onOff(p[0] == 0x01))

	case NotifComfortCall:
		return fmt.Sprintf("  Comfort call: %s\n", onOff(p[0] == 0x01))

	case NotifCrossfeed, RespCrossfeed:
		return fmt.Sprintf("  Crossfeed: %s (%d)\n", formatCrossfeed(p[0]), p[0])

	case NotifConnection:
		if len(p) >= 2 {
			return fmt.Sprintf("  Device %d: %s\n", p[0], connectedString(p[1] == 1))
		}

	case ResponseCommand(CmdGetPairedDeviceListSize):
		if len(p) >= 2 {
			return fmt.Sprintf("  Paired devices: %d\n", binary.BigEndian.Uint16(p[0:2]))
		}

	case ResponseCommand(CmdGetDeviceInfo):
		if len(p) >= 3 {
			if p[0] == EmptySlot {
				return "  (empty slot)\n"
			}
			name := strings.ReplaceAll(string(p[3:]), "\x00", "")
			return fmt.Sprintf("  Device %d: %q priority=%d %s\n", p[0], name, p[1], connectedString(p[2] == 1))
		}

	case ResponseCommand(CmdGetTimer):
		if len(p) >= 3 {
			return fmt.Sprintf("  Timer %d: %d s\n", p[0], binary.BigEndian.Uint16(p[1:3]))
		}

	case ResponseCommand(CmdGetFirmwareVersion):
		if len(p) >= 3 {
			return fmt.Sprintf("  Firmware: %d.%d.%d\n", p[0], p[1], p[2])
		}
	}

	return hexDump(p)
}

func hexDump(payload []byte) string {
	var b strings.Builder
	b.WriteString("  Payload: ")
	for i, v := range payload {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	b.WriteString("\n")
	return b.String()
}

// HexString formats bytes as space separated hex, used for TX/RX debug logs
func HexString(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

func formatCharging(status uint8) string {
	switch status {
	case 0:
		return "DISCONNECTED"
	case 1:
		return "CHARGING"
	case 2:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

func formatCrossfeed(level uint8) string {
	switch level {
	case 0:
		return "LOW"
	case 1:
		return "HIGH"
	case 2:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

func onOff(on bool) string {
	if on {
		return "On"
	}
	return "Off"
}

func connectedString(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}
