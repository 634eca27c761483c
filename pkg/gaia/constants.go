// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gaia implements the GAIA v3 framing used by Qualcomm based
// headsets over an RFCOMM serial channel.
//
// A frame is an 8 byte header followed by the parameter bytes:
//
//	FF 03 <param size u16 BE> <vendor u16 BE> <command u16 BE> <payload...>
//
// This package provides frame encoding/decoding, stream reassembly,
// payload formatting, validation and capture files.
package gaia

// Protocol framing bytes
const (
	SyncByte    = 0xFF
	VersionByte = 0x03
)

// Frame size limits
const (
	HeaderSize     = 8
	MaxPayloadSize = 0xFFFF
)

// Command id flags
const (
	ResponseFlag = 0x0100
	ErrorFlag    = 0x0080
)

// Vendor ids
const (
	VendorQualcomm   uint16 = 0x001D
	VendorSennheiser uint16 = 0x0495
)

// Notification registration (vendor specific, payload=[featureID])
const CmdRegisterNotification uint16 = 0x0007

// Feature ids used for notification registration
const (
	FeatureCore               uint8 = 0
	FeatureDevice             uint8 = 2
	FeatureBattery            uint8 = 3
	FeatureGenericAudio       uint8 = 4 // codec, sidetone, smart pause, comfort call
	FeatureUserEQ             uint8 = 8 // EQ, bass boost
	FeatureVersions           uint8 = 9
	FeatureDeviceManagement   uint8 = 10 // paired devices, connections
	FeatureMMI                uint8 = 11
	FeatureTransparentHearing uint8 = 12
	FeatureANC                uint8 = 13
)

// SennheiserFeatures are the feature ids a HDB 630 accepts registrations for.
var SennheiserFeatures = []uint8{
	FeatureCore,
	FeatureDevice,
	FeatureBattery,
	FeatureGenericAudio,
	FeatureUserEQ,
	FeatureVersions,
	FeatureDeviceManagement,
	FeatureMMI,
	FeatureTransparentHearing,
	FeatureANC,
}

// Qualcomm requests
const (
	CmdGetSerial     uint16 = 0x0003
	CmdGetAPIVersion uint16 = 0x0040
)

// Sennheiser requests
const (
	CmdSetOnHeadDetection uint16 = 0x0400
	CmdGetOnHeadDetection uint16 = 0x0401

	CmdSetTimer          uint16 = 0x0600 // [timerID, seconds u16 BE], timer 0 = auto power off
	CmdGetTimer          uint16 = 0x0601 // [timerID] -> [timerID, seconds u16 BE]
	CmdGetChargingStatus uint16 = 0x0602
	CmdGetBattery        uint16 = 0x0603

	CmdGetCodec         uint16 = 0x0800
	CmdSetPodcastMode   uint16 = 0x0803 // [0x00, 0x02=on | 0x01=off]
	CmdGetPodcastMode   uint16 = 0x0804
	CmdSetSidetone      uint16 = 0x0805 // [level 0-4]
	CmdGetSidetone      uint16 = 0x0806
	CmdGetVoiceLanguage uint16 = 0x0807
	CmdSetAutoCall      uint16 = 0x080A
	CmdGetAutoCall      uint16 = 0x080B
	CmdSetSmartPause    uint16 = 0x080C
	CmdGetSmartPause    uint16 = 0x080D
	CmdSetComfortCall   uint16 = 0x0814
	CmdGetComfortCall   uint16 = 0x0815

	CmdSetEQBand    uint16 = 0x1001 // [band 0-4, gain int8 dB*10]
	CmdGetEQ        uint16 = 0x1002 // [band 0-4] -> [gain int8]
	CmdSetBassBoost uint16 = 0x1008
	CmdGetBassBoost uint16 = 0x1009

	CmdGetFirmwareVersion uint16 = 0x1202

	CmdGetPairedDeviceListSize uint16 = 0x1400 // -> count u16 BE
	CmdGetDeviceInfo           uint16 = 0x1401 // [index] -> [index, priority, status, name...]
	CmdGetConnectionStatus     uint16 = 0x1404 // [index] -> [index, status]
	CmdGetOwnDeviceIndex       uint16 = 0x1407
	CmdGetMaxBTConnections     uint16 = 0x1409

	CmdSetAutoPause uint16 = 0x1800 // [0=keep playing, 1=stop music]
	CmdGetAutoPause uint16 = 0x1801

	CmdSetANCMode      uint16 = 0x1A00 // [mode, state]
	CmdGetANCMode      uint16 = 0x1A01
	CmdSetTransparency uint16 = 0x1A02
	CmdGetTransparency uint16 = 0x1A03
	CmdSetANCStatus    uint16 = 0x1A04
	CmdGetANCStatus    uint16 = 0x1A05

	CmdSetCrossfeed uint16 = 0x2E00 // [0=low, 1=high, 2=off]
	CmdGetCrossfeed uint16 = 0x2E01
)

// Sennheiser responses and notifications (device to host)
const (
	NotifCharging     uint16 = 0x0682
	RespBattery       uint16 = 0x0703
	NotifCodec        uint16 = 0x0880
	NotifPodcast      uint16 = 0x0884
	NotifSidetone     uint16 = 0x0886
	NotifSmartPause   uint16 = 0x088D
	NotifComfortCall  uint16 = 0x0895
	RespCodec         uint16 = 0x0900
	RespPodcast       uint16 = 0x0903
	RespSidetone      uint16 = 0x0906
	NotifEQ           uint16 = 0x1082
	NotifBassBoostAlt uint16 = 0x1088
	NotifBassBoost    uint16 = 0x1089
	RespEQBand        uint16 = 0x1101
	RespEQ            uint16 = 0x1102
	RespBassBoostSet  uint16 = 0x1108
	RespBassBoostGet  uint16 = 0x1109
	NotifConnection   uint16 = 0x1484
	NotifANCMode      uint16 = 0x1A81
	NotifTransparency uint16 = 0x1A83
	NotifANCStatus    uint16 = 0x1A85
	RespANCMode       uint16 = 0x1B01
	RespTransparency  uint16 = 0x1B03
	RespANCStatus     uint16 = 0x1B05
	NotifCrossfeed    uint16 = 0x2E81
	RespCrossfeed     uint16 = 0x2F01
)

// EQ layout. Bands are 50Hz, 250Hz, 800Hz, 3kHz, 8kHz.
const (
	EQBands      = 5
	EmptySlot    = 0xFF // paired device index of an empty slot
	TimerAutoOff = 0x00
)

// codecNames maps the codec byte reported by the device to a display name
var codecNames = map[uint8]string{
	0:   "SBC",
	1:   "AAC",
	2:   "aptX",
	3:   "aptX LL",
	5:   "aptX HD",
	8:   "aptX Adaptive",
	9:   "aptX Lossless",
	10:  "LC3",
	255: "",
}

// CodecName returns the display name for a codec byte
func CodecName(codec uint8) (string, bool) {
	name, ok := codecNames[codec]
	return name, ok
}
