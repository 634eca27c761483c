// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// ChargingStatus as reported by NOTIF_CHARGING and GET_CHARGING_STATUS
type ChargingStatus int

const (
	ChargingDisconnected ChargingStatus = iota
	ChargingActive
	ChargingComplete
)

func (c ChargingStatus) String() string {
	switch c {
	case ChargingActive:
		return "Charging"
	case ChargingComplete:
		return "Charged"
	default:
		return ""
	}
}

func chargingFromByte(b byte) ChargingStatus {
	if b > byte(ChargingComplete) {
		return ChargingDisconnected
	}
	return ChargingStatus(b)
}

// Anti-wind levels
const (
	AntiWindOff  = 0
	AntiWindMax  = 1
	AntiWindAuto = 2
)

// Crossfeed levels
const (
	CrossfeedLow  = 0
	CrossfeedHigh = 1
	CrossfeedOff  = 2
)

// ANCState holds the ANC sub-modes
type ANCState struct {
	AntiWind int // AntiWindOff, AntiWindMax or AntiWindAuto
	Comfort  bool
	Adaptive bool
}

// DeviceInfo holds read-only identification fields
type DeviceInfo struct {
	Name            string
	Serial          string
	FirmwareVersion string
	Codec           string
	Charging        ChargingStatus
}

// PairedDevice is one slot of the headset's pairing list
type PairedDevice struct {
	Index     int
	Name      string
	Priority  int
	Connected bool
}

// EQPreset is a built-in EQ curve or Custom
type EQPreset int

const (
	EQNeutral EQPreset = iota
	EQRock
	EQPop
	EQDance
	EQHipHop
	EQClassical
	EQMovie
	EQJazz
	EQCustom
)

// BuiltInPresets lists the presets with fixed gains, in display order
var BuiltInPresets = []EQPreset{EQNeutral, EQRock, EQPop, EQDance, EQHipHop, EQClassical, EQMovie, EQJazz}

var presetNames = map[EQPreset]string{
	EQNeutral:   "Neutral",
	EQRock:      "Rock",
	EQPop:       "Pop",
	EQDance:     "Dance",
	EQHipHop:    "Hip-Hop",
	EQClassical: "Classical",
	EQMovie:     "Movie",
	EQJazz:      "Jazz",
	EQCustom:    "Custom",
}

// Gains in dB x 10. Bands: 50Hz, 250Hz, 800Hz, 3kHz, 8kHz
var presetGains = map[EQPreset][gaia.EQBands]int8{
	EQNeutral:   {0, 0, 0, 0, 0},
	EQRock:      {0, 20, 25, 15, -20},
	EQPop:       {0, -25, 0, 25, 0},
	EQDance:     {35, 20, -15, 15, 30},
	EQHipHop:    {30, 15, -15, 0, -15},
	EQClassical: {-20, -15, 0, 35, 40},
	EQMovie:     {0, 0, 20, 20, -20},
	EQJazz:      {-32, 0, 22, 22, 0},
}

func (p EQPreset) String() string {
	if name, ok := presetNames[p]; ok {
		return name
	}
	return fmt.Sprintf("EQPreset(%d)", int(p))
}

// Gains returns the band gains of a built-in preset. Custom has none.
func (p EQPreset) Gains() ([gaia.EQBands]int8, bool) {
	g, ok := presetGains[p]
	return g, ok
}

// MatchPreset returns the built-in preset with exactly these gains, or Custom
func MatchPreset(gains [gaia.EQBands]int8) EQPreset {
	for _, p := range BuiltInPresets {
		if presetGains[p] == gains {
			return p
		}
	}
	return EQCustom
}

// ParsePreset looks up a preset by name, ignoring case, spaces and dashes
func ParsePreset(name string) (EQPreset, error) {
	normalize := func(s string) string {
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "-", "")
		return strings.ReplaceAll(s, " ", "")
	}
	want := normalize(name)
	for p, n := range presetNames {
		if normalize(n) == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown EQ preset %q", name)
}

// Settings is the reconciled model of one headset
type Settings struct {
	Info                DeviceInfo
	Battery             int
	ANCEnabled          bool
	ANC                 ANCState
	Transparency        int // 0-100
	Sidetone            int // 0-4
	AutoPause           bool
	OnHeadDetection     bool
	SmartPause          bool
	AutoCall            bool
	ComfortCall         bool
	AutoPowerOffMinutes int // 0 = disabled
	EQ                  EQPreset
	BassBoost           bool
	PodcastMode         bool
	Crossfeed           int
	PairedDevices       []PairedDevice
	MaxBTConnections    int
	OwnDeviceIndex      int // -1 = unknown
}

// DefaultSettings returns the model of a headset nothing has been read from
func DefaultSettings() Settings {
	return Settings{
		OnHeadDetection:  true,
		EQ:               EQNeutral,
		Crossfeed:        CrossfeedOff,
		MaxBTConnections: 1,
		OwnDeviceIndex:   -1,
	}
}

// Clone returns a deep copy
func (s Settings) Clone() Settings {
	s.PairedDevices = slices.Clone(s.PairedDevices)
	return s
}
