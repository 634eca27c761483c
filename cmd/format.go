// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/gaiastat/pkg/headset"
)

var antiWindNames = []string{"off", "max", "auto"}
var crossfeedNames = []string{"low", "high", "off"}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func levelName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", v)
}

func formatAutoOff(minutes int) string {
	if minutes == 0 {
		return "disabled"
	}
	return fmt.Sprintf("%d min", minutes)
}

// settingLines renders s as ordered label/value pairs
func settingLines(s headset.Settings) [][2]string {
	battery := "unknown"
	if s.Battery > 0 {
		battery = fmt.Sprintf("%d%%", s.Battery)
	}
	return [][2]string{
		{"Name", s.Info.Name},
		{"Serial", s.Info.Serial},
		{"Firmware", s.Info.FirmwareVersion},
		{"Codec", s.Info.Codec},
		{"Battery", battery},
		{"Charging", s.Info.Charging.String()},
		{"ANC", onOff(s.ANCEnabled)},
		{"Anti-wind", levelName(antiWindNames, s.ANC.AntiWind)},
		{"Comfort", onOff(s.ANC.Comfort)},
		{"Adaptive", onOff(s.ANC.Adaptive)},
		{"Transparency", fmt.Sprintf("%d", s.Transparency)},
		{"Sidetone", fmt.Sprintf("%d", s.Sidetone)},
		{"EQ", s.EQ.String()},
		{"Bass boost", onOff(s.BassBoost)},
		{"Podcast mode", onOff(s.PodcastMode)},
		{"Crossfeed", levelName(crossfeedNames, s.Crossfeed)},
		{"Auto pause", onOff(s.AutoPause)},
		{"On-head detection", onOff(s.OnHeadDetection)},
		{"Smart pause", onOff(s.SmartPause)},
		{"Auto answer calls", onOff(s.AutoCall)},
		{"Comfort call", onOff(s.ComfortCall)},
		{"Auto power off", formatAutoOff(s.AutoPowerOffMinutes)},
		{"Max connections", fmt.Sprintf("%d", s.MaxBTConnections)},
	}
}

// formatSettings renders a snapshot as aligned text
func formatSettings(s headset.Settings) string {
	var b strings.Builder
	for _, kv := range settingLines(s) {
		fmt.Fprintf(&b, "%-18s %s\n", kv[0]+":", kv[1])
	}
	if len(s.PairedDevices) > 0 {
		b.WriteString("Paired devices:\n")
		for _, d := range s.PairedDevices {
			b.WriteString("  " + formatPairedDevice(d, s.OwnDeviceIndex) + "\n")
		}
	}
	return b.String()
}

func formatPairedDevice(d headset.PairedDevice, own int) string {
	line := fmt.Sprintf("[%d] %s", d.Index, d.Name)
	if d.Connected {
		line += " (connected)"
	}
	if d.Index == own {
		line += " (this host)"
	}
	return line
}

// settingChanges lists the labels whose values differ between a and b
func settingChanges(a, b headset.Settings) []string {
	before := settingLines(a)
	after := settingLines(b)
	var changes []string
	for i := range after {
		if before[i][1] != after[i][1] {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s", after[i][0], before[i][1], after[i][1]))
		}
	}
	if len(a.PairedDevices) != len(b.PairedDevices) {
		changes = append(changes, fmt.Sprintf("Paired devices: %d -> %d", len(a.PairedDevices), len(b.PairedDevices)))
	} else {
		for i := range b.PairedDevices {
			if a.PairedDevices[i] != b.PairedDevices[i] {
				changes = append(changes, "Paired device: "+formatPairedDevice(b.PairedDevices[i], b.OwnDeviceIndex))
			}
		}
	}
	return changes
}
