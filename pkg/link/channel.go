// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "github.com/google/uuid"

// bluetoothBase is the Bluetooth Base UUID 00000000-0000-1000-8000-00805F9B34FB
var bluetoothBase = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// BluetoothUUID expands a 16 bit SIG assigned number on the Base UUID
func BluetoothUUID(short uint16) uuid.UUID {
	u := bluetoothBase
	u[2] = byte(short >> 8)
	u[3] = byte(short)
	return u
}

// Service class ids
var (
	ClassGAIA         = uuid.MustParse("00001107-D102-11E1-9B23-00025B00A5A5")
	ClassGAIAShort    = BluetoothUUID(0x1107)
	ClassHDB630       = uuid.MustParse("A2129FF3-081B-4C45-8AFE-469D9C4842EC")
	ClassHFP          = BluetoothUUID(0x111E)
	ClassGenericAudio = BluetoothUUID(0x1203)
	ClassAirohaRACE   = uuid.MustParse("00000000-DECA-FADE-DECA-DEAFDECACAFF")
	ClassSerialPort   = BluetoothUUID(0x1101)
)

var gaiaClasses = []uuid.UUID{ClassGAIA, ClassGAIAShort, ClassHDB630}

var excludedClasses = []uuid.UUID{ClassHFP, ClassGenericAudio, ClassAirohaRACE}

// Channel is the RFCOMM channel chosen for GAIA traffic
type Channel struct {
	ID    uint8
	Class uuid.UUID // service class the channel was selected by
	Exact bool      // Class is a known GAIA id, not a heuristic candidate
}

// FindChannel picks the GAIA channel from a device's SDP records.
//
// The first record declaring a known GAIA class wins. Failing that, the last
// class that is neither GAIA nor a known non-GAIA service is used as a
// candidate, since vendors register GAIA under undocumented ids. Records
// without an RFCOMM channel are skipped.
func FindChannel(records []ServiceRecord) (Channel, bool) {
	var candidate Channel
	found := false

	for _, rec := range records {
		if rec.Channel == 0 {
			continue
		}
		for _, class := range rec.Classes {
			if contains(gaiaClasses, class) {
				return Channel{ID: rec.Channel, Class: class, Exact: true}, true
			}
			if !contains(excludedClasses, class) {
				candidate = Channel{ID: rec.Channel, Class: class}
				found = true
			}
		}
	}

	return candidate, found
}

func contains(set []uuid.UUID, u uuid.UUID) bool {
	for _, s := range set {
		if s == u {
			return true
		}
	}
	return false
}
