// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "fmt"

// Phase is the connection state machine position
type Phase int

const (
	Disconnected Phase = iota
	Scanning
	Connecting
	Connected
	Failed // terminal until the next Scan or Connect
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "DISCONNECTED"
	case Scanning:
		return "SCANNING"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Failed:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(p))
	}
}

// State is a snapshot of the connection state machine
type State struct {
	Phase   Phase
	Device  Device
	Channel Channel
	Reason  string // human readable, set in Failed and on link loss
	Err     error
}

func (s State) String() string {
	switch s.Phase {
	case Failed:
		return fmt.Sprintf("%s: %s", s.Phase, s.Reason)
	case Connecting, Connected:
		return fmt.Sprintf("%s %s", s.Phase, s.Device)
	default:
		return s.Phase.String()
	}
}
