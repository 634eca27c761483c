// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// HandleNotification merges an unsolicited frame into the model. Frames from
// other vendors and unknown commands are ignored.
func (c *Controller) HandleNotification(f gaia.Frame) {
	if f.Vendor != gaia.VendorSennheiser {
		return
	}
	p := f.Payload
	c.log.Debug("notification", "command", gaia.CommandName(f.Vendor, f.Command), "len", len(p))

	switch f.Command {
	case gaia.RespANCMode, gaia.NotifANCMode:
		if anc, ok := parseANCMode(p); ok {
			c.update(func(s *Settings) { s.ANC = anc })
		}
	case gaia.RespANCStatus, gaia.NotifANCStatus:
		c.setBool(p, func(s *Settings, v bool) { s.ANCEnabled = v })
	case gaia.RespTransparency, gaia.NotifTransparency:
		c.setLevel(p, func(s *Settings, v int) { s.Transparency = v })
	case gaia.RespBattery:
		c.setLevel(p, func(s *Settings, v int) { s.Battery = v })
	case gaia.RespSidetone, gaia.NotifSidetone:
		c.setLevel(p, func(s *Settings, v int) { s.Sidetone = v })
	case gaia.RespPodcast, gaia.NotifPodcast:
		if len(p) >= 2 {
			c.update(func(s *Settings) { s.PodcastMode = p[1] == 0x02 })
		}
	case gaia.NotifCodec, gaia.RespCodec:
		if len(p) >= 1 {
			name, ok := gaia.CodecName(p[0])
			if !ok {
				name = "Unknown"
			}
			c.update(func(s *Settings) { s.Info.Codec = name })
		}
	case gaia.NotifCharging:
		if len(p) >= 1 {
			c.update(func(s *Settings) { s.Info.Charging = chargingFromByte(p[0]) })
		}
	case gaia.NotifEQ:
		if len(p) >= gaia.EQBands {
			var gains [gaia.EQBands]int8
			for i := range gains {
				gains[i] = int8(p[i])
			}
			c.scheduleEQNotify(gains)
		}
	case gaia.RespEQBand:
		// acknowledgement of our own band write
	case gaia.RespBassBoostSet, gaia.RespBassBoostGet, gaia.NotifBassBoostAlt, gaia.NotifBassBoost:
		c.setBool(p, func(s *Settings, v bool) { s.BassBoost = v })
	case gaia.NotifSmartPause:
		c.setBool(p, func(s *Settings, v bool) { s.SmartPause = v })
	case gaia.NotifComfortCall:
		c.setBool(p, func(s *Settings, v bool) { s.ComfortCall = v })
	case gaia.NotifConnection:
		if len(p) >= 2 {
			c.connectionChanged(int(p[0]), p[1] == 0x01)
		}
	case gaia.RespCrossfeed, gaia.NotifCrossfeed:
		c.setLevel(p, func(s *Settings, v int) { s.Crossfeed = v })
	}
}

func (c *Controller) setBool(p []byte, apply func(s *Settings, v bool)) {
	if len(p) < 1 {
		return
	}
	c.update(func(s *Settings) { apply(s, p[0] == 0x01) })
}

func (c *Controller) setLevel(p []byte, apply func(s *Settings, v int)) {
	if len(p) < 1 {
		return
	}
	c.update(func(s *Settings) { apply(s, int(p[0])) })
}

// parseANCMode decodes [mode1, state1, mode2, state2, mode3, state3]
func parseANCMode(p []byte) (ANCState, bool) {
	if len(p) < 6 {
		return ANCState{}, false
	}
	return ANCState{
		AntiWind: int(p[1]),
		Comfort:  p[3] == 0x01,
		Adaptive: p[5] == 0x01,
	}, true
}

// scheduleEQNotify applies an EQ notification after EQNotifyDelay unless a
// newer one arrives first or the EQ lock is engaged in the meantime.
func (c *Controller) scheduleEQNotify(gains [gaia.EQBands]int8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eqLockedLocked() {
		c.log.Debug("EQ notification ignored while locked")
		return
	}

	c.cancelEQNotifyLocked()
	gen := c.eqGen
	c.eqTimer = time.AfterFunc(c.cfg.EQNotifyDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.eqGen || c.eqLockedLocked() {
			return
		}
		c.eqTimer = nil
		c.settings.EQ = MatchPreset(gains)
		c.publishLocked()
	})
}
