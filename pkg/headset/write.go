// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// Setting limits
const (
	MaxTransparency        = 100
	MaxSidetone            = 4
	MaxAutoPowerOffMinutes = 0xFFFF / 60
)

// Direct writes update the model first, then send the command. A failed
// write is logged and returned but the optimistic value stays.

func (c *Controller) write(ctx context.Context, f gaia.Frame, apply func(s *Settings)) error {
	c.update(apply)
	_, err := c.link.Send(ctx, f.Vendor, f.Command, f.Payload, c.cfg.CommandTimeout)
	if err != nil {
		c.log.Warn("write failed", "command", gaia.CommandName(f.Vendor, f.Command), "error", err)
	}
	return err
}

// SetANCEnabled turns active noise cancellation on or off
func (c *Controller) SetANCEnabled(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetANCStatus, on), func(s *Settings) { s.ANCEnabled = on })
}

// SetAntiWind selects AntiWindOff, AntiWindMax or AntiWindAuto
func (c *Controller) SetAntiWind(ctx context.Context, level int) error {
	if level < AntiWindOff || level > AntiWindAuto {
		return fmt.Errorf("anti-wind level %d out of range (0-2)", level)
	}
	return c.write(ctx, gaia.NewSetANCMode(gaia.ANCModeAntiWind, uint8(level)), func(s *Settings) { s.ANC.AntiWind = level })
}

func (c *Controller) SetComfort(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetANCMode(gaia.ANCModeComfort, boolByte(on)), func(s *Settings) { s.ANC.Comfort = on })
}

func (c *Controller) SetAdaptive(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetANCMode(gaia.ANCModeAdaptive, boolByte(on)), func(s *Settings) { s.ANC.Adaptive = on })
}

func (c *Controller) SetAutoPause(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetAutoPause, on), func(s *Settings) { s.AutoPause = on })
}

func (c *Controller) SetOnHeadDetection(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetOnHeadDetection, on), func(s *Settings) { s.OnHeadDetection = on })
}

func (c *Controller) SetSmartPause(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetSmartPause, on), func(s *Settings) { s.SmartPause = on })
}

func (c *Controller) SetAutoCall(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetAutoCall, on), func(s *Settings) { s.AutoCall = on })
}

func (c *Controller) SetComfortCall(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetComfortCall, on), func(s *Settings) { s.ComfortCall = on })
}

func (c *Controller) SetBassBoost(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetBool(gaia.CmdSetBassBoost, on), func(s *Settings) { s.BassBoost = on })
}

func (c *Controller) SetPodcastMode(ctx context.Context, on bool) error {
	return c.write(ctx, gaia.NewSetPodcastMode(on), func(s *Settings) { s.PodcastMode = on })
}

// SetCrossfeed selects CrossfeedLow, CrossfeedHigh or CrossfeedOff
func (c *Controller) SetCrossfeed(ctx context.Context, level int) error {
	if level < CrossfeedLow || level > CrossfeedOff {
		return fmt.Errorf("crossfeed level %d out of range (0-2)", level)
	}
	return c.write(ctx, gaia.NewSetLevel(gaia.CmdSetCrossfeed, uint8(level)), func(s *Settings) { s.Crossfeed = level })
}

// SetAutoPowerOff sets the idle power-off timer; 0 disables it
func (c *Controller) SetAutoPowerOff(ctx context.Context, minutes int) error {
	if minutes < 0 || minutes > MaxAutoPowerOffMinutes {
		return fmt.Errorf("auto power off %d minutes out of range (0-%d)", minutes, MaxAutoPowerOffMinutes)
	}
	f := gaia.NewSetTimer(gaia.TimerAutoOff, uint16(minutes*60))
	return c.write(ctx, f, func(s *Settings) { s.AutoPowerOffMinutes = minutes })
}

// Debounced writes update the model immediately and transmit only the
// last value of a burst once the quiet period has passed.

// SetTransparency sets the transparent hearing level (0-100)
func (c *Controller) SetTransparency(level int) error {
	if level < 0 || level > MaxTransparency {
		return fmt.Errorf("transparency level %d out of range (0-%d)", level, MaxTransparency)
	}
	c.update(func(s *Settings) { s.Transparency = level })
	c.transparency.schedule(func() {
		c.send(context.Background(), gaia.NewSetLevel(gaia.CmdSetTransparency, uint8(level)))
	})
	return nil
}

// SetSidetone sets the sidetone level (0-4)
func (c *Controller) SetSidetone(level int) error {
	if level < 0 || level > MaxSidetone {
		return fmt.Errorf("sidetone level %d out of range (0-%d)", level, MaxSidetone)
	}
	c.update(func(s *Settings) { s.Sidetone = level })
	c.sidetone.schedule(func() {
		c.send(context.Background(), gaia.NewSetLevel(gaia.CmdSetSidetone, uint8(level)))
	})
	return nil
}

// ApplyEQPreset selects a built-in preset. The model and the EQ lock are
// updated before returning; the five band writes go out in band order in
// the background, after any earlier preset's sequence. A sequence stops
// early once a newer preset or a reset supersedes it. While the lock holds,
// EQ reads and notifications are ignored so device echoes of the old curve
// do not override the selection.
func (c *Controller) ApplyEQPreset(p EQPreset) error {
	gains, ok := p.Gains()
	if !ok {
		return fmt.Errorf("preset %s has no fixed gains", p)
	}

	var seq uint64
	c.update(func(s *Settings) {
		s.EQ = p
		c.eqLockUntil = time.Now().Add(c.cfg.EQLock)
		c.eqSeq++
		seq = c.eqSeq
		c.cancelEQNotifyLocked()
	})

	c.background(func() {
		c.eqSeqMu.Lock()
		defer c.eqSeqMu.Unlock()

		for band, gain := range gains {
			if !c.eqSeqCurrent(seq) {
				return
			}
			c.send(context.Background(), gaia.NewSetEQBand(uint8(band), gain))
		}

		// A newer preset keeps its own lock
		c.mu.Lock()
		if c.eqSeq == seq {
			c.eqLockUntil = time.Now().Add(c.cfg.EQSettle)
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Controller) eqSeqCurrent(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eqSeq == seq
}

// EQLocked reports whether EQ reads and notifications are being ignored
func (c *Controller) EQLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eqLockedLocked()
}

func (c *Controller) eqLockedLocked() bool {
	return time.Now().Before(c.eqLockUntil)
}

func (c *Controller) cancelEQNotifyLocked() {
	c.eqGen++
	if c.eqTimer != nil {
		c.eqTimer.Stop()
		c.eqTimer = nil
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
