// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

type fetcher func(c *Controller, ctx context.Context)

// fullRefresh is every read issued after a connect
var fullRefresh = []fetcher{
	(*Controller).fetchSerial,
	(*Controller).fetchBattery,
	(*Controller).fetchANCStatus,
	(*Controller).fetchANCMode,
	(*Controller).fetchTransparency,
	(*Controller).fetchSidetone,
	(*Controller).fetchCodec,
	(*Controller).fetchCharging,
	(*Controller).fetchOnHeadDetection,
	(*Controller).fetchSmartPause,
	(*Controller).fetchAutoCall,
	(*Controller).fetchComfortCall,
	(*Controller).fetchAutoPowerOff,
	(*Controller).fetchFirmwareVersion,
	(*Controller).fetchEQ,
	(*Controller).fetchBassBoost,
	(*Controller).fetchCrossfeed,
	(*Controller).fetchAutoPause,
	(*Controller).fetchPodcastMode,
	func(c *Controller, ctx context.Context) { c.RefreshDevices(ctx) },
}

// pollRefresh covers the settings the headset never pushes
var pollRefresh = []fetcher{
	(*Controller).fetchBattery,
	(*Controller).fetchEQ,
	(*Controller).fetchCrossfeed,
	(*Controller).fetchSidetone,
	(*Controller).fetchAutoPause,
	(*Controller).fetchOnHeadDetection,
	(*Controller).fetchSmartPause,
	(*Controller).fetchAutoCall,
	(*Controller).fetchComfortCall,
	(*Controller).fetchAutoPowerOff,
}

// FetchAll registers for notifications (once per connection) and reads
// every setting concurrently. Individual read failures keep the cached
// value; only a lost link is reported.
func (c *Controller) FetchAll(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if err := c.register(ctx); err != nil {
		return err
	}
	c.fanOut(ctx, fullRefresh)
	return ctx.Err()
}

// Poll re-reads the settings without a push channel. A poll that would
// overlap a running refresh is skipped.
func (c *Controller) Poll(ctx context.Context) {
	if !c.refreshMu.TryLock() {
		c.log.Debug("poll skipped, refresh in progress")
		return
	}
	defer c.refreshMu.Unlock()
	c.fanOut(ctx, pollRefresh)
}

func (c *Controller) fanOut(ctx context.Context, fetchers []fetcher) {
	var g errgroup.Group
	for _, fetch := range fetchers {
		g.Go(func() error {
			fetch(c, ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// register subscribes to push notifications for every supported feature
func (c *Controller) register(ctx context.Context) error {
	c.mu.Lock()
	done := c.registered
	c.mu.Unlock()
	if done {
		return nil
	}

	frames := make([]gaia.Frame, 0, len(gaia.SennheiserFeatures)+1)
	for _, feature := range gaia.SennheiserFeatures {
		frames = append(frames, gaia.NewRegisterNotification(gaia.VendorSennheiser, feature))
	}
	frames = append(frames, gaia.NewRegisterNotification(gaia.VendorQualcomm, gaia.FeatureCore))

	for _, f := range frames {
		_, err := c.link.Send(ctx, f.Vendor, f.Command, f.Payload, c.cfg.CommandTimeout)
		switch {
		case err == nil:
		case errors.Is(err, link.ErrNotConnected), errors.Is(err, link.ErrClosed):
			return fmt.Errorf("register notifications: %w", err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Warn("notification registration failed",
				"vendor", gaia.FormatVendor(f.Vendor), "feature", f.Payload[0], "error", err)
		}
	}

	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	return nil
}

// read sends f and, if the reply carries at least minLen bytes, applies it
func (c *Controller) read(ctx context.Context, f gaia.Frame, minLen int, apply func(s *Settings, p []byte)) {
	resp, ok := c.send(ctx, f)
	if !ok || len(resp.Payload) < minLen {
		return
	}
	c.update(func(s *Settings) { apply(s, resp.Payload) })
}

func (c *Controller) readBool(ctx context.Context, command uint16, apply func(s *Settings, v bool)) {
	c.read(ctx, gaia.NewRead(command), 1, func(s *Settings, p []byte) { apply(s, p[0] == 0x01) })
}

func (c *Controller) readLevel(ctx context.Context, command uint16, apply func(s *Settings, v int)) {
	c.read(ctx, gaia.NewRead(command), 1, func(s *Settings, p []byte) { apply(s, int(p[0])) })
}

func (c *Controller) fetchSerial(ctx context.Context) {
	c.read(ctx, gaia.NewGetSerial(), 0, func(s *Settings, p []byte) {
		if utf8.Valid(p) {
			s.Info.Serial = string(p)
		}
	})
}

func (c *Controller) fetchBattery(ctx context.Context) {
	c.readLevel(ctx, gaia.CmdGetBattery, func(s *Settings, v int) { s.Battery = v })
}

func (c *Controller) fetchANCStatus(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetANCStatus, func(s *Settings, v bool) { s.ANCEnabled = v })
}

func (c *Controller) fetchANCMode(ctx context.Context) {
	c.read(ctx, gaia.NewRead(gaia.CmdGetANCMode), 6, func(s *Settings, p []byte) {
		s.ANC, _ = parseANCMode(p)
	})
}

func (c *Controller) fetchTransparency(ctx context.Context) {
	c.readLevel(ctx, gaia.CmdGetTransparency, func(s *Settings, v int) { s.Transparency = v })
}

func (c *Controller) fetchSidetone(ctx context.Context) {
	c.readLevel(ctx, gaia.CmdGetSidetone, func(s *Settings, v int) { s.Sidetone = v })
}

func (c *Controller) fetchCodec(ctx context.Context) {
	c.read(ctx, gaia.NewRead(gaia.CmdGetCodec), 1, func(s *Settings, p []byte) {
		name, ok := gaia.CodecName(p[0])
		if !ok {
			name = fmt.Sprintf("Unknown (%d)", p[0])
		}
		s.Info.Codec = name
	})
}

func (c *Controller) fetchCharging(ctx context.Context) {
	c.read(ctx, gaia.NewRead(gaia.CmdGetChargingStatus), 1, func(s *Settings, p []byte) {
		s.Info.Charging = chargingFromByte(p[0])
	})
}

func (c *Controller) fetchOnHeadDetection(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetOnHeadDetection, func(s *Settings, v bool) { s.OnHeadDetection = v })
}

func (c *Controller) fetchSmartPause(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetSmartPause, func(s *Settings, v bool) { s.SmartPause = v })
}

func (c *Controller) fetchAutoCall(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetAutoCall, func(s *Settings, v bool) { s.AutoCall = v })
}

func (c *Controller) fetchComfortCall(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetComfortCall, func(s *Settings, v bool) { s.ComfortCall = v })
}

func (c *Controller) fetchAutoPowerOff(ctx context.Context) {
	c.read(ctx, gaia.NewGetTimer(gaia.TimerAutoOff), 3, func(s *Settings, p []byte) {
		seconds := int(p[1])<<8 | int(p[2])
		s.AutoPowerOffMinutes = seconds / 60
	})
}

func (c *Controller) fetchFirmwareVersion(ctx context.Context) {
	c.read(ctx, gaia.NewRead(gaia.CmdGetFirmwareVersion), 3, func(s *Settings, p []byte) {
		s.Info.FirmwareVersion = fmt.Sprintf("%d.%d.%d", p[0], p[1], p[2])
	})
}

// fetchEQ reads the five bands one after another (they share a response
// key) and maps them onto a preset. Nothing happens while the EQ lock holds,
// including a lock that was engaged while the reads were in flight.
func (c *Controller) fetchEQ(ctx context.Context) {
	if c.EQLocked() {
		return
	}

	var gains [gaia.EQBands]int8
	for band := range gains {
		resp, ok := c.send(ctx, gaia.NewGetEQBand(uint8(band)))
		if ok && len(resp.Payload) >= 1 {
			gains[band] = int8(resp.Payload[0])
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eqLockedLocked() {
		return
	}
	c.settings.EQ = MatchPreset(gains)
	c.publishLocked()
}

func (c *Controller) fetchBassBoost(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetBassBoost, func(s *Settings, v bool) { s.BassBoost = v })
}

func (c *Controller) fetchCrossfeed(ctx context.Context) {
	c.readLevel(ctx, gaia.CmdGetCrossfeed, func(s *Settings, v int) { s.Crossfeed = v })
}

func (c *Controller) fetchAutoPause(ctx context.Context) {
	c.readBool(ctx, gaia.CmdGetAutoPause, func(s *Settings, v bool) { s.AutoPause = v })
}

func (c *Controller) fetchPodcastMode(ctx context.Context) {
	c.read(ctx, gaia.NewRead(gaia.CmdGetPodcastMode), 2, func(s *Settings, p []byte) {
		s.PodcastMode = p[1] == 0x02
	})
}
