// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"bytes"
	"context"
	"encoding/binary"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// Device list replies carry an 8 bit slot index
const maxPairedSlots = 256

// RefreshDevices re-reads the headset's pairing list and replaces the
// cached one in a single update. If the list size cannot be read the
// cached list is kept.
func (c *Controller) RefreshDevices(ctx context.Context) {
	c.devicesMu.Lock()
	defer c.devicesMu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		c.readLevel(ctx, gaia.CmdGetMaxBTConnections, func(s *Settings, v int) { s.MaxBTConnections = v })
		return nil
	})
	g.Go(func() error {
		c.readLevel(ctx, gaia.CmdGetOwnDeviceIndex, func(s *Settings, v int) { s.OwnDeviceIndex = v })
		return nil
	})
	_ = g.Wait()

	resp, ok := c.send(ctx, gaia.NewRead(gaia.CmdGetPairedDeviceListSize))
	if !ok || len(resp.Payload) < 2 {
		return
	}
	count := min(int(binary.BigEndian.Uint16(resp.Payload)), maxPairedSlots)

	devices := make([]PairedDevice, 0, count)
	for i := range count {
		if ctx.Err() != nil {
			return
		}
		resp, ok := c.send(ctx, gaia.NewGetDeviceInfo(uint8(i)))
		if !ok {
			continue
		}
		if dev, ok := parseDeviceInfo(resp.Payload); ok {
			devices = append(devices, dev)
		}
	}

	c.log.Debug("paired devices refreshed", "count", count, "listed", len(devices))
	c.update(func(s *Settings) { s.PairedDevices = devices })
}

// parseDeviceInfo decodes [index, priority, status, name...]. Empty slots
// report index 0xFF.
func parseDeviceInfo(p []byte) (PairedDevice, bool) {
	if len(p) < 3 || p[0] == gaia.EmptySlot {
		return PairedDevice{}, false
	}
	return PairedDevice{
		Index:     int(p[0]),
		Priority:  int(p[1]),
		Connected: p[2] == 0x01,
		Name:      string(bytes.ReplaceAll(p[3:], []byte{0}, nil)),
	}, true
}

// connectionChanged patches the matching list entry, or re-reads the list
// when the index is not known yet
func (c *Controller) connectionChanged(index int, connected bool) {
	c.mu.Lock()
	found := false
	for i := range c.settings.PairedDevices {
		if c.settings.PairedDevices[i].Index == index {
			c.settings.PairedDevices[i].Connected = connected
			found = true
			break
		}
	}
	if found {
		c.publishLocked()
	}
	c.mu.Unlock()

	if !found {
		c.log.Debug("connection change for unknown device, refreshing", "index", index)
		c.background(func() { c.RefreshDevices(context.Background()) })
	}
}
