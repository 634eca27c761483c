// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

// fakeLink records sent frames and answers them with respond
type fakeLink struct {
	mu      sync.Mutex
	sent    []gaia.Frame
	respond func(req gaia.Frame) (gaia.Frame, error)
	handler func(gaia.Frame)
	states  chan link.State
}

func newFakeLink() *fakeLink {
	return &fakeLink{states: make(chan link.State, 8)}
}

func (l *fakeLink) Send(ctx context.Context, vendor, command uint16, payload []byte, timeout time.Duration) (gaia.Frame, error) {
	req := gaia.NewFrame(vendor, command, payload)
	l.mu.Lock()
	l.sent = append(l.sent, req)
	respond := l.respond
	l.mu.Unlock()

	if respond == nil {
		return reply(req), nil
	}
	return respond(req)
}

func (l *fakeLink) Subscribe() (<-chan link.State, func()) {
	return l.states, func() {}
}

func (l *fakeLink) SetNotificationHandler(h func(gaia.Frame)) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

func (l *fakeLink) setResponder(fn func(req gaia.Frame) (gaia.Frame, error)) {
	l.mu.Lock()
	l.respond = fn
	l.mu.Unlock()
}

func (l *fakeLink) frames() []gaia.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]gaia.Frame, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *fakeLink) clear() {
	l.mu.Lock()
	l.sent = nil
	l.mu.Unlock()
}

// sentWith returns the frames carrying command, in send order
func (l *fakeLink) sentWith(command uint16) []gaia.Frame {
	var out []gaia.Frame
	for _, f := range l.frames() {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

func reply(req gaia.Frame, payload ...byte) gaia.Frame {
	return gaia.NewFrame(req.Vendor, gaia.ResponseCommand(req.Command), payload)
}

func notification(command uint16, payload ...byte) gaia.Frame {
	return gaia.NewFrame(gaia.VendorSennheiser, command, payload)
}

func fastConfig() Config {
	return Config{
		Debounce:      30 * time.Millisecond,
		EQNotifyDelay: 30 * time.Millisecond,
		EQLock:        time.Second,
		EQSettle:      time.Second,
		PollInterval:  20 * time.Millisecond,
	}
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestApplyEQPreset_Rock(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	require.NoError(t, c.ApplyEQPreset(EQRock))

	// The selection and the lock are visible before any band write completes
	assert.Equal(t, EQRock, c.Snapshot().EQ)
	assert.True(t, c.EQLocked())

	waitIdle(t, c)

	writes := l.sentWith(gaia.CmdSetEQBand)
	require.Len(t, writes, gaia.EQBands)
	gains, _ := EQRock.Gains()
	for band, f := range writes {
		assert.Equal(t, []byte{byte(band), byte(gains[band])}, f.Payload, "band %d", band)
	}

	// Device echo of the old curve during the settle window is ignored
	c.HandleNotification(notification(gaia.NotifEQ, 0, 0, 0, 0, 0))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, EQRock, c.Snapshot().EQ)
	assert.True(t, c.EQLocked())
}

func TestApplyEQPreset_BackToBack(t *testing.T) {
	l := newFakeLink()
	gate := make(chan struct{})
	l.setResponder(func(req gaia.Frame) (gaia.Frame, error) {
		if req.Command == gaia.CmdSetEQBand {
			<-gate
		}
		return reply(req), nil
	})
	cfg := fastConfig()
	cfg.EQLock = 5 * time.Second
	cfg.EQSettle = 20 * time.Millisecond
	c := New(l, cfg)

	require.NoError(t, c.ApplyEQPreset(EQRock))
	require.Eventually(t, func() bool {
		return len(l.sentWith(gaia.CmdSetEQBand)) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.ApplyEQPreset(EQPop))
	gate <- struct{}{}

	// The first sequence stops; the second starts only after it
	require.Eventually(t, func() bool {
		return len(l.sentWith(gaia.CmdSetEQBand)) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.True(t, c.EQLocked(), "superseded sequence must not shorten the lock")
	assert.Len(t, l.sentWith(gaia.CmdSetEQBand), 2)

	close(gate)
	waitIdle(t, c)

	writes := l.sentWith(gaia.CmdSetEQBand)
	require.Len(t, writes, 1+gaia.EQBands)
	gains, _ := EQPop.Gains()
	for band, f := range writes[1:] {
		assert.Equal(t, []byte{byte(band), byte(gains[band])}, f.Payload, "band %d", band)
	}
	assert.Equal(t, EQPop, c.Snapshot().EQ)
	assert.Eventually(t, func() bool { return !c.EQLocked() }, time.Second, 5*time.Millisecond)
}

func TestApplyEQPreset_CustomRejected(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	assert.Error(t, c.ApplyEQPreset(EQCustom))
	assert.False(t, c.EQLocked())
	assert.Empty(t, l.frames())
}

func TestApplyEQPreset_CancelsPendingNotification(t *testing.T) {
	l := newFakeLink()
	cfg := fastConfig()
	cfg.EQNotifyDelay = 80 * time.Millisecond
	c := New(l, cfg)

	pop, _ := EQPop.Gains()
	c.HandleNotification(notification(gaia.NotifEQ,
		byte(pop[0]), byte(pop[1]), byte(pop[2]), byte(pop[3]), byte(pop[4])))
	require.NoError(t, c.ApplyEQPreset(EQJazz))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, EQJazz, c.Snapshot().EQ)
}

func TestEQNotification_LastOneWins(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	rock, _ := EQRock.Gains()
	classical, _ := EQClassical.Gains()
	c.HandleNotification(notification(gaia.NotifEQ,
		byte(rock[0]), byte(rock[1]), byte(rock[2]), byte(rock[3]), byte(rock[4])))
	c.HandleNotification(notification(gaia.NotifEQ,
		byte(classical[0]), byte(classical[1]), byte(classical[2]), byte(classical[3]), byte(classical[4])))

	assert.Equal(t, EQNeutral, c.Snapshot().EQ, "applied only after the quiet period")
	require.Eventually(t, func() bool {
		return c.Snapshot().EQ == EQClassical
	}, time.Second, 5*time.Millisecond)

	// Unknown curve maps to Custom
	c.HandleNotification(notification(gaia.NotifEQ, 1, 2, 3, 4, 5))
	require.Eventually(t, func() bool {
		return c.Snapshot().EQ == EQCustom
	}, time.Second, 5*time.Millisecond)
}

func TestFetchEQ_SkippedWhileLocked(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	require.NoError(t, c.ApplyEQPreset(EQDance))
	waitIdle(t, c)
	l.clear()

	c.fetchEQ(context.Background())
	assert.Empty(t, l.sentWith(gaia.CmdGetEQ))
	assert.Equal(t, EQDance, c.Snapshot().EQ)
}

func TestFetchEQ_MatchesPreset(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	hiphop, _ := EQHipHop.Gains()
	l.setResponder(func(req gaia.Frame) (gaia.Frame, error) {
		if req.Command == gaia.CmdGetEQ {
			return reply(req, byte(hiphop[req.Payload[0]])), nil
		}
		return reply(req), nil
	})

	c.fetchEQ(context.Background())

	reads := l.sentWith(gaia.CmdGetEQ)
	require.Len(t, reads, gaia.EQBands)
	for band, f := range reads {
		assert.Equal(t, []byte{byte(band)}, f.Payload)
	}
	assert.Equal(t, EQHipHop, c.Snapshot().EQ)
}

func TestSetTransparency_Debounced(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	for _, level := range []int{10, 45, 60} {
		require.NoError(t, c.SetTransparency(level))
		assert.Equal(t, level, c.Snapshot().Transparency)
	}
	waitIdle(t, c)

	writes := l.sentWith(gaia.CmdSetTransparency)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{60}, writes[0].Payload)
}

func TestSetSidetone_Debounced(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	require.NoError(t, c.SetSidetone(1))
	require.NoError(t, c.SetSidetone(3))
	waitIdle(t, c)

	writes := l.sentWith(gaia.CmdSetSidetone)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{3}, writes[0].Payload)

	// A later burst produces a second write
	require.NoError(t, c.SetSidetone(2))
	waitIdle(t, c)
	assert.Len(t, l.sentWith(gaia.CmdSetSidetone), 2)
}

func TestSetters_RangeChecks(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())
	ctx := context.Background()

	assert.Error(t, c.SetTransparency(101))
	assert.Error(t, c.SetTransparency(-1))
	assert.Error(t, c.SetSidetone(5))
	assert.Error(t, c.SetCrossfeed(ctx, 3))
	assert.Error(t, c.SetAntiWind(ctx, 3))
	assert.Error(t, c.SetAutoPowerOff(ctx, MaxAutoPowerOffMinutes+1))
	assert.Empty(t, l.frames())
	assert.Equal(t, DefaultSettings(), c.Snapshot())
}

func TestSetters_Payloads(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())
	ctx := context.Background()

	require.NoError(t, c.SetANCEnabled(ctx, true))
	require.NoError(t, c.SetAntiWind(ctx, AntiWindAuto))
	require.NoError(t, c.SetComfort(ctx, true))
	require.NoError(t, c.SetAdaptive(ctx, false))
	require.NoError(t, c.SetPodcastMode(ctx, true))
	require.NoError(t, c.SetCrossfeed(ctx, CrossfeedHigh))
	require.NoError(t, c.SetAutoPowerOff(ctx, 30))
	require.NoError(t, c.SetBassBoost(ctx, true))

	sent := l.frames()
	require.Len(t, sent, 8)
	assert.Equal(t, gaia.NewFrame(gaia.VendorSennheiser, gaia.CmdSetANCStatus, []byte{1}), sent[0])
	assert.Equal(t, []byte{gaia.ANCModeAntiWind, 2}, sent[1].Payload)
	assert.Equal(t, []byte{gaia.ANCModeComfort, 1}, sent[2].Payload)
	assert.Equal(t, []byte{gaia.ANCModeAdaptive, 0}, sent[3].Payload)
	assert.Equal(t, []byte{0x00, 0x02}, sent[4].Payload)
	assert.Equal(t, []byte{1}, sent[5].Payload)
	assert.Equal(t, []byte{gaia.TimerAutoOff, 0x07, 0x08}, sent[6].Payload) // 1800 s
	assert.Equal(t, gaia.CmdSetBassBoost, sent[7].Command)

	s := c.Snapshot()
	assert.True(t, s.ANCEnabled)
	assert.Equal(t, ANCState{AntiWind: AntiWindAuto, Comfort: true}, s.ANC)
	assert.True(t, s.PodcastMode)
	assert.Equal(t, CrossfeedHigh, s.Crossfeed)
	assert.Equal(t, 30, s.AutoPowerOffMinutes)
	assert.True(t, s.BassBoost)
}

func TestSetter_FailureKeepsOptimisticValue(t *testing.T) {
	l := newFakeLink()
	l.setResponder(func(req gaia.Frame) (gaia.Frame, error) {
		return gaia.Frame{}, link.ErrTimeout
	})
	c := New(l, fastConfig())

	err := c.SetSmartPause(context.Background(), true)
	assert.ErrorIs(t, err, link.ErrTimeout)
	assert.True(t, c.Snapshot().SmartPause)
}

func TestHandleNotification(t *testing.T) {
	tests := []struct {
		name  string
		frame gaia.Frame
		check func(t *testing.T, s Settings)
	}{
		{"anc mode", notification(gaia.NotifANCMode, 1, 2, 2, 1, 3, 1), func(t *testing.T, s Settings) {
			assert.Equal(t, ANCState{AntiWind: AntiWindAuto, Comfort: true, Adaptive: true}, s.ANC)
		}},
		{"anc mode short", notification(gaia.RespANCMode, 1, 2, 2), func(t *testing.T, s Settings) {
			assert.Equal(t, ANCState{}, s.ANC)
		}},
		{"anc status", notification(gaia.NotifANCStatus, 1), func(t *testing.T, s Settings) {
			assert.True(t, s.ANCEnabled)
		}},
		{"transparency", notification(gaia.NotifTransparency, 70), func(t *testing.T, s Settings) {
			assert.Equal(t, 70, s.Transparency)
		}},
		{"battery", notification(gaia.RespBattery, 85), func(t *testing.T, s Settings) {
			assert.Equal(t, 85, s.Battery)
		}},
		{"sidetone", notification(gaia.NotifSidetone, 3), func(t *testing.T, s Settings) {
			assert.Equal(t, 3, s.Sidetone)
		}},
		{"podcast", notification(gaia.NotifPodcast, 0, 2), func(t *testing.T, s Settings) {
			assert.True(t, s.PodcastMode)
		}},
		{"codec", notification(gaia.NotifCodec, 5), func(t *testing.T, s Settings) {
			assert.Equal(t, "aptX HD", s.Info.Codec)
		}},
		{"codec unknown", notification(gaia.RespCodec, 42), func(t *testing.T, s Settings) {
			assert.Equal(t, "Unknown", s.Info.Codec)
		}},
		{"charging", notification(gaia.NotifCharging, 1), func(t *testing.T, s Settings) {
			assert.Equal(t, ChargingActive, s.Info.Charging)
		}},
		{"charging out of range", notification(gaia.NotifCharging, 9), func(t *testing.T, s Settings) {
			assert.Equal(t, ChargingDisconnected, s.Info.Charging)
		}},
		{"bass boost alt", notification(gaia.NotifBassBoostAlt, 1), func(t *testing.T, s Settings) {
			assert.True(t, s.BassBoost)
		}},
		{"smart pause", notification(gaia.NotifSmartPause, 1), func(t *testing.T, s Settings) {
			assert.True(t, s.SmartPause)
		}},
		{"comfort call", notification(gaia.NotifComfortCall, 1), func(t *testing.T, s Settings) {
			assert.True(t, s.ComfortCall)
		}},
		{"crossfeed", notification(gaia.NotifCrossfeed, 0), func(t *testing.T, s Settings) {
			assert.Equal(t, CrossfeedLow, s.Crossfeed)
		}},
		{"empty payload", notification(gaia.NotifSidetone), func(t *testing.T, s Settings) {
			assert.Equal(t, DefaultSettings(), s)
		}},
		{"other vendor", gaia.NewFrame(gaia.VendorQualcomm, gaia.NotifSidetone, []byte{3}), func(t *testing.T, s Settings) {
			assert.Equal(t, DefaultSettings(), s)
		}},
		{"unknown command", notification(0x7777, 1), func(t *testing.T, s Settings) {
			assert.Equal(t, DefaultSettings(), s)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(newFakeLink(), fastConfig())
			c.HandleNotification(tt.frame)
			tt.check(t, c.Snapshot())
		})
	}
}

func deviceResponder(count uint16, slots map[uint8][]byte) func(req gaia.Frame) (gaia.Frame, error) {
	return func(req gaia.Frame) (gaia.Frame, error) {
		switch req.Command {
		case gaia.CmdGetMaxBTConnections:
			return reply(req, 2), nil
		case gaia.CmdGetOwnDeviceIndex:
			return reply(req, 0), nil
		case gaia.CmdGetPairedDeviceListSize:
			return reply(req, byte(count>>8), byte(count)), nil
		case gaia.CmdGetDeviceInfo:
			return reply(req, slots[req.Payload[0]]...), nil
		}
		return reply(req), nil
	}
}

func TestRefreshDevices(t *testing.T) {
	l := newFakeLink()
	l.setResponder(deviceResponder(3, map[uint8][]byte{
		0: append([]byte{0, 1, 1}, "Phone\x00"...),
		1: append([]byte{1, 2, 0}, "Laptop"...),
		2: {gaia.EmptySlot, 0, 0},
	}))
	c := New(l, fastConfig())

	c.RefreshDevices(context.Background())

	assert.Len(t, l.sentWith(gaia.CmdGetPairedDeviceListSize), 1)
	details := l.sentWith(gaia.CmdGetDeviceInfo)
	require.Len(t, details, 3)
	for i, f := range details {
		assert.Equal(t, []byte{byte(i)}, f.Payload)
	}

	s := c.Snapshot()
	assert.Equal(t, 2, s.MaxBTConnections)
	assert.Equal(t, 0, s.OwnDeviceIndex)
	assert.Equal(t, []PairedDevice{
		{Index: 0, Name: "Phone", Priority: 1, Connected: true},
		{Index: 1, Name: "Laptop", Priority: 2, Connected: false},
	}, s.PairedDevices)
}

func TestRefreshDevices_SizeUnreadableKeepsList(t *testing.T) {
	l := newFakeLink()
	l.setResponder(deviceResponder(1, map[uint8][]byte{0: {0, 1, 1}}))
	c := New(l, fastConfig())
	c.RefreshDevices(context.Background())
	require.Len(t, c.Snapshot().PairedDevices, 1)

	l.setResponder(func(req gaia.Frame) (gaia.Frame, error) {
		if req.Command == gaia.CmdGetPairedDeviceListSize {
			return reply(req, 1), nil
		}
		return reply(req), nil
	})
	l.clear()
	c.RefreshDevices(context.Background())

	assert.Empty(t, l.sentWith(gaia.CmdGetDeviceInfo))
	assert.Len(t, c.Snapshot().PairedDevices, 1)
}

func TestConnectionNotification(t *testing.T) {
	l := newFakeLink()
	l.setResponder(deviceResponder(2, map[uint8][]byte{
		0: append([]byte{0, 1, 1}, "Phone"...),
		1: append([]byte{1, 2, 0}, "Laptop"...),
	}))
	c := New(l, fastConfig())
	c.RefreshDevices(context.Background())
	l.clear()

	// Known index is patched in place
	c.HandleNotification(notification(gaia.NotifConnection, 1, 1))
	waitIdle(t, c)
	devices := c.Snapshot().PairedDevices
	require.Len(t, devices, 2)
	assert.True(t, devices[0].Connected, "other entries keep their flags")
	assert.True(t, devices[1].Connected)
	assert.Empty(t, l.frames())

	// Unknown index triggers a list refresh
	l.setResponder(deviceResponder(3, map[uint8][]byte{
		0: append([]byte{0, 1, 1}, "Phone"...),
		1: append([]byte{1, 2, 1}, "Laptop"...),
		2: append([]byte{2, 3, 1}, "Tablet"...),
	}))
	c.HandleNotification(notification(gaia.NotifConnection, 2, 1))
	waitIdle(t, c)
	assert.Len(t, l.sentWith(gaia.CmdGetPairedDeviceListSize), 1)
	assert.Len(t, c.Snapshot().PairedDevices, 3)
}

func fullResponder(req gaia.Frame) (gaia.Frame, error) {
	switch req.Command {
	case gaia.CmdGetSerial:
		if req.Vendor == gaia.VendorQualcomm {
			return reply(req, []byte("SN12345")...), nil
		}
	case gaia.CmdGetBattery:
		return reply(req, 77), nil
	case gaia.CmdGetANCStatus:
		return reply(req, 1), nil
	case gaia.CmdGetANCMode:
		return reply(req, 1, 1, 2, 0, 3, 1), nil
	case gaia.CmdGetTransparency:
		return reply(req, 40), nil
	case gaia.CmdGetCodec:
		return reply(req, 42), nil
	case gaia.CmdGetTimer:
		return reply(req, 0, 0x03, 0x84), nil // 900 s
	case gaia.CmdGetFirmwareVersion:
		return reply(req, 1, 4, 2), nil
	case gaia.CmdGetPodcastMode:
		return reply(req, 0, 2), nil
	case gaia.CmdGetOnHeadDetection:
		return reply(req, 0), nil
	case gaia.CmdGetPairedDeviceListSize:
		return reply(req, 0, 0), nil
	}
	return reply(req), nil
}

func TestFetchAll(t *testing.T) {
	l := newFakeLink()
	l.setResponder(fullResponder)
	c := New(l, fastConfig())

	require.NoError(t, c.FetchAll(context.Background()))

	sent := l.frames()
	features := len(gaia.SennheiserFeatures) + 1
	require.Greater(t, len(sent), features)
	for i, f := range sent[:features] {
		assert.Equal(t, gaia.CmdRegisterNotification, f.Command, "frame %d", i)
	}
	assert.Equal(t, gaia.VendorQualcomm, sent[features-1].Vendor)

	s := c.Snapshot()
	assert.Equal(t, "SN12345", s.Info.Serial)
	assert.Equal(t, "1.4.2", s.Info.FirmwareVersion)
	assert.Equal(t, "Unknown (42)", s.Info.Codec)
	assert.Equal(t, 77, s.Battery)
	assert.True(t, s.ANCEnabled)
	assert.Equal(t, ANCState{AntiWind: AntiWindMax, Adaptive: true}, s.ANC)
	assert.Equal(t, 40, s.Transparency)
	assert.Equal(t, 15, s.AutoPowerOffMinutes)
	assert.True(t, s.PodcastMode)
	assert.False(t, s.OnHeadDetection)

	// Registration happens once per connection
	l.clear()
	require.NoError(t, c.FetchAll(context.Background()))
	assert.Empty(t, l.sentWith(gaia.CmdRegisterNotification))
}

func TestFetchAll_NotConnected(t *testing.T) {
	l := newFakeLink()
	l.setResponder(func(req gaia.Frame) (gaia.Frame, error) {
		return gaia.Frame{}, link.ErrNotConnected
	})
	c := New(l, fastConfig())

	err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, link.ErrNotConnected)
	assert.Len(t, l.frames(), 1)
}

func TestPoll(t *testing.T) {
	l := newFakeLink()
	l.setResponder(fullResponder)
	c := New(l, fastConfig())

	c.Poll(context.Background())

	assert.Len(t, l.sentWith(gaia.CmdGetBattery), 1)
	assert.Len(t, l.sentWith(gaia.CmdGetEQ), gaia.EQBands)
	assert.Empty(t, l.sentWith(gaia.CmdGetANCStatus), "pushed settings are not polled")
	assert.Empty(t, l.sentWith(gaia.CmdRegisterNotification))
	assert.Equal(t, 77, c.Snapshot().Battery)
}

func TestPoll_SkippedDuringRefresh(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	c.refreshMu.Lock()
	c.Poll(context.Background())
	c.refreshMu.Unlock()

	assert.Empty(t, l.frames())
}

func TestRun_RefreshesAndPollsWhileConnected(t *testing.T) {
	l := newFakeLink()
	l.setResponder(fullResponder)
	c := New(l, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	l.states <- link.State{Phase: link.Connected, Device: link.Device{Address: "00:1B:66:AA:BB:CC"}}

	require.Eventually(t, func() bool {
		return len(l.sentWith(gaia.CmdGetBattery)) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "HDB 630", c.Snapshot().Info.Name)
	assert.Len(t, l.sentWith(gaia.CmdRegisterNotification), len(gaia.SennheiserFeatures)+1)

	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	require.NotNil(t, handler)
	handler(notification(gaia.NotifSidetone, 4))
	assert.Equal(t, 4, c.Snapshot().Sidetone)

	l.states <- link.State{Phase: link.Disconnected}
	time.Sleep(50 * time.Millisecond)
	waitIdle(t, c)
	polls := len(l.sentWith(gaia.CmdGetBattery))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, polls, len(l.sentWith(gaia.CmdGetBattery)), "polling stops on disconnect")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_ResetsOnDisconnect(t *testing.T) {
	l := newFakeLink()
	l.setResponder(fullResponder)
	c := New(l, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	l.states <- link.State{Phase: link.Connected, Device: link.Device{Address: "00:1B:66:AA:BB:CC"}}
	require.Eventually(t, func() bool {
		return c.Snapshot().Battery == 77
	}, 2*time.Second, 10*time.Millisecond)
	waitIdle(t, c)

	require.NoError(t, c.ApplyEQPreset(EQRock))
	require.True(t, c.EQLocked())

	l.states <- link.State{Phase: link.Disconnected}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(DefaultSettings(), c.Snapshot())
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.EQLocked())
	waitIdle(t, c)
	assert.Equal(t, DefaultSettings(), c.Snapshot())

	// A new connection registers and reads everything again
	l.clear()
	l.states <- link.State{Phase: link.Connected, Device: link.Device{Address: "00:1B:66:AA:BB:CC"}}
	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return s.Battery == 77 && s.Info.Serial == "SN12345"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "HDB 630", c.Snapshot().Info.Name)
	waitIdle(t, c)
	assert.Len(t, l.sentWith(gaia.CmdRegisterNotification), len(gaia.SennheiserFeatures)+1)
}

func TestSubscribe_LatestSnapshot(t *testing.T) {
	c := New(newFakeLink(), fastConfig())
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	assert.Equal(t, DefaultSettings(), <-ch)

	c.HandleNotification(notification(gaia.RespBattery, 10))
	c.HandleNotification(notification(gaia.RespBattery, 20))

	s := <-ch
	assert.Equal(t, 20, s.Battery)
}

func TestReset(t *testing.T) {
	c := New(newFakeLink(), fastConfig())
	c.HandleNotification(notification(gaia.RespBattery, 50))
	require.NoError(t, c.ApplyEQPreset(EQPop))
	waitIdle(t, c)

	c.Reset()
	assert.Equal(t, DefaultSettings(), c.Snapshot())
	assert.False(t, c.EQLocked())
}

func TestPresets(t *testing.T) {
	for _, p := range BuiltInPresets {
		gains, ok := p.Gains()
		require.True(t, ok)
		assert.Equal(t, p, MatchPreset(gains), p.String())

		parsed, err := ParsePreset(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	p, err := ParsePreset("hiphop")
	require.NoError(t, err)
	assert.Equal(t, EQHipHop, p)

	_, err = ParsePreset("loudness")
	assert.Error(t, err)
}

func TestAttach(t *testing.T) {
	l := newFakeLink()
	c := New(l, fastConfig())

	c.Attach(link.Device{Address: "00:1B:66:00:00:01", Name: "Studio"})
	assert.Equal(t, "Studio", c.Snapshot().Info.Name)

	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	require.NotNil(t, h)
	h(notification(gaia.NotifTransparency, 55))
	assert.Equal(t, 55, c.Snapshot().Transparency)

	c.Attach(link.Device{Address: "00:1B:66:00:00:02"})
	assert.Equal(t, "HDB 630", c.Snapshot().Info.Name)
}
