// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

func TestFrameTap_ReframesBothDirections(t *testing.T) {
	var got []tappedFrame
	tap := newFrameTap(nil, func(tf tappedFrame) { got = append(got, tf) })

	request := gaia.MustEncode(gaia.VendorSennheiser, gaia.CmdGetBattery, nil)
	reply := gaia.MustEncode(gaia.VendorSennheiser, gaia.RespBattery, []byte{80})

	require.NoError(t, tap.Write(gaia.DirectionTX, request))

	// Garbage plus a split reply
	require.NoError(t, tap.Write(gaia.DirectionRX, append([]byte{0x00, 0x01}, reply[:5]...)))
	assert.Len(t, got, 1)
	require.NoError(t, tap.Write(gaia.DirectionRX, reply[5:]))

	require.Len(t, got, 2)
	assert.Equal(t, gaia.DirectionTX, got[0].dir)
	assert.Equal(t, gaia.CmdGetBattery, got[0].frame.Command)
	assert.Equal(t, gaia.DirectionRX, got[1].dir)
	assert.Equal(t, gaia.RespBattery, got[1].frame.Command)
	assert.Equal(t, []byte{80}, got[1].frame.Payload)
	assert.Equal(t, uint64(2), tap.Discarded())
}

func TestSendFrames_DropsWhenFull(t *testing.T) {
	ch := make(chan tappedFrame, 1)
	emit := sendFrames(ch)
	emit(tappedFrame{dir: gaia.DirectionRX})
	emit(tappedFrame{dir: gaia.DirectionTX})

	require.Len(t, ch, 1)
	assert.Equal(t, gaia.DirectionRX, (<-ch).dir)
}

func TestReplayCapture(t *testing.T) {
	var buf bytes.Buffer
	capture := gaia.NewCaptureWriter(&buf)
	tap := newFrameTap(capture, nil)

	request := gaia.MustEncode(gaia.VendorSennheiser, gaia.CmdGetBattery, nil)
	reply := gaia.MustEncode(gaia.VendorSennheiser, gaia.RespBattery, []byte{80})
	notification := gaia.MustEncode(gaia.VendorSennheiser, gaia.NotifCharging, []byte{0x01})

	require.NoError(t, tap.Write(gaia.DirectionTX, request))
	require.NoError(t, tap.Write(gaia.DirectionRX, append([]byte{0xAA}, reply[:3]...)))
	require.NoError(t, tap.Write(gaia.DirectionRX, append(reply[3:], notification...)))
	require.NoError(t, capture.Close())

	var frames []tappedFrame
	sum, err := replayCapture(gaia.NewCaptureReader(&buf), func(tf tappedFrame) {
		frames = append(frames, tf)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.records)
	require.Len(t, frames, 3)
	assert.Equal(t, gaia.NotifCharging, frames[2].frame.Command)

	assert.Equal(t, uint64(1), sum.stats.FramesSent)
	assert.Equal(t, uint64(2), sum.stats.FramesReceived)
	assert.Equal(t, uint64(1), sum.stats.Responses)
	assert.Equal(t, uint64(1), sum.stats.Notifications)
	assert.Equal(t, uint64(1), sum.stats.GarbageBytes)
	assert.Contains(t, sum.String(), "=== Capture (3 records")
}

func TestReplayCapture_Empty(t *testing.T) {
	sum, err := replayCapture(gaia.NewCaptureReader(&bytes.Buffer{}), func(tappedFrame) {})
	require.NoError(t, err)
	assert.Zero(t, sum.records)
	assert.Zero(t, sum.stats.FramesReceived)
}
