// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"sync"
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// tappedFrame is one frame seen on the wire
type tappedFrame struct {
	at    time.Time
	dir   gaia.Direction
	frame gaia.Frame
}

// frameTap is a link.Recorder that reframes raw traffic in both directions
// and optionally tees it into a capture file. emit runs with the tap locked
// on the link's goroutines and must not block.
type frameTap struct {
	mu      sync.Mutex
	rx      *gaia.Reassembler
	tx      *gaia.Reassembler
	capture *gaia.CaptureWriter
	emit    func(tappedFrame)
}

func newFrameTap(capture *gaia.CaptureWriter, emit func(tappedFrame)) *frameTap {
	return &frameTap{
		rx:      gaia.NewReassembler(),
		tx:      gaia.NewReassembler(),
		capture: capture,
		emit:    emit,
	}
}

func (t *frameTap) Write(dir gaia.Direction, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.rx
	if dir == gaia.DirectionTX {
		r = t.tx
	}
	now := time.Now()
	r.Feed(data, func(f gaia.Frame) {
		if t.emit != nil {
			t.emit(tappedFrame{at: now, dir: dir, frame: f})
		}
	})

	if t.capture != nil {
		return t.capture.Write(dir, data)
	}
	return nil
}

// Discarded returns the garbage byte count of the receive direction
func (t *frameTap) Discarded() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rx.Discarded()
}

// sendFrames returns an emit func that forwards into a buffered channel,
// dropping frames when the reader falls behind
func sendFrames(ch chan<- tappedFrame) func(tappedFrame) {
	return func(tf tappedFrame) {
		select {
		case ch <- tf:
		default:
		}
	}
}
