// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package headset

import (
	"sync"
	"time"
)

// debouncer runs only the last function scheduled within its quiet period.
// A timer that fires after being superseded sees a stale generation and
// does nothing.
type debouncer struct {
	delay    time.Duration
	inflight *sync.WaitGroup

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

func newDebouncer(delay time.Duration, inflight *sync.WaitGroup) *debouncer {
	return &debouncer{delay: delay, inflight: inflight}
}

// schedule cancels any pending run and arms a new one
func (d *debouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A stopped timer hands its WaitGroup slot to the new one
	if d.timer == nil || !d.timer.Stop() {
		d.inflight.Add(1)
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.inflight.Done()

		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		if current {
			fn()
		}
	})
}

// cancel drops a pending run
func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil && d.timer.Stop() {
		d.inflight.Done()
	}
	d.timer = nil
}
