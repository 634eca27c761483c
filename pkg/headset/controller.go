// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package headset keeps a settings model of a GAIA headset in sync with the
// device. Reads, optimistic writes and push notifications all converge on
// one mutex-guarded Settings value.
package headset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

// Default timings
const (
	DefaultDebounce       = 150 * time.Millisecond
	DefaultEQNotifyDelay  = 300 * time.Millisecond
	DefaultEQLock         = 5 * time.Second
	DefaultEQSettle       = 1 * time.Second
	DefaultPollInterval   = 2 * time.Second
	DefaultCommandTimeout = 5 * time.Second
)

// Link is the part of *link.Manager the controller uses
type Link interface {
	Send(ctx context.Context, vendor, command uint16, payload []byte, timeout time.Duration) (gaia.Frame, error)
	Subscribe() (<-chan link.State, func())
	SetNotificationHandler(h func(gaia.Frame))
}

// Config holds controller timings. Zero values select the defaults.
type Config struct {
	Debounce       time.Duration
	EQNotifyDelay  time.Duration
	EQLock         time.Duration
	EQSettle       time.Duration
	PollInterval   time.Duration
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.EQNotifyDelay <= 0 {
		c.EQNotifyDelay = DefaultEQNotifyDelay
	}
	if c.EQLock <= 0 {
		c.EQLock = DefaultEQLock
	}
	if c.EQSettle <= 0 {
		c.EQSettle = DefaultEQSettle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Controller reconciles the Settings model with a headset
type Controller struct {
	link Link
	cfg  Config
	log  *slog.Logger

	mu          sync.Mutex
	settings    Settings
	subscribers map[chan Settings]struct{}
	registered  bool

	// EQ group lock and notification debounce, guarded by mu
	eqLockUntil time.Time
	eqGen       uint64
	eqTimer     *time.Timer
	eqSeq       uint64     // current preset sequence
	eqSeqMu     sync.Mutex // one band sequence at a time

	transparency *debouncer
	sidetone     *debouncer

	refreshMu sync.Mutex // FetchAll and Poll
	devicesMu sync.Mutex // paired device list refresh
	inflight  sync.WaitGroup
}

// New creates a Controller for l
func New(l Link, cfg Config) *Controller {
	cfg.setDefaults()
	c := &Controller{
		link:        l,
		cfg:         cfg,
		log:         cfg.Logger,
		settings:    DefaultSettings(),
		subscribers: make(map[chan Settings]struct{}),
	}
	c.transparency = newDebouncer(cfg.Debounce, &c.inflight)
	c.sidetone = newDebouncer(cfg.Debounce, &c.inflight)
	return c
}

// Snapshot returns a copy of the current model
func (c *Controller) Snapshot() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

// Subscribe returns a stream of model snapshots starting with the current
// one. Slow readers only see the latest snapshot.
func (c *Controller) Subscribe() (<-chan Settings, func()) {
	ch := make(chan Settings, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.settings.Clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Reset restores the defaults and drops pending EQ state
func (c *Controller) Reset() {
	c.transparency.cancel()
	c.sidetone.cancel()
	c.update(func(s *Settings) {
		*s = DefaultSettings()
		c.eqLockUntil = time.Time{}
		c.eqSeq++
		c.cancelEQNotifyLocked()
		c.registered = false
	})
}

// Wait blocks until background writes (debounced sliders, EQ band
// sequences, device list refreshes) have finished or ctx ends
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run binds the controller to the link until ctx ends: it routes
// notifications into the model, refreshes everything on connect and polls
// settings that have no push channel while connected.
func (c *Controller) Run(ctx context.Context) error {
	c.link.SetNotificationHandler(c.HandleNotification)
	defer c.link.SetNotificationHandler(nil)

	states, cancel := c.link.Subscribe()
	defer cancel()

	var ticker *time.Ticker
	var tick <-chan time.Time
	stopPolling := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopPolling()

	// Reads issued for the current connection end with it
	connCtx, connCancel := context.WithCancel(ctx)
	defer func() { connCancel() }()
	var connReads sync.WaitGroup

	connected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s, ok := <-states:
			if !ok {
				return nil
			}
			switch {
			case s.Phase == link.Connected && !connected:
				connected = true
				connCancel()
				connCtx, connCancel = context.WithCancel(ctx)
				fetchCtx := connCtx
				c.onConnected(s.Device)
				connReads.Add(1)
				c.background(func() {
					defer connReads.Done()
					if err := c.FetchAll(fetchCtx); err != nil {
						c.log.Warn("initial refresh failed", "error", err)
					}
				})
				ticker = time.NewTicker(c.cfg.PollInterval)
				tick = ticker.C
			case s.Phase != link.Connected && connected:
				connected = false
				stopPolling()
				connCancel()
				connReads.Wait()
				c.onDisconnected()
			}

		case <-tick:
			pollCtx := connCtx
			connReads.Add(1)
			go func() {
				defer connReads.Done()
				c.Poll(pollCtx)
			}()
		}
	}
}

// Attach routes notifications into the model and names it after dev, for
// callers that drive FetchAll themselves instead of using Run
func (c *Controller) Attach(dev link.Device) {
	c.link.SetNotificationHandler(c.HandleNotification)
	c.onConnected(dev)
}

func (c *Controller) onConnected(dev link.Device) {
	c.update(func(s *Settings) {
		c.registered = false
		name := dev.Name
		if name == "" {
			name = "HDB 630"
		}
		s.Info.Name = name
	})
}

// onDisconnected drops everything learned from the headset
func (c *Controller) onDisconnected() {
	c.Reset()
}

// update applies fn to the model under the lock and publishes the result
func (c *Controller) update(fn func(s *Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.settings)
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	for ch := range c.subscribers {
		snap := c.settings.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// background runs fn in a goroutine tracked by Wait
func (c *Controller) background(fn func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

// send issues one command; failures are logged and reported as nil
func (c *Controller) send(ctx context.Context, f gaia.Frame) (gaia.Frame, bool) {
	resp, err := c.link.Send(ctx, f.Vendor, f.Command, f.Payload, c.cfg.CommandTimeout)
	if err != nil {
		c.log.Warn("command failed", "command", gaia.CommandName(f.Vendor, f.Command), "error", err)
		return gaia.Frame{}, false
	}
	return resp, true
}
