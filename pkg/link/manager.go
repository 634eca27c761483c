// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the connection to one GAIA headset: channel discovery,
// the connection state machine, request/response correlation and routing of
// unsolicited notifications.
//
// All link state is owned by a single goroutine. Public methods post
// closures to it and wait for the result; transport reads, timers and
// asynchronous open/query completions report back the same way.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// Default timings
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultCommandTimeout    = 5 * time.Second
	DefaultNotificationQueue = 64
	readBufferSize           = 1024
)

// Recorder receives raw wire traffic, e.g. a *gaia.CaptureWriter
type Recorder interface {
	Write(dir gaia.Direction, data []byte) error
}

// Config holds Manager settings. Zero values select the defaults.
type Config struct {
	ConnectTimeout    time.Duration
	CommandTimeout    time.Duration
	SameKey           SameKeyPolicy
	NotificationQueue int
	Logger            *slog.Logger
	Recorder          Recorder
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.NotificationQueue <= 0 {
		c.NotificationQueue = DefaultNotificationQueue
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Manager is the single owner of a headset link
type Manager struct {
	host Host
	cfg  Config
	log  *slog.Logger

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex

	router *router

	// Owned by the loop goroutine
	state          State
	devices        []Device
	attempt        uint64
	cancelAttempt  context.CancelFunc
	connectTimer   *time.Timer
	pendingConnect chan error
	conn           Conn
	reassembler    *gaia.Reassembler
	waiters        map[gaia.CorrelationKey][]*waiter
	pending        map[*waiter]struct{}
	stats          *gaia.Statistics
	subscribers    map[chan State]struct{}
}

// New creates a Manager for host and starts its owner goroutine.
// Call Close to release it.
func New(host Host, cfg Config) *Manager {
	cfg.setDefaults()
	m := &Manager{
		host:        host,
		cfg:         cfg,
		log:         cfg.Logger,
		ops:         make(chan func()),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		reassembler: gaia.NewReassembler(),
		waiters:     make(map[gaia.CorrelationKey][]*waiter),
		pending:     make(map[*waiter]struct{}),
		stats:       gaia.NewStatistics(),
		subscribers: make(map[chan State]struct{}),
	}
	m.router = newRouter(cfg.NotificationQueue, cfg.Logger)

	go m.run()
	go m.router.run(m.done)
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.quit:
			return
		}
	}
}

// post queues fn on the owner goroutine without waiting for it
func (m *Manager) post(fn func()) error {
	select {
	case m.ops <- fn:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// do runs fn on the owner goroutine and waits for it to finish
func (m *Manager) do(fn func()) error {
	finished := make(chan struct{})
	if err := m.post(func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// Close disconnects and stops the owner goroutine. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		_ = m.do(func() {
			m.abortAttempt(ErrClosed)
			m.teardown(ErrClosed)
			m.setState(State{Phase: Disconnected})
			for ch := range m.subscribers {
				delete(m.subscribers, ch)
				close(ch)
			}
		})
		close(m.quit)
		<-m.done
	})
	return nil
}

// State returns the current connection state
func (m *Manager) State() State {
	var s State
	if err := m.do(func() { s = m.state }); err != nil {
		return State{Phase: Disconnected, Err: err}
	}
	return s
}

// Devices returns the device list from the last Scan
func (m *Manager) Devices() []Device {
	var devices []Device
	_ = m.do(func() { devices = append([]Device(nil), m.devices...) })
	return devices
}

// Stats returns a snapshot of the traffic counters
func (m *Manager) Stats() gaia.Statistics {
	var s gaia.Statistics
	_ = m.do(func() { s = m.stats.Snapshot() })
	return s
}

// Subscribe returns a stream of state changes starting with the current
// state. Slow readers only see the latest state. The channel is closed by
// the returned cancel func or by Close.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	if err := m.do(func() {
		m.subscribers[ch] = struct{}{}
		ch <- m.state
	}); err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = m.do(func() {
				if _, ok := m.subscribers[ch]; ok {
					delete(m.subscribers, ch)
					close(ch)
				}
			})
		})
	}
	return ch, cancel
}

// SetNotificationHandler sets the single receiver of unsolicited frames.
// Frames are delivered in order on a dedicated goroutine; nil drops them.
func (m *Manager) SetNotificationHandler(h func(gaia.Frame)) {
	m.router.setHandler(h)
}

func (m *Manager) setState(s State) {
	if s.Phase != m.state.Phase || s.Reason != m.state.Reason {
		attrs := []any{"from", m.state.Phase, "to", s.Phase}
		if s.Reason != "" {
			attrs = append(attrs, "reason", s.Reason)
		}
		m.log.Info("link state", attrs...)
	}
	m.state = s
	for ch := range m.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Scan enumerates paired devices, filtered to likely headsets
func (m *Manager) Scan(ctx context.Context) ([]Device, error) {
	var busy error
	if err := m.do(func() {
		switch m.state.Phase {
		case Scanning, Connecting, Connected:
			busy = ErrBusy
			return
		}
		m.setState(State{Phase: Scanning})
	}); err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, busy
	}

	devices, err := m.host.PairedDevices(ctx)
	if err == nil {
		m.log.Debug("paired devices", "count", len(devices))
		devices = FilterHeadsets(devices)
	}

	if doErr := m.do(func() {
		if m.state.Phase != Scanning {
			return
		}
		if err != nil {
			m.setState(State{Phase: Failed, Reason: "cannot access paired devices", Err: err})
			return
		}
		m.devices = devices
		m.setState(State{Phase: Disconnected})
	}); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate paired devices: %w", err)
	}
	return devices, nil
}

// Connect opens the GAIA channel of dev and blocks until the attempt
// succeeds, fails or ctx ends. When ctx ends first the attempt continues
// and its outcome is reported through Subscribe.
func (m *Manager) Connect(ctx context.Context, dev Device) error {
	outcome := make(chan error, 1)
	if err := m.do(func() { m.startConnect(dev, outcome) }); err != nil {
		return err
	}
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) startConnect(dev Device, outcome chan error) {
	switch m.state.Phase {
	case Scanning, Connecting, Connected:
		outcome <- ErrBusy
		return
	}

	m.attempt++
	gen := m.attempt
	m.pendingConnect = outcome
	m.setState(State{Phase: Connecting, Device: dev})

	if !dev.Connected {
		m.failConnect(gen, "headset is not connected, connect it in Bluetooth settings first", ErrDeviceUnreachable)
		return
	}

	if ch, ok := FindChannel(m.host.CachedServices(dev)); ok {
		m.log.Info("found GAIA channel in cached SDP records", "channel", ch.ID, "class", ch.Class, "exact", ch.Exact)
		m.openChannel(gen, dev, ch)
		return
	}

	m.log.Info("GAIA not in cached SDP records, querying", "device", dev.Address)
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	m.cancelAttempt = cancel
	go func() {
		err := m.host.QueryServices(ctx, dev)
		_ = m.post(func() { m.queryComplete(gen, dev, err) })
	}()
}

func (m *Manager) queryComplete(gen uint64, dev Device, err error) {
	if gen != m.attempt || m.state.Phase != Connecting {
		return
	}
	m.clearAttempt()
	if err != nil {
		m.failConnect(gen, "service discovery failed", fmt.Errorf("%w: %v", ErrChannelNotFound, err))
		return
	}

	ch, ok := FindChannel(m.host.CachedServices(dev))
	if !ok {
		m.failConnect(gen, "GAIA service not found, try re-pairing the headset", ErrChannelNotFound)
		return
	}
	m.log.Info("SDP query found GAIA channel", "channel", ch.ID, "class", ch.Class, "exact", ch.Exact)
	m.openChannel(gen, dev, ch)
}

func (m *Manager) openChannel(gen uint64, dev Device, ch Channel) {
	m.setState(State{Phase: Connecting, Device: dev, Channel: ch})

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelAttempt = cancel
	m.connectTimer = time.AfterFunc(m.cfg.ConnectTimeout, func() {
		_ = m.post(func() { m.connectTimedOut(gen) })
	})

	go func() {
		conn, err := m.host.Open(ctx, dev, ch)
		if postErr := m.post(func() { m.openComplete(gen, conn, err) }); postErr != nil && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) openComplete(gen uint64, conn Conn, err error) {
	if gen != m.attempt || m.state.Phase != Connecting {
		if conn != nil {
			m.log.Debug("closing transport from superseded attempt")
			_ = conn.Close()
		}
		return
	}

	ch := m.state.Channel
	if err != nil {
		m.failConnect(gen, fmt.Sprintf("failed to open RFCOMM channel %d", ch.ID), &OpenError{Channel: ch.ID, Err: err})
		return
	}

	m.clearAttempt()
	m.conn = conn
	m.reassembler.Reset()
	m.setState(State{Phase: Connected, Device: m.state.Device, Channel: ch})
	m.reportConnect(nil)

	go m.readLoop(gen, conn)
}

func (m *Manager) connectTimedOut(gen uint64) {
	if gen != m.attempt || m.state.Phase != Connecting {
		return
	}
	m.failConnect(gen, "timed out, try power-cycling the headset", ErrConnectTimeout)
}

// failConnect moves to Failed and reports err to the pending Connect call.
// The attempt counter is bumped so late completions are discarded.
func (m *Manager) failConnect(gen uint64, reason string, err error) {
	m.clearAttempt()
	m.attempt++
	m.log.Warn("connect failed", "reason", reason, "error", err)
	m.setState(State{Phase: Failed, Device: m.state.Device, Channel: m.state.Channel, Reason: reason, Err: err})
	m.reportConnect(err)
}

func (m *Manager) reportConnect(err error) {
	if m.pendingConnect != nil {
		m.pendingConnect <- err
		m.pendingConnect = nil
	}
}

// clearAttempt stops the connection timer and cancels in-flight open/query
func (m *Manager) clearAttempt() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}
}

// abortAttempt cancels a connection attempt that has not completed
func (m *Manager) abortAttempt(err error) {
	if m.state.Phase != Connecting {
		return
	}
	m.clearAttempt()
	m.attempt++
	m.reportConnect(err)
}

// Disconnect closes the transport and fails every pending command.
// A connection attempt in progress is abandoned.
func (m *Manager) Disconnect() error {
	return m.do(func() {
		m.abortAttempt(ErrNotConnected)
		m.teardown(ErrNotConnected)
		m.setState(State{Phase: Disconnected})
	})
}

// teardown closes the transport, drops buffered bytes and fails all waiters
func (m *Manager) teardown(reason error) {
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.log.Debug("transport close", "error", err)
		}
		m.conn = nil
	}
	m.reassembler.Reset()
	m.failAll(reason)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if m.post(func() { m.receive(gen, chunk) }) != nil {
				return
			}
		}
		if err != nil {
			_ = m.post(func() { m.connectionLost(gen, err) })
			return
		}
	}
}

func (m *Manager) receive(gen uint64, chunk []byte) {
	if gen != m.attempt || m.state.Phase != Connected {
		return
	}
	m.log.Debug("RX", "len", len(chunk), "data", gaia.HexString(chunk))
	m.record(gaia.DirectionRX, chunk)

	before := m.reassembler.Discarded()
	m.reassembler.Feed(chunk, m.dispatch)
	if garbage := m.reassembler.Discarded() - before; garbage > 0 {
		m.stats.GarbageBytes += garbage
		m.log.Debug("discarded garbage bytes", "count", garbage)
	}
}

func (m *Manager) connectionLost(gen uint64, err error) {
	if gen != m.attempt || m.state.Phase != Connected {
		return
	}
	m.log.Info("transport closed", "error", err)
	m.teardown(ErrNotConnected)
	m.setState(State{Phase: Disconnected, Device: m.state.Device, Reason: "connection closed", Err: err})
}

// dispatch offers a frame to the correlator, then to the router
func (m *Manager) dispatch(f gaia.Frame) {
	m.log.Debug("frame", "vendor", fmt.Sprintf("0x%04X", f.Vendor), "command", fmt.Sprintf("0x%04X", f.Command),
		"name", gaia.CommandName(f.Vendor, f.Command), "len", len(f.Payload))

	if w := m.takeWaiter(f.Key()); w != nil {
		m.stats.Received(f, true)
		if f.IsError() {
			m.resolve(w, f, &CommandError{Vendor: f.Vendor, Command: f.Command})
		} else {
			m.resolve(w, f, nil)
		}
		return
	}

	m.stats.Received(f, false)
	m.router.deliver(f)
}

func (m *Manager) record(dir gaia.Direction, data []byte) {
	if m.cfg.Recorder == nil {
		return
	}
	if err := m.cfg.Recorder.Write(dir, data); err != nil {
		m.log.Debug("capture write failed", "error", err)
	}
}

// write serializes frames onto the transport so concurrent callers never
// interleave bytes on the wire
func (m *Manager) write(conn Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	n, err := conn.Write(data)
	if err == nil && n != len(data) {
		err = errors.New("short write")
	}
	return err
}
