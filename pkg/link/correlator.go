// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// SameKeyPolicy decides what happens when a command is sent while another
// command with the same correlation key is still waiting for its reply.
type SameKeyPolicy int

const (
	// SameKeyOverwrite replaces the earlier waiter. The earlier caller can
	// then only time out.
	SameKeyOverwrite SameKeyPolicy = iota
	// SameKeyQueue keeps waiters in issue order; replies resolve the oldest.
	SameKeyQueue
)

// String returns the policy name as used in config files
func (p SameKeyPolicy) String() string {
	switch p {
	case SameKeyOverwrite:
		return "overwrite"
	case SameKeyQueue:
		return "queue"
	default:
		return fmt.Sprintf("SameKeyPolicy(%d)", int(p))
	}
}

// ParseSameKeyPolicy parses "overwrite" or "queue"
func ParseSameKeyPolicy(s string) (SameKeyPolicy, error) {
	switch s {
	case "", "overwrite":
		return SameKeyOverwrite, nil
	case "queue":
		return SameKeyQueue, nil
	default:
		return 0, fmt.Errorf("unknown same-key policy %q (use overwrite or queue)", s)
	}
}

type result struct {
	frame gaia.Frame
	err   error
}

// waiter is a single-shot slot for one command's reply
type waiter struct {
	key    gaia.CorrelationKey
	result chan result
	timer  *time.Timer
	done   bool
}

// Send writes a command and waits for the matching reply.
//
// A zero timeout selects Config.CommandTimeout. Error responses are returned
// as *CommandError. When ctx ends first, Send returns ctx.Err() and the
// command stays pending until its reply or timeout.
func (m *Manager) Send(ctx context.Context, vendor, command uint16, payload []byte, timeout time.Duration) (gaia.Frame, error) {
	data, err := gaia.Encode(vendor, command, payload)
	if err != nil {
		return gaia.Frame{}, err
	}
	if timeout <= 0 {
		timeout = m.cfg.CommandTimeout
	}

	w := &waiter{
		key:    gaia.ResponseKey(vendor, command),
		result: make(chan result, 1),
	}

	var conn Conn
	var notConnected bool
	if err := m.do(func() {
		if m.state.Phase != Connected || m.conn == nil {
			notConnected = true
			return
		}
		conn = m.conn
		m.register(w, timeout)
	}); err != nil {
		return gaia.Frame{}, err
	}
	if notConnected {
		return gaia.Frame{}, ErrNotConnected
	}

	m.log.Debug("TX", "name", gaia.CommandName(vendor, command), "data", gaia.HexString(data))
	if err := m.write(conn, data); err != nil {
		_ = m.post(func() {
			m.stats.WriteFailures++
			m.discard(w)
		})
		return gaia.Frame{}, &WriteError{Err: err}
	}
	m.record(gaia.DirectionTX, data)
	_ = m.post(func() { m.stats.Sent() })

	select {
	case r := <-w.result:
		return r.frame, r.err
	case <-ctx.Done():
		return gaia.Frame{}, ctx.Err()
	}
}

// SendFrame sends a prepared frame with the default timeout
func (m *Manager) SendFrame(ctx context.Context, f gaia.Frame) (gaia.Frame, error) {
	return m.Send(ctx, f.Vendor, f.Command, f.Payload, 0)
}

// register adds w to the waiter table and arms its timer
func (m *Manager) register(w *waiter, timeout time.Duration) {
	switch m.cfg.SameKey {
	case SameKeyQueue:
		m.waiters[w.key] = append(m.waiters[w.key], w)
	default:
		if prev := m.waiters[w.key]; len(prev) > 0 {
			m.log.Debug("overwriting pending command with the same key", "key", w.key)
		}
		m.waiters[w.key] = []*waiter{w}
	}
	m.pending[w] = struct{}{}

	w.timer = time.AfterFunc(timeout, func() {
		_ = m.post(func() { m.expire(w) })
	})
}

// takeWaiter removes and returns the waiter a reply with key resolves
func (m *Manager) takeWaiter(key gaia.CorrelationKey) *waiter {
	queue := m.waiters[key]
	if len(queue) == 0 {
		return nil
	}
	w := queue[0]
	if len(queue) == 1 {
		delete(m.waiters, key)
	} else {
		m.waiters[key] = queue[1:]
	}
	return w
}

// unregister removes w from the table if it is still there
func (m *Manager) unregister(w *waiter) {
	queue := m.waiters[w.key]
	for i, q := range queue {
		if q != w {
			continue
		}
		queue = append(queue[:i:i], queue[i+1:]...)
		if len(queue) == 0 {
			delete(m.waiters, w.key)
		} else {
			m.waiters[w.key] = queue
		}
		break
	}
	delete(m.pending, w)
}

// resolve completes w exactly once
func (m *Manager) resolve(w *waiter, f gaia.Frame, err error) {
	if w.done {
		return
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(m.pending, w)
	w.result <- result{frame: f, err: err}
}

// discard drops w without delivering a result
func (m *Manager) discard(w *waiter) {
	m.unregister(w)
	if !w.done {
		w.done = true
		if w.timer != nil {
			w.timer.Stop()
		}
	}
}

func (m *Manager) expire(w *waiter) {
	if w.done {
		return
	}
	m.log.Debug("command timed out", "key", w.key)
	m.stats.Timeouts++
	m.unregister(w)
	m.resolve(w, gaia.Frame{}, ErrTimeout)
}

// failAll resolves every outstanding waiter, including overwritten ones
func (m *Manager) failAll(err error) {
	for w := range m.pending {
		m.resolve(w, gaia.Frame{}, err)
	}
	clear(m.waiters)
	clear(m.pending)
}
