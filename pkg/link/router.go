// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"log/slog"
	"sync"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

// router delivers unsolicited frames to one handler, in order, without
// blocking the owner goroutine
type router struct {
	queue chan gaia.Frame
	log   *slog.Logger

	mu      sync.RWMutex
	handler func(gaia.Frame)
}

func newRouter(size int, log *slog.Logger) *router {
	return &router{
		queue: make(chan gaia.Frame, size),
		log:   log,
	}
}

func (r *router) setHandler(h func(gaia.Frame)) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

func (r *router) getHandler() func(gaia.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

// deliver queues f; a missing handler or a full queue drops it
func (r *router) deliver(f gaia.Frame) {
	if r.getHandler() == nil {
		r.log.Debug("no notification handler, dropping frame", "frame", f)
		return
	}
	select {
	case r.queue <- f:
	default:
		r.log.Debug("notification queue full, dropping frame", "frame", f)
	}
}

func (r *router) run(done <-chan struct{}) {
	for {
		select {
		case f := <-r.queue:
			if h := r.getHandler(); h != nil {
				h(f)
			}
		case <-done:
			return
		}
	}
}
