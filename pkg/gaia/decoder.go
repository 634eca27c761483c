// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"encoding/binary"
	"errors"
)

// Decode errors
var (
	ErrIncomplete  = errors.New("gaia: incomplete frame")
	ErrInvalidSync = errors.New("gaia: invalid sync bytes")
)

// Decode parses one frame from the front of buf.
// Returns the frame and the number of bytes it occupied.
// Returns ErrIncomplete if more bytes are needed and ErrInvalidSync if
// buf does not start with FF 03.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, ErrIncomplete
	}
	if buf[0] != SyncByte || buf[1] != VersionByte {
		return Frame{}, 0, ErrInvalidSync
	}

	paramSize := int(binary.BigEndian.Uint16(buf[2:4]))
	total := HeaderSize + paramSize
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}

	f := NewFrame(
		binary.BigEndian.Uint16(buf[4:6]),
		binary.BigEndian.Uint16(buf[6:8]),
		buf[HeaderSize:total],
	)
	return f, total, nil
}

// Reassembler turns a fragmented byte stream into frames.
// It is not safe for concurrent use; the owner serializes Feed and Reset.
type Reassembler struct {
	buffer    []byte
	discarded uint64
}

// NewReassembler creates an empty reassembler
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends chunk to the receive buffer and calls emit for every complete
// frame, in stream order. Garbage in front of a sync sequence is dropped one
// byte at a time. A chunk may yield zero or more frames.
func (r *Reassembler) Feed(chunk []byte, emit func(Frame)) {
	r.buffer = append(r.buffer, chunk...)

	for len(r.buffer) >= HeaderSize {
		f, consumed, err := Decode(r.buffer)
		switch {
		case errors.Is(err, ErrInvalidSync):
			r.buffer = r.buffer[1:]
			r.discarded++
			continue
		case err != nil:
			// Incomplete, wait for more bytes
			r.compact()
			return
		}

		r.buffer = r.buffer[consumed:]
		emit(f)
	}
	r.compact()
}

// compact moves pending bytes to the start of the backing array so the
// buffer does not grow without bound on a long lived connection
func (r *Reassembler) compact() {
	r.buffer = append(r.buffer[:0:0], r.buffer...)
}

// Reset drops all buffered bytes
func (r *Reassembler) Reset() {
	r.buffer = r.buffer[:0:0]
}

// Buffered returns the number of bytes waiting for the rest of a frame
func (r *Reassembler) Buffered() int {
	return len(r.buffer)
}

// Discarded returns the number of garbage bytes dropped while resynchronizing
func (r *Reassembler) Discarded() uint64 {
	return r.discarded
}
