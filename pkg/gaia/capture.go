// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured chunk relative to the host
type Direction uint8

const (
	DirectionRX Direction = iota
	DirectionTX
)

// String returns "RX" or "TX"
func (d Direction) String() string {
	if d == DirectionTX {
		return "TX"
	}
	return "RX"
}

// Record is one captured chunk of wire bytes.
// RX records hold raw transport reads, so replaying them through a
// Reassembler reproduces the original framing including garbage.
type Record struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
}

var captureEncMode cbor.EncMode
var captureDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	captureEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	captureDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// CaptureWriter appends records to a CBOR stream.
// It is safe for concurrent use.
type CaptureWriter struct {
	closer  io.Closer
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewCaptureWriter writes records to w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	c := &CaptureWriter{encoder: captureEncMode.NewEncoder(w)}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// CreateCapture creates (or truncates) a capture file at path
func CreateCapture(path string) (*CaptureWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewCaptureWriter(f), nil
}

// Write records a chunk. Writes after Close are ignored.
func (c *CaptureWriter) Write(dir Direction, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	return c.encoder.Encode(Record{
		Timestamp: time.Now(),
		Direction: dir,
		Data:      data,
	})
}

// Close closes the underlying writer if it is a Closer.
// It is safe to call Close multiple times.
func (c *CaptureWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// CaptureReader reads records from a CBOR stream
type CaptureReader struct {
	closer  io.Closer
	decoder *cbor.Decoder
}

// NewCaptureReader reads records from r
func NewCaptureReader(r io.Reader) *CaptureReader {
	c := &CaptureReader{decoder: captureDecMode.NewDecoder(r)}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// OpenCapture opens a capture file for reading
func OpenCapture(path string) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewCaptureReader(f), nil
}

// Next returns the next record, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (Record, error) {
	var rec Record
	if err := c.decoder.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode capture record: %w", err)
	}
	return rec, nil
}

// Close closes the underlying reader if it is a Closer
func (c *CaptureReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
