// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wsbridge carries GAIA over a WebSocket serial bridge. Each binary
// message holds raw stream bytes; message boundaries carry no meaning, so
// frames may span messages and a message may hold several frames.
package wsbridge

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/gaiastat/pkg/link"
)

// ErrConnectionClosed is returned when reading from a closed bridge
var ErrConnectionClosed = errors.New("websocket connection closed")

// DefaultHandshakeTimeout bounds the HTTP upgrade
const DefaultHandshakeTimeout = 10 * time.Second

// Options describes a bridge endpoint
type Options struct {
	URL              string // ws:// or wss://
	Username         string
	Password         string
	SkipTLSVerify    bool
	Device           string // headset address, passed as ?device=
	Channel          uint8  // RFCOMM channel, passed as ?channel= when non-zero
	HandshakeTimeout time.Duration
}

// Conn adapts a WebSocket connection to a byte stream
type Conn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *Conn) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}

		// Text frames are bridge chatter, not stream bytes
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *Conn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *Conn) Close() error {
	return w.conn.Close()
}

// EndpointURL validates opts.URL and appends the device and channel
// query parameters
func EndpointURL(opts Options) (string, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	q := u.Query()
	if opts.Device != "" {
		q.Set("device", opts.Device)
	}
	if opts.Channel != 0 {
		q.Set("channel", strconv.Itoa(int(opts.Channel)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a bridge connection with optional HTTP Basic auth
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	endpoint, err := EndpointURL(opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	if strings.HasPrefix(endpoint, "wss:") {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipTLSVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// NewHost returns a link.Host whose only device is the headset behind the
// bridge. The bridge is dialed on Connect.
func NewHost(opts Options, name string) *link.StaticHost {
	address := opts.Device
	if address == "" {
		address = opts.URL
	}
	dev := link.Device{Address: address, Name: name, Connected: true}
	return link.NewStaticHost(dev, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return Dial(ctx, opts)
	})
}
