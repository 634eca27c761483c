// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		vendor   uint16
		command  uint16
		payload  []byte
		expected []byte
	}{
		{
			name:     "battery read",
			vendor:   VendorSennheiser,
			command:  CmdGetBattery,
			payload:  nil,
			expected: []byte{0xFF, 0x03, 0x00, 0x00, 0x04, 0x95, 0x06, 0x03},
		},
		{
			name:     "set eq band",
			vendor:   VendorSennheiser,
			command:  CmdSetEQBand,
			payload:  []byte{0x02, 0xEC},
			expected: []byte{0xFF, 0x03, 0x00, 0x02, 0x04, 0x95, 0x10, 0x01, 0x02, 0xEC},
		},
		{
			name:     "qualcomm serial",
			vendor:   VendorQualcomm,
			command:  CmdGetSerial,
			payload:  nil,
			expected: []byte{0xFF, 0x03, 0x00, 0x00, 0x00, 0x1D, 0x00, 0x03},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.vendor, tt.command, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Encode() = % X, want % X", got, tt.expected)
			}
		})
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(VendorSennheiser, CmdSetEQBand, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	data, err := Encode(VendorSennheiser, CmdSetEQBand, make([]byte, MaxPayloadSize))
	if err != nil {
		t.Fatalf("max payload should encode: %v", err)
	}
	if len(data) != HeaderSize+MaxPayloadSize {
		t.Errorf("length = %d, want %d", len(data), HeaderSize+MaxPayloadSize)
	}
}

func TestDecode(t *testing.T) {
	wire := []byte{0xFF, 0x03, 0x00, 0x01, 0x04, 0x95, 0x07, 0x03, 0x55}

	f, n, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != len(wire) {
		t.Errorf("consumed = %d, want %d", n, len(wire))
	}
	if f.Vendor != VendorSennheiser || f.Command != RespBattery {
		t.Errorf("got vendor=0x%04X cmd=0x%04X", f.Vendor, f.Command)
	}
	if !bytes.Equal(f.Payload, []byte{0x55}) {
		t.Errorf("payload = % X", f.Payload)
	}
	if f.IsError() {
		t.Error("battery response should not be an error")
	}

	// Payload must not alias the input buffer
	wire[8] = 0x00
	if f.Payload[0] != 0x55 {
		t.Error("payload aliases input buffer")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, ErrIncomplete},
		{"short header", []byte{0xFF, 0x03, 0x00, 0x00, 0x04, 0x95, 0x06}, ErrIncomplete},
		{"bad sync", []byte{0x00, 0x03, 0x00, 0x00, 0x04, 0x95, 0x06, 0x03}, ErrInvalidSync},
		{"bad version", []byte{0xFF, 0x01, 0x00, 0x00, 0x04, 0x95, 0x06, 0x03}, ErrInvalidSync},
		{"missing payload", []byte{0xFF, 0x03, 0x00, 0x02, 0x04, 0x95, 0x06, 0x03, 0x01}, ErrIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := Decode(tt.buf)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if n != 0 {
				t.Errorf("consumed = %d, want 0", n)
			}
		})
	}
}

func TestFrame_ErrorFlag(t *testing.T) {
	f := NewFrame(VendorSennheiser, ErrorCommand(CmdGetSidetone), nil)
	if !f.IsError() {
		t.Fatal("0x0986 should be an error response")
	}
	if f.Key() != ResponseKey(VendorSennheiser, CmdGetSidetone) {
		t.Errorf("error response key = %v, want %v", f.Key(), ResponseKey(VendorSennheiser, CmdGetSidetone))
	}

	ok := NewFrame(VendorSennheiser, ResponseCommand(CmdGetSidetone), nil)
	if ok.IsError() {
		t.Error("0x0906 should not be an error response")
	}
	if ok.Key() != f.Key() {
		t.Error("success and error responses must share a key")
	}
}

func TestResponseCommand(t *testing.T) {
	if got := ResponseCommand(CmdGetBattery); got != RespBattery {
		t.Errorf("ResponseCommand(0x0603) = 0x%04X, want 0x%04X", got, RespBattery)
	}
	if got := ErrorCommand(CmdGetBattery); got != 0x0783 {
		t.Errorf("ErrorCommand(0x0603) = 0x%04X, want 0x0783", got)
	}
	if got := ResponseKey(VendorSennheiser, CmdGetBattery).String(); got != "0495_0703" {
		t.Errorf("ResponseKey string = %s", got)
	}
}

// Notification ids never carry the response bit, so they cannot collide
// with the key of any outstanding request
func TestNotificationKeysDisjointFromResponseKeys(t *testing.T) {
	notifications := []uint16{
		NotifCharging, NotifCodec, NotifPodcast, NotifSidetone, NotifSmartPause,
		NotifComfortCall, NotifEQ, NotifBassBoostAlt, NotifBassBoost, NotifConnection,
		NotifANCMode, NotifTransparency, NotifANCStatus, NotifCrossfeed,
	}
	for _, n := range notifications {
		key := NewFrame(VendorSennheiser, n, nil).Key()
		if key.Command&ResponseFlag != 0 {
			t.Errorf("notification 0x%04X maps to response key %v", n, key)
		}
	}
}

func TestReassembler_SingleFrame(t *testing.T) {
	r := NewReassembler()
	var frames []Frame
	r.Feed(MustEncode(VendorSennheiser, RespBattery, []byte{80}), func(f Frame) {
		frames = append(frames, f)
	})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Payload[0] != 80 {
		t.Errorf("battery = %d, want 80", frames[0].Payload[0])
	}
	if r.Buffered() != 0 {
		t.Errorf("buffered = %d, want 0", r.Buffered())
	}
}

func TestReassembler_SplitAcrossChunks(t *testing.T) {
	wire := MustEncode(VendorSennheiser, NotifEQ, []byte{0, 20, 25, 15, 0xEC})

	for split := 1; split < len(wire); split++ {
		r := NewReassembler()
		var frames []Frame
		emit := func(f Frame) { frames = append(frames, f) }

		r.Feed(wire[:split], emit)
		if len(frames) != 0 {
			t.Fatalf("split %d: frame emitted before complete", split)
		}
		r.Feed(wire[split:], emit)
		if len(frames) != 1 {
			t.Fatalf("split %d: got %d frames, want 1", split, len(frames))
		}
		if frames[0].Command != NotifEQ {
			t.Errorf("split %d: command = 0x%04X", split, frames[0].Command)
		}
	}
}

func TestReassembler_MultipleFramesInOneChunk(t *testing.T) {
	var chunk []byte
	chunk = append(chunk, MustEncode(VendorSennheiser, NotifSidetone, []byte{1})...)
	chunk = append(chunk, MustEncode(VendorSennheiser, NotifSidetone, []byte{2})...)
	chunk = append(chunk, MustEncode(VendorSennheiser, NotifSidetone, []byte{3})...)

	r := NewReassembler()
	var levels []byte
	r.Feed(chunk, func(f Frame) { levels = append(levels, f.Payload[0]) })

	if !bytes.Equal(levels, []byte{1, 2, 3}) {
		t.Errorf("levels = %v, want [1 2 3] in stream order", levels)
	}
}

func TestReassembler_GarbageResync(t *testing.T) {
	garbage := []byte{0x00, 0x12, 0xFF, 0x34, 0x03}
	chunk := append(append([]byte{}, garbage...), MustEncode(VendorSennheiser, RespBattery, []byte{42})...)

	r := NewReassembler()
	var frames []Frame
	r.Feed(chunk, func(f Frame) { frames = append(frames, f) })

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Payload[0] != 42 {
		t.Errorf("payload = %d, want 42", frames[0].Payload[0])
	}
	if r.Discarded() != uint64(len(garbage)) {
		t.Errorf("discarded = %d, want %d", r.Discarded(), len(garbage))
	}
}

func TestReassembler_IncompleteThenReset(t *testing.T) {
	wire := MustEncode(VendorSennheiser, RespBattery, []byte{42})

	r := NewReassembler()
	r.Feed(wire[:5], func(Frame) { t.Fatal("unexpected frame") })
	if r.Buffered() != 5 {
		t.Fatalf("buffered = %d, want 5", r.Buffered())
	}

	r.Reset()
	if r.Buffered() != 0 {
		t.Errorf("buffered after reset = %d", r.Buffered())
	}

	// The stale prefix is gone, so a fresh frame decodes cleanly
	var frames []Frame
	r.Feed(wire, func(f Frame) { frames = append(frames, f) })
	if len(frames) != 1 {
		t.Errorf("got %d frames after reset, want 1", len(frames))
	}
}

func TestReassembler_LengthExceedsBuffer(t *testing.T) {
	// Header claims 0x0100 payload bytes; keep waiting rather than resyncing
	r := NewReassembler()
	r.Feed([]byte{0xFF, 0x03, 0x01, 0x00, 0x04, 0x95, 0x06, 0x03, 0x00}, func(Frame) {
		t.Fatal("unexpected frame")
	})
	if r.Buffered() != 9 {
		t.Errorf("buffered = %d, want 9", r.Buffered())
	}
	if r.Discarded() != 0 {
		t.Errorf("discarded = %d, want 0", r.Discarded())
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		vendor  uint16
		command uint16
		want    string
	}{
		{VendorSennheiser, CmdGetBattery, "GET_BATTERY"},
		{VendorSennheiser, RespBattery, "GET_BATTERY_RESPONSE"},
		{VendorSennheiser, ErrorCommand(CmdGetBattery), "GET_BATTERY_ERROR"},
		{VendorSennheiser, NotifEQ, "NOTIF_EQ"},
		{VendorQualcomm, CmdGetSerial, "GET_SERIAL"},
		{VendorQualcomm, ResponseCommand(CmdRegisterNotification), "REGISTER_NOTIFICATION_RESPONSE"},
		{VendorSennheiser, 0x7777, "UNKNOWN"},
		{0x1234, CmdGetBattery, "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := CommandName(tt.vendor, tt.command); got != tt.want {
			t.Errorf("CommandName(0x%04X, 0x%04X) = %s, want %s", tt.vendor, tt.command, got, tt.want)
		}
	}
}

func TestFormatFrame(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	out := FormatFrame(NewFrame(VendorSennheiser, NotifEQ, []byte{0, 20, 25, 15, 0xEC}), at)
	if !strings.HasPrefix(out, "[03:04:05.006] NOTIF_EQ (0x1082) SENNHEISER len=5") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "+0.0 +2.0 +2.5 +1.5 -2.0") {
		t.Errorf("EQ gains not decoded: %q", out)
	}

	out = FormatFrame(NewFrame(VendorSennheiser, 0x7777, []byte{0xDE, 0xAD}), at)
	if !strings.Contains(out, "Payload: DE AD") {
		t.Errorf("unknown frame should hex dump: %q", out)
	}
}

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []AnomalyType
	}{
		{"valid battery", NewFrame(VendorSennheiser, RespBattery, []byte{80}), nil},
		{"battery over 100", NewFrame(VendorSennheiser, RespBattery, []byte{150}), []AnomalyType{AnomalyInvalidValue}},
		{"short anc mode", NewFrame(VendorSennheiser, NotifANCMode, []byte{1, 2}), []AnomalyType{AnomalyLengthMismatch}},
		{"error response", NewFrame(VendorSennheiser, ErrorCommand(CmdGetSidetone), nil), []AnomalyType{AnomalyErrorResponse}},
		{"unknown vendor", NewFrame(0xBEEF, 0x0001, nil), []AnomalyType{AnomalyUnknownVendor}},
		{"eq out of range", NewFrame(VendorSennheiser, NotifEQ, []byte{0, 0, 100, 0, 0}), []AnomalyType{AnomalyInvalidValue}},
		{"unknown command passes", NewFrame(VendorSennheiser, 0x7777, nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateFrame(tt.frame)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d anomalies (%v), want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i].Type != tt.want[i] {
					t.Errorf("anomaly %d = %s, want %s", i, got[i].Type, tt.want[i])
				}
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	s.Sent()
	s.Received(NewFrame(VendorSennheiser, RespBattery, []byte{80}), true)
	s.Received(NewFrame(VendorSennheiser, NotifSidetone, []byte{2}), false)
	s.Received(NewFrame(VendorSennheiser, ErrorCommand(CmdGetCodec), nil), true)
	s.Received(NewFrame(VendorSennheiser, ResponseCommand(CmdGetCodec), []byte{1}), false)
	s.Timeouts++

	if s.FramesReceived != 4 || s.FramesSent != 1 {
		t.Errorf("received=%d sent=%d", s.FramesReceived, s.FramesSent)
	}
	if s.Responses != 1 || s.Notifications != 1 || s.ErrorResponses != 1 || s.Unsolicited != 1 {
		t.Errorf("responses=%d notifications=%d errors=%d unsolicited=%d",
			s.Responses, s.Notifications, s.ErrorResponses, s.Unsolicited)
	}

	out := s.String()
	if !strings.Contains(out, "Timeouts:") || !strings.Contains(out, "Error Responses:") {
		t.Errorf("summary missing error lines:\n%s", out)
	}

	s.Reset()
	if s.FramesReceived != 0 || s.Timeouts != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestCommandBuilders(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		command uint16
		payload []byte
	}{
		{"podcast on", NewSetPodcastMode(true), CmdSetPodcastMode, []byte{0x00, 0x02}},
		{"podcast off", NewSetPodcastMode(false), CmdSetPodcastMode, []byte{0x00, 0x01}},
		{"anti-wind auto", NewSetANCMode(ANCModeAntiWind, 2), CmdSetANCMode, []byte{0x01, 0x02}},
		{"auto off 20 minutes", NewSetTimer(TimerAutoOff, 1200), CmdSetTimer, []byte{0x00, 0x04, 0xB0}},
		{"eq band negative", NewSetEQBand(4, -20), CmdSetEQBand, []byte{0x04, 0xEC}},
		{"smart pause", NewSetBool(CmdSetSmartPause, true), CmdSetSmartPause, []byte{0x01}},
		{"crossfeed off", NewSetLevel(CmdSetCrossfeed, 2), CmdSetCrossfeed, []byte{0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.frame.Vendor != VendorSennheiser {
				t.Errorf("vendor = 0x%04X", tt.frame.Vendor)
			}
			if tt.frame.Command != tt.command {
				t.Errorf("command = 0x%04X, want 0x%04X", tt.frame.Command, tt.command)
			}
			if !bytes.Equal(tt.frame.Payload, tt.payload) {
				t.Errorf("payload = % X, want % X", tt.frame.Payload, tt.payload)
			}
		})
	}
}

func TestCapture_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)

	rx := append([]byte{0x00}, MustEncode(VendorSennheiser, RespBattery, []byte{80})...)
	tx := MustEncode(VendorSennheiser, CmdGetBattery, nil)
	if err := w.Write(DirectionTX, tx); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(DirectionRX, rx); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(DirectionRX, rx); err != nil {
		t.Errorf("write after close should be ignored, got %v", err)
	}

	r := NewCaptureReader(&buf)
	first, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Direction != DirectionTX || !bytes.Equal(first.Data, tx) {
		t.Errorf("first record = %s % X", first.Direction, first.Data)
	}
	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Direction != DirectionRX || !bytes.Equal(second.Data, rx) {
		t.Errorf("second record = %s % X", second.Direction, second.Data)
	}
	if second.Timestamp.Before(first.Timestamp) {
		t.Error("timestamps out of order")
	}

	// Replaying the RX chunk reproduces the frame and the garbage count
	re := NewReassembler()
	var frames []Frame
	re.Feed(second.Data, func(f Frame) { frames = append(frames, f) })
	if len(frames) != 1 || re.Discarded() != 1 {
		t.Errorf("replay: frames=%d discarded=%d", len(frames), re.Discarded())
	}
}
