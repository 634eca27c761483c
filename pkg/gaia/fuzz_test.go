// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

var fuzzVendors = []uint16{VendorQualcomm, VendorSennheiser, 0x1234}

func randomFrame(rng *rand.Rand) Frame {
	payload := make([]byte, rng.Intn(65))
	rng.Read(payload)
	return NewFrame(fuzzVendors[rng.Intn(len(fuzzVendors))], uint16(rng.Intn(0x10000)), payload)
}

// TestFuzzReassembler_RandomBytes feeds random bytes and checks nothing panics
// and the buffer never holds a complete frame after Feed returns
func TestFuzzReassembler_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		r := NewReassembler()
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		r.Feed(data, func(f Frame) {
			ValidateFrame(f)
			FormatPayload(f)
			CommandName(f.Vendor, f.Command)
		})

		if _, _, err := Decode(r.buffer); err == nil {
			t.Fatalf("Round %d: complete frame left in buffer", i)
		}
	}
}

// TestFuzzReassembler_RandomSplits encodes random frames, splits the stream at
// random offsets and checks the frames come back unchanged and in order
func TestFuzzReassembler_RandomSplits(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		frames := make([]Frame, rng.Intn(8)+1)
		var stream []byte
		for j := range frames {
			frames[j] = randomFrame(rng)
			stream = append(stream, MustEncode(frames[j].Vendor, frames[j].Command, frames[j].Payload)...)
		}

		r := NewReassembler()
		var got []Frame
		for len(stream) > 0 {
			n := rng.Intn(len(stream)) + 1
			r.Feed(stream[:n], func(f Frame) { got = append(got, f) })
			stream = stream[n:]
		}

		if len(got) != len(frames) {
			t.Fatalf("Round %d: got %d frames, want %d", i, len(got), len(frames))
		}
		for j := range frames {
			if got[j].Vendor != frames[j].Vendor || got[j].Command != frames[j].Command ||
				!bytes.Equal(got[j].Payload, frames[j].Payload) {
				t.Fatalf("Round %d frame %d: got %v, want %v", i, j, got[j], frames[j])
			}
		}
		if r.Buffered() != 0 {
			t.Errorf("Round %d: %d bytes left buffered", i, r.Buffered())
		}
	}
}

// TestFuzzReassembler_GarbagePrefix checks resynchronization after noise that
// contains no sync byte
func TestFuzzReassembler_GarbagePrefix(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		garbage := make([]byte, rng.Intn(32))
		for j := range garbage {
			garbage[j] = byte(rng.Intn(SyncByte))
		}
		f := randomFrame(rng)

		r := NewReassembler()
		var got []Frame
		r.Feed(append(garbage, MustEncode(f.Vendor, f.Command, f.Payload)...), func(f Frame) {
			got = append(got, f)
		})

		if len(got) != 1 {
			t.Fatalf("Round %d: got %d frames, want 1", i, len(got))
		}
		if r.Discarded() != uint64(len(garbage)) {
			t.Errorf("Round %d: discarded %d, want %d", i, r.Discarded(), len(garbage))
		}
	}
}
