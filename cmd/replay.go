// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

var (
	replayShowTX     bool
	replayErrorsOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Decode a capture file written by monitor --capture",
	Long: `Read a CBOR capture file, reframe the recorded bytes of both directions
and print every frame with its original timestamp. Frames failing validation
are flagged. A traffic summary is printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowTX, "show-tx", true, "Show transmitted frames")
	replayCmd.Flags().BoolVar(&replayErrorsOnly, "errors-only", false, "Only show frames that fail validation")
}

// replaySummary holds the traffic totals of one capture
type replaySummary struct {
	stats   gaia.Statistics
	records int
	first   time.Time
	last    time.Time
}

func (s *replaySummary) String() string {
	var b strings.Builder
	span := s.last.Sub(s.first)
	fmt.Fprintf(&b, "=== Capture (%d records, %.1f seconds) ===\n", s.records, span.Seconds())
	fmt.Fprintf(&b, "Frames Received: %8d\n", s.stats.FramesReceived)
	fmt.Fprintf(&b, "Frames Sent:     %8d\n", s.stats.FramesSent)
	fmt.Fprintf(&b, "Responses:       %8d\n", s.stats.Responses)
	fmt.Fprintf(&b, "Notifications:   %8d\n", s.stats.Notifications)
	fmt.Fprintf(&b, "Error Responses: %8d\n", s.stats.ErrorResponses)
	fmt.Fprintf(&b, "Unsolicited:     %8d\n", s.stats.Unsolicited)
	fmt.Fprintf(&b, "Garbage Bytes:   %8d\n", s.stats.GarbageBytes)
	fmt.Fprintf(&b, "Malformed:       %8d\n", s.stats.Malformed)
	fmt.Fprintf(&b, "Anomalous Values:%8d\n", s.stats.AnomalousValues)
	if span > 0 {
		fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", float64(s.stats.FramesReceived)/span.Seconds())
	}
	b.WriteString("================================\n")
	return b.String()
}

// replayCapture reframes every record of r and reports each frame to fn.
// RX responses count as matched when an earlier TX request expects them.
func replayCapture(r *gaia.CaptureReader, fn func(tappedFrame)) (*replaySummary, error) {
	sum := &replaySummary{}
	stats := gaia.NewStatistics()
	rx, tx := gaia.NewReassembler(), gaia.NewReassembler()
	pending := make(map[gaia.CorrelationKey]int)

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if sum.records == 0 {
			sum.first = rec.Timestamp
		}
		sum.last = rec.Timestamp
		sum.records++

		if rec.Direction == gaia.DirectionTX {
			tx.Feed(rec.Data, func(f gaia.Frame) {
				stats.Sent()
				pending[gaia.ResponseKey(f.Vendor, f.Command)]++
				fn(tappedFrame{at: rec.Timestamp, dir: gaia.DirectionTX, frame: f})
			})
			continue
		}

		rx.Feed(rec.Data, func(f gaia.Frame) {
			key := f.Key()
			matched := pending[key] > 0
			if matched {
				pending[key]--
			}
			stats.Received(f, matched)
			fn(tappedFrame{at: rec.Timestamp, dir: gaia.DirectionRX, frame: f})
		})
	}

	stats.GarbageBytes = rx.Discarded()
	sum.stats = *stats
	return sum, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := gaia.OpenCapture(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("Gaiastat - Replay\n")
	fmt.Printf("Capture: %s\n\n", args[0])

	sum, err := replayCapture(r, func(tf tappedFrame) {
		if tf.dir == gaia.DirectionTX {
			if replayShowTX && !replayErrorsOnly {
				fmt.Print("TX " + gaia.FormatFrame(tf.frame, tf.at))
			}
			return
		}
		if errs := gaia.ValidateFrame(tf.frame); len(errs) > 0 {
			printValidationErrors(tf, errs)
		} else if !replayErrorsOnly {
			fmt.Print(gaia.FormatFrame(tf.frame, tf.at))
		}
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(sum.String())
	return nil
}
