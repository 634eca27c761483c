// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

var (
	showAll       bool
	showTX        bool
	statsInterval int
	useTUI        bool
	capturePath   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow headset traffic and setting changes",
	Long: `Connect, register for notifications and follow the headset.

Every received frame is decoded and validated. Malformed frames and error
responses are always shown; use --show-all to display valid frames too and
--show-tx to include the requests gaiastat sends. Setting changes, link state
changes and periodic statistics are printed as they happen.

With --capture the raw traffic of both directions is written to a CBOR
capture file that can be inspected later with the replay command.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().BoolVar(&showTX, "show-tx", false, "Show transmitted frames")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	monitorCmd.Flags().StringVar(&capturePath, "capture", "", "Write raw traffic to a CBOR capture file")
}

// monitorFeed carries everything the monitor displays
type monitorFeed struct {
	frames   <-chan tappedFrame
	settings <-chan headset.Settings
	states   <-chan link.State
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var capture *gaia.CaptureWriter
	if capturePath != "" {
		var err error
		capture, err = gaia.CreateCapture(capturePath)
		if err != nil {
			return err
		}
		defer capture.Close()
	}

	frames := make(chan tappedFrame, 256)
	tap := newFrameTap(capture, sendFrames(frames))
	sess, err := newSession(tap)
	if err != nil {
		return err
	}
	defer sess.Close()

	states, cancelStates := sess.manager.Subscribe()
	defer cancelStates()
	go func() {
		if err := sess.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("controller stopped", "error", err)
		}
	}()

	if err := sess.connect(ctx); err != nil {
		return err
	}

	snapshots, cancelSnapshots := sess.controller.Subscribe()
	defer cancelSnapshots()

	feed := monitorFeed{frames: frames, settings: snapshots, states: states}
	if useTUI {
		return runMonitorTUI(ctx, sess, feed)
	}
	return runMonitorText(ctx, sess, feed)
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(tf tappedFrame, errs []gaia.ValidationError) {
	timestamp := tf.at.Format("15:04:05.000")
	name := gaia.CommandName(tf.frame.Vendor, tf.frame.Command)

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%04X)\n", timestamp, name, tf.frame.Command)
	for i, err := range errs {
		switch err.Type {
		case gaia.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if minimum, ok := err.Details["minimum"].(int); ok {
					fmt.Printf("    Length: received=%d, expected>=%d\n", length, minimum)
				}
			}
		case gaia.AnomalyErrorResponse:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		}
	}
	fmt.Print(gaia.FormatPayload(tf.frame))
	fmt.Println()
}

// runMonitorText prints to stdout until ctx ends or the link drops
func runMonitorText(ctx context.Context, sess *session, feed monitorFeed) error {
	fmt.Printf("Gaiastat - Monitor\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Device: %s\n", sess.device)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	statsTicker := time.NewTicker(time.Duration(max(statsInterval, 1)) * time.Second)
	defer statsTicker.Stop()

	var last *headset.Settings
	connected := false
	for {
		select {
		case <-ctx.Done():
			stats := sess.manager.Stats()
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case tf := <-feed.frames:
			if tf.dir == gaia.DirectionTX {
				if showTX {
					fmt.Print("TX " + gaia.FormatFrame(tf.frame, tf.at))
				}
				continue
			}
			if errs := gaia.ValidateFrame(tf.frame); len(errs) > 0 {
				printValidationErrors(tf, errs)
			} else if showAll {
				fmt.Print(gaia.FormatFrame(tf.frame, tf.at))
			}

		case s := <-feed.settings:
			if last != nil {
				for _, c := range settingChanges(*last, s) {
					fmt.Printf("[%s] \033[1;32mSETTING:\033[0m %s\n", time.Now().Format("15:04:05.000"), c)
				}
			}
			last = &s

		case st, ok := <-feed.states:
			if !ok {
				return nil
			}
			fmt.Printf("[%s] \033[1;36mLINK:\033[0m %s\n", time.Now().Format("15:04:05.000"), st)
			switch {
			case st.Phase == link.Connected:
				connected = true
			case connected && (st.Phase == link.Disconnected || st.Phase == link.Failed):
				return fmt.Errorf("link lost: %s", st)
			}

		case <-statsTicker.C:
			stats := sess.manager.Stats()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// runMonitorTUI pumps the feed into the bubbletea program
func runMonitorTUI(ctx context.Context, sess *session, feed monitorFeed) error {
	m := initialModel(sess.info, sess.device.String(), statsInterval, showAll, sess.manager.Stats)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tf := <-feed.frames:
				p.Send(frameMsg(tf))
			case s := <-feed.settings:
				p.Send(settingsMsg(s))
			case st, ok := <-feed.states:
				if !ok {
					return
				}
				p.Send(stateMsg(st))
			}
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
