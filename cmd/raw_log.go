// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display GAIA frames of both directions as they
cross the wire, each with timestamp, command name and decoded payload.

Unlike monitor, raw_log does not register for notifications or read any
settings: only traffic the headset sends on its own is shown. Bytes that do
not form a frame are reported as they are skipped.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	frames := make(chan tappedFrame, 256)
	tap := newFrameTap(nil, sendFrames(frames))
	sess, err := openSession(ctx, tap)
	if err != nil {
		return err
	}
	defer sess.Close()

	states, cancelStates := sess.manager.Subscribe()
	defer cancelStates()

	fmt.Printf("Gaiastat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Device: %s\n", sess.device)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var garbage uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case tf := <-frames:
			if n := tap.Discarded(); n > garbage {
				fmt.Printf("[ERROR] skipped %d bytes\n", n-garbage)
				garbage = n
			}
			fmt.Print(tf.dir.String() + " " + gaia.FormatFrame(tf.frame, tf.at))

		case st, ok := <-states:
			if !ok {
				return nil
			}
			if st.Phase == link.Disconnected || st.Phase == link.Failed {
				fmt.Printf("Connection closed: %s\n", st)
				return nil
			}
		}
	}
}
