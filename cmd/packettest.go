// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid GAIA frame",
	Long: `Connect, send a battery level request and wait for any valid GAIA frame
until timeout.

Bytes that do not form a frame are skipped; the first complete frame received
from the headset counts as success, whether it is the reply or a notification.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the RFCOMM channel, a serial bridge or a WebSocket bridge.`,
	Args: cobra.NoArgs,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	os.Exit(packetTest(cmd.Context()))
	return nil
}

// packetTest returns the process exit code. The session is closed before
// returning so os.Exit does not skip it.
func packetTest(parent context.Context) int {
	timeout := time.Duration(packetTestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	// Channel for frame reception
	frameChan := make(chan tappedFrame, 1)
	tap := newFrameTap(nil, func(tf tappedFrame) {
		if tf.dir == gaia.DirectionRX {
			select {
			case frameChan <- tf:
			default:
			}
		}
	})

	sess, err := newSession(tap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return 2
	}
	defer sess.Close()

	fmt.Printf("Gaiastat - Packet Test\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	if err := sess.connect(ctx); err != nil {
		if ctx.Err() != nil && parent.Err() == nil {
			fmt.Fprintf(os.Stderr, "TIMEOUT: Not connected within %d seconds\n", packetTestTimeout)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return 2
	}
	fmt.Printf("Device: %s\n", sess.device)
	fmt.Printf("Waiting for valid GAIA frame...\n\n")

	// The probe reply usually arrives first; its outcome is irrelevant
	go func() {
		_, err := sess.manager.Send(ctx, gaia.VendorSennheiser, gaia.CmdGetBattery, nil, timeout)
		if err != nil {
			logger.Debug("probe", "error", err)
		}
	}()

	// Wait for frame or timeout
	select {
	case tf := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s (0x%04X)\n", gaia.CommandName(tf.frame.Vendor, tf.frame.Command), tf.frame.Command)
		fmt.Printf("  Vendor: %s\n", gaia.FormatVendor(tf.frame.Vendor))
		fmt.Printf("  Length: %d bytes\n", tf.frame.Len())
		if n := tap.Discarded(); n > 0 {
			fmt.Printf("  (skipped %d invalid bytes before sync)\n", n)
		}
		return 0

	case <-ctx.Done():
		if parent.Err() != nil {
			fmt.Fprintf(os.Stderr, "Interrupted\n")
			return 2
		}
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		return 1
	}
}
