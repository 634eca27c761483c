// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/gaia"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure command round trips to the headset",
	Long: `Send GET_SERIAL requests to the headset and wait for each reply.

This command tests bidirectional communication through the whole stack:
transport, framing and request/response correlation. The round trip time of
every request is printed, followed by a summary.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	os.Exit(ping(cmd.Context()))
	return nil
}

// ping returns the process exit code
func ping(ctx context.Context) int {
	sess, err := openSession(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		return 2
	}
	defer sess.Close()

	fmt.Printf("Gaiastat - Ping Test\n")
	fmt.Printf("Connection: %s\n", sess.info)
	fmt.Printf("Device: %s\n", sess.device)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	probe := gaia.NewGetSerial()
	timeout := time.Duration(pingTimeout) * time.Second
	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		resp, err := sess.manager.Send(ctx, probe.Vendor, probe.Command, probe.Payload, timeout)
		rtt := time.Since(startTime)

		var cmdErr *link.CommandError
		switch {
		case err == nil:
			fmt.Printf("reply %s, %d bytes, rtt=%v\n", gaia.CommandName(resp.Vendor, resp.Command), len(resp.Payload), rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		case errors.As(err, &cmdErr):
			// An error response still proves the round trip
			fmt.Printf("error reply (%v), rtt=%v\n", err, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		case errors.Is(err, link.ErrTimeout):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if ctx.Err() != nil {
			pingCount = i
			break
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		return 1
	}
	return 0
}
