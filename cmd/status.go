// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusShowStats bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read and print every headset setting",
	Long: `Connect to the headset, register for notifications, read every setting
and print the result.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusShowStats, "stats", false, "Print link statistics after the settings")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withController(cmd.Context(), func(ctx context.Context, sess *session) error {
		fmt.Printf("Connection: %s\n", sess.info)
		fmt.Printf("Device:     %s\n\n", sess.device)
		fmt.Print(formatSettings(sess.controller.Snapshot()))
		if statusShowStats {
			stats := sess.manager.Stats()
			fmt.Println()
			fmt.Print(stats.String())
		}
		return nil
	})
}
