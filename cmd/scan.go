// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/link"
	"github.com/Thermoquad/gaiastat/pkg/transport/serialport"
)

var scanPorts bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List paired headsets",
	Long: `List paired devices that look like GAIA headsets, or with --ports the
serial devices present on the system (e.g. /dev/rfcomm0).`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanPorts, "ports", false, "List serial ports instead of paired devices")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	sess, err := newSession(nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	devices, err := sess.manager.Scan(cmd.Context())
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No paired headsets found")
		return nil
	}
	for _, d := range devices {
		fmt.Println(formatDevice(d))
	}
	return nil
}

func formatDevice(d link.Device) string {
	status := "paired"
	if d.Connected {
		status = "connected"
	}
	return fmt.Sprintf("%-17s  %-24s  %s", d.Address, d.Name, status)
}
