// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/headset"
)

var eqCmd = &cobra.Command{
	Use:   "eq <preset>",
	Short: "Apply a built-in EQ preset",
	Long: `Apply one of the built-in EQ presets. The five band gains are written in
sequence; notifications and reads of the EQ are ignored until the headset has
settled.

Presets: ` + presetList(),
	Args: cobra.ExactArgs(1),
	RunE: runEQ,
}

func init() {
	rootCmd.AddCommand(eqCmd)
}

func presetList() string {
	names := make([]string, len(headset.BuiltInPresets))
	for i, p := range headset.BuiltInPresets {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}

func runEQ(cmd *cobra.Command, args []string) error {
	preset, err := headset.ParsePreset(args[0])
	if err != nil {
		return err
	}

	return withController(cmd.Context(), func(ctx context.Context, sess *session) error {
		if err := sess.controller.ApplyEQPreset(preset); err != nil {
			return err
		}
		if err := sess.controller.Wait(ctx); err != nil {
			return err
		}
		fmt.Printf("EQ: %s\n", sess.controller.Snapshot().EQ)
		return nil
	})
}
