// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/headset"
)

// setting is one writable headset setting
type setting struct {
	name  string
	usage string
	value func(s headset.Settings) string
	apply func(ctx context.Context, c *headset.Controller, value string) error
}

func boolSetting(name string, get func(s headset.Settings) bool, set func(c *headset.Controller, ctx context.Context, on bool) error) setting {
	return setting{
		name:  name,
		usage: "on|off",
		value: func(s headset.Settings) string { return onOff(get(s)) },
		apply: func(ctx context.Context, c *headset.Controller, value string) error {
			on, err := parseBool(value)
			if err != nil {
				return err
			}
			return set(c, ctx, on)
		},
	}
}

func levelSetting(name, usage string, names []string, get func(s headset.Settings) int, set func(c *headset.Controller, ctx context.Context, level int) error) setting {
	return setting{
		name:  name,
		usage: usage,
		value: func(s headset.Settings) string { return levelName(names, get(s)) },
		apply: func(ctx context.Context, c *headset.Controller, value string) error {
			level, err := parseLevelValue(value, names)
			if err != nil {
				return err
			}
			return set(c, ctx, level)
		},
	}
}

var settings = []setting{
	boolSetting("anc", func(s headset.Settings) bool { return s.ANCEnabled }, (*headset.Controller).SetANCEnabled),
	levelSetting("anti-wind", "off|max|auto", antiWindNames,
		func(s headset.Settings) int { return s.ANC.AntiWind }, (*headset.Controller).SetAntiWind),
	boolSetting("comfort", func(s headset.Settings) bool { return s.ANC.Comfort }, (*headset.Controller).SetComfort),
	boolSetting("adaptive", func(s headset.Settings) bool { return s.ANC.Adaptive }, (*headset.Controller).SetAdaptive),
	levelSetting("transparency", "0-100", nil,
		func(s headset.Settings) int { return s.Transparency },
		func(c *headset.Controller, _ context.Context, level int) error { return c.SetTransparency(level) }),
	levelSetting("sidetone", "0-4", nil,
		func(s headset.Settings) int { return s.Sidetone },
		func(c *headset.Controller, _ context.Context, level int) error { return c.SetSidetone(level) }),
	{
		name:  "eq",
		usage: presetList(),
		value: func(s headset.Settings) string { return s.EQ.String() },
		apply: func(_ context.Context, c *headset.Controller, value string) error {
			p, err := headset.ParsePreset(value)
			if err != nil {
				return err
			}
			return c.ApplyEQPreset(p)
		},
	},
	boolSetting("bass-boost", func(s headset.Settings) bool { return s.BassBoost }, (*headset.Controller).SetBassBoost),
	boolSetting("podcast", func(s headset.Settings) bool { return s.PodcastMode }, (*headset.Controller).SetPodcastMode),
	levelSetting("crossfeed", "low|high|off", crossfeedNames,
		func(s headset.Settings) int { return s.Crossfeed }, (*headset.Controller).SetCrossfeed),
	boolSetting("auto-pause", func(s headset.Settings) bool { return s.AutoPause }, (*headset.Controller).SetAutoPause),
	boolSetting("on-head", func(s headset.Settings) bool { return s.OnHeadDetection }, (*headset.Controller).SetOnHeadDetection),
	boolSetting("smart-pause", func(s headset.Settings) bool { return s.SmartPause }, (*headset.Controller).SetSmartPause),
	boolSetting("auto-call", func(s headset.Settings) bool { return s.AutoCall }, (*headset.Controller).SetAutoCall),
	boolSetting("comfort-call", func(s headset.Settings) bool { return s.ComfortCall }, (*headset.Controller).SetComfortCall),
	{
		name:  "auto-off",
		usage: "minutes, 0 disables",
		value: func(s headset.Settings) string { return formatAutoOff(s.AutoPowerOffMinutes) },
		apply: func(ctx context.Context, c *headset.Controller, value string) error {
			minutes, err := parseLevelValue(value, nil)
			if err != nil {
				return err
			}
			return c.SetAutoPowerOff(ctx, minutes)
		},
	},
}

func findSetting(name string) (setting, bool) {
	i := slices.IndexFunc(settings, func(s setting) bool { return s.name == strings.ToLower(name) })
	if i < 0 {
		return setting{}, false
	}
	return settings[i], true
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q (use on or off)", s)
	}
}

// parseLevelValue accepts a number or one of names, whose position is the level
func parseLevelValue(s string, names []string) (int, error) {
	if i := slices.Index(names, strings.ToLower(s)); i >= 0 {
		return i, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		if len(names) > 0 {
			return 0, fmt.Errorf("invalid value %q (use %s)", s, strings.Join(names, ", "))
		}
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func settingsHelp() string {
	var b strings.Builder
	for _, s := range settings {
		fmt.Fprintf(&b, "  %-14s %s\n", s.name, s.usage)
	}
	return b.String()
}

var setCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Change one headset setting",
	Long: `Connect, read the current settings, change one of them and print what
changed. Slider settings (transparency, sidetone) are debounced; the command
waits for the write to reach the headset.

Settings:
` + settingsHelp(),
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	s, ok := findSetting(args[0])
	if !ok {
		return fmt.Errorf("unknown setting %q\n\nSettings:\n%s", args[0], settingsHelp())
	}

	return withController(cmd.Context(), func(ctx context.Context, sess *session) error {
		before := sess.controller.Snapshot()
		if err := s.apply(ctx, sess.controller, args[1]); err != nil {
			return err
		}
		if err := sess.controller.Wait(ctx); err != nil {
			return err
		}
		printChanges(before, sess.controller.Snapshot())
		return nil
	})
}

// withController connects, refreshes and runs fn
func withController(ctx context.Context, fn func(ctx context.Context, sess *session) error) error {
	sess, err := openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.refresh(ctx); err != nil {
		return err
	}
	return fn(ctx, sess)
}

func printChanges(before, after headset.Settings) {
	changes := settingChanges(before, after)
	if len(changes) == 0 {
		fmt.Println("No change")
		return
	}
	for _, c := range changes {
		fmt.Println(c)
	}
}
