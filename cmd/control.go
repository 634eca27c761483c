// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the headset",
	Long: `Control a GAIA headset via an interactive terminal UI.

Features:
  - Live view of every setting, updated from notifications
  - Changing any setting (Enter on a setting, type a value, Enter to apply)
  - Battery, codec and paired device overview
  - Link statistics and event logging

Tab switches between the setting list, the value input and the Apply button.
When the link drops, press 'r' to reconnect and 'f' to re-read every setting.

Supports Bluetooth, serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// controlLink gives the TUI model access to the session from tea.Cmd
// goroutines
type controlLink struct {
	ctx  context.Context
	sess *session
}

// connect scans and connects, reporting the outcome as a message
func (cl *controlLink) connect() tea.Cmd {
	return func() tea.Msg {
		if err := cl.sess.connect(cl.ctx); err != nil {
			return connectResultMsg{err: err}
		}
		return connectResultMsg{device: cl.sess.manager.State().Device}
	}
}

// apply writes one setting and waits until the headset has it
func (cl *controlLink) apply(s setting, value string) tea.Cmd {
	return func() tea.Msg {
		err := s.apply(cl.ctx, cl.sess.controller, value)
		if err == nil {
			err = cl.sess.controller.Wait(cl.ctx)
		}
		return applyResultMsg{name: s.name, value: value, err: err}
	}
}

// refresh re-reads every setting
func (cl *controlLink) refresh() tea.Cmd {
	return func() tea.Msg {
		err := cl.sess.controller.FetchAll(cl.ctx)
		if err == nil {
			err = cl.sess.controller.Wait(cl.ctx)
		}
		return refreshResultMsg{err: err}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sess, err := newSession(nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	states, cancelStates := sess.manager.Subscribe()
	defer cancelStates()
	snapshots, cancelSnapshots := sess.controller.Subscribe()
	defer cancelSnapshots()

	// The controller fetches everything on each transition to Connected
	go func() {
		if err := sess.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("controller stopped", "error", err)
		}
	}()

	cl := &controlLink{ctx: ctx, sess: sess}
	m := initialControlModel(cl, sess.info)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	go pumpControl(ctx, p, states, snapshots)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// pumpControl forwards link and settings updates into the program
func pumpControl(ctx context.Context, p *tea.Program, states <-chan link.State, snapshots <-chan headset.Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			p.Send(controlStateMsg(st))
		case s, ok := <-snapshots:
			if !ok {
				return
			}
			p.Send(controlSettingsMsg(s))
		}
	}
}
