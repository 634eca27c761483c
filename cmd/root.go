// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bluetooth flags
	deviceSelector string
	rfcommChannel  uint8
	adapterName    string

	// Populated by PersistentPreRunE
	cfg    = DefaultConfig()
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "gaiastat",
	Short: "Sennheiser GAIA headset controller",
	Long: `Gaiastat - A CLI tool for controlling and monitoring GAIA headsets
such as the Sennheiser HDB 630.

Reads and changes headset settings (ANC, transparency, EQ, sidetone, ...),
follows notifications and captures raw GAIA traffic for analysis.

Connection modes:
  Bluetooth: default, uses BlueZ [--device 00:1B:66:AA:BB:CC] [--channel N]
  Serial:    --port /dev/rfcomm0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings can also be placed in $XDG_CONFIG_HOME/gaiastat/config.yaml.

For WebSocket authentication, the password is read from the GAIASTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/gaiastat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bluetooth flags
	rootCmd.PersistentFlags().StringVarP(&deviceSelector, "device", "d", "", "Headset address or name (default: first connected)")
	rootCmd.PersistentFlags().Uint8Var(&rfcommChannel, "channel", 0, "Fixed RFCOMM channel (default: discover)")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", "Bluetooth adapter, e.g. hci0 (default: all)")
}

// loadSettings merges the config file and flags, then sets up logging
func loadSettings(cmd *cobra.Command, args []string) error {
	path, required := configPath, true
	if path == "" {
		path, required = DefaultConfigPath(), false
	}
	loaded, err := LoadConfig(path, required)
	if err != nil {
		return err
	}
	applyFlags(cmd, &loaded)
	if err := loaded.Validate(); err != nil {
		return err
	}

	l, err := newLogger(os.Stderr, loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	slog.SetDefault(logger)
	return nil
}

// applyFlags copies explicitly set flags over c
func applyFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
	if flags.Changed("port") {
		c.Transport.Port = portName
	}
	if flags.Changed("baud") {
		c.Transport.Baud = baudRate
	}
	if flags.Changed("url") {
		c.Transport.URL = wsURL
	}
	if flags.Changed("username") {
		c.Transport.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.Transport.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("device") {
		c.Transport.Device = deviceSelector
	}
	if flags.Changed("channel") {
		c.Transport.Channel = rfcommChannel
	}
	if flags.Changed("adapter") {
		c.Transport.Adapter = adapterName
	}
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
