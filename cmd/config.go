// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/gaiastat/pkg/headset"
	"github.com/Thermoquad/gaiastat/pkg/link"
)

// Config is the contents of config.yaml. Command line flags override it.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Link      LinkConfig      `yaml:"link"`
	Headset   HeadsetConfig   `yaml:"headset"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig selects how the headset is reached. URL wins over Port;
// with neither set BlueZ is used.
type TransportConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	Device      string `yaml:"device"`  // address or name
	Channel     uint8  `yaml:"channel"` // fixed RFCOMM channel, 0 = discover
	Adapter     string `yaml:"adapter"`
}

type LinkConfig struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	SameKey           string        `yaml:"same_key"` // overwrite or queue
	NotificationQueue int           `yaml:"notification_queue"`
}

type HeadsetConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	EQNotifyDelay time.Duration `yaml:"eq_notify_delay"`
	EQLock        time.Duration `yaml:"eq_lock"`
	EQSettle      time.Duration `yaml:"eq_settle"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the built-in settings
func DefaultConfig() Config {
	return Config{
		Transport: TransportConfig{Baud: 115200},
		Link: LinkConfig{
			ConnectTimeout:    link.DefaultConnectTimeout,
			CommandTimeout:    link.DefaultCommandTimeout,
			SameKey:           "overwrite",
			NotificationQueue: link.DefaultNotificationQueue,
		},
		Headset: HeadsetConfig{
			Debounce:      headset.DefaultDebounce,
			EQNotifyDelay: headset.DefaultEQNotifyDelay,
			EQLock:        headset.DefaultEQLock,
			EQSettle:      headset.DefaultEQSettle,
			PollInterval:  headset.DefaultPollInterval,
		},
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/gaiastat/config.yaml
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gaiastat", "config.yaml")
}

// LoadConfig reads path over the defaults. A missing file is only an error
// when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated fields
func (c Config) Validate() error {
	if _, err := parseSameKey(c.Link.SameKey); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (use text or json)", c.Log.Format)
	}
	return nil
}

func parseSameKey(s string) (link.SameKeyPolicy, error) {
	switch strings.ToLower(s) {
	case "", "overwrite":
		return link.SameKeyOverwrite, nil
	case "queue":
		return link.SameKeyQueue, nil
	default:
		return 0, fmt.Errorf("unknown same_key policy %q (use overwrite or queue)", s)
	}
}

// linkConfig builds the link.Manager settings
func (c Config) linkConfig(logger *slog.Logger, rec link.Recorder) link.Config {
	policy, _ := parseSameKey(c.Link.SameKey)
	return link.Config{
		ConnectTimeout:    c.Link.ConnectTimeout,
		CommandTimeout:    c.Link.CommandTimeout,
		SameKey:           policy,
		NotificationQueue: c.Link.NotificationQueue,
		Logger:            logger,
		Recorder:          rec,
	}
}

func (c Config) headsetConfig(logger *slog.Logger) headset.Config {
	return headset.Config{
		Debounce:       c.Headset.Debounce,
		EQNotifyDelay:  c.Headset.EQNotifyDelay,
		EQLock:         c.Headset.EQLock,
		EQSettle:       c.Headset.EQSettle,
		PollInterval:   c.Headset.PollInterval,
		CommandTimeout: c.Link.CommandTimeout,
		Logger:         logger,
	}
}
