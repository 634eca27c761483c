// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("trace")
	assert.Error(t, err)
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info", "json")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("connected", "device", "HDB 630")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "connected", rec["msg"])
	assert.Equal(t, "gaiastat", rec["component"])
	assert.Equal(t, "HDB 630", rec["device"])
}

func TestNewLogger_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "error", "text")
	require.NoError(t, err)

	l.Warn("quiet")
	assert.Empty(t, buf.String())
	l.Error("loud")
	assert.Contains(t, buf.String(), "msg=loud")
}

func TestNewLogger_UnknownFormat(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
