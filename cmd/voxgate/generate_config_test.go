// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGenerateConfigCommand(t *testing.T) {
	t.Run("creates config in custom directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "custom")

		cmd := RunGenerateConfigCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--config-dir", dir})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Configuration file created")

		content, err := os.ReadFile(filepath.Join(dir, "config.toml"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "rateLimitPerMinute")
		assert.Contains(t, string(content), "sessionTtlDays")
	})

	t.Run("accepts direct file path", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "myconfig.toml")

		cmd := RunGenerateConfigCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--config-dir", target})

		require.NoError(t, cmd.Execute())

		_, err := os.Stat(target)
		assert.NoError(t, err)
	})

	t.Run("skips existing config", func(t *testing.T) {
		dir := t.TempDir()
		existing := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(existing, []byte("host = \"10.1.1.1\"\n"), 0644))

		cmd := RunGenerateConfigCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--config-dir", dir})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "already exists")

		content, err := os.ReadFile(existing)
		require.NoError(t, err)
		assert.Equal(t, "host = \"10.1.1.1\"\n", string(content), "existing config must not be overwritten")
	})
}

func TestLicenseGenerateCommand(t *testing.T) {
	dir := t.TempDir()

	root := RunLicenseCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"generate", "--config-dir", dir, "--tier", "pro", "--days", "90", "--count", "2"})

	require.NoError(t, root.Execute())

	assert.Regexp(t, `DVPRO-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}`, out.String())
	assert.Contains(t, out.String(), "pro")
}

func TestLicenseGenerateRejectsBadTier(t *testing.T) {
	root := RunLicenseCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"generate", "--config-dir", t.TempDir(), "--tier", "platinum"})

	assert.Error(t, root.Execute())
}
