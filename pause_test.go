package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func flagsCmdForPause(t *testing.T, cfgPath, account string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", cfgPath, "")
	cmd.Flags().String("account", account, "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("quiet", false, "")

	return cmd
}

func TestParseDuration_GoSyntax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"90s", 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			d, err := parseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestParseDuration_DaySuffix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			d, err := parseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
	}{
		{""},
		{"abc"},
		{"-1h"},
		{"0m"},
		{"0d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			_, err := parseDuration(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestNewPauseCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newPauseCmd()
	assert.Equal(t, "pause [duration]", cmd.Use)
	assert.Equal(t, "true", cmd.Annotations[skipConfigAnnotation])
}

func writeTestPauseConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return cfgPath
}

func TestResolvePauseTarget_ResolvesAccount(t *testing.T) {
	cfgPath := writeTestPauseConfig(t, `
[account.user]
username = "user@example.com"
`)

	cmd := flagsCmdForPause(t, cfgPath, "user")

	resolved, gotCfgPath, quiet, err := resolvePauseTarget(cmd)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", resolved.Account.Username)
	assert.Equal(t, cfgPath, gotCfgPath)
	assert.False(t, quiet)
}

func TestRunPause_SetsPausedFlag(t *testing.T) {
	cfgPath := writeTestPauseConfig(t, `
[account.user]
username = "user@example.com"
`)

	cmd := newPauseCmd()
	cmd.Flags().String("config", cfgPath, "")
	cmd.Flags().String("account", "user", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("quiet", true, "")

	require.NoError(t, runPause(cmd, nil))

	cfg, err := config.LoadOrDefault(cfgPath, nil)
	require.NoError(t, err)
	acct := cfg.Accounts["user"]
	require.NotNil(t, acct.Paused)
	assert.True(t, *acct.Paused)
}

func TestRunPause_WithDuration_SetsPausedUntil(t *testing.T) {
	cfgPath := writeTestPauseConfig(t, `
[account.user]
username = "user@example.com"
`)

	cmd := newPauseCmd()
	cmd.Flags().String("config", cfgPath, "")
	cmd.Flags().String("account", "user", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("quiet", true, "")

	require.NoError(t, runPause(cmd, []string{"2h"}))

	cfg, err := config.LoadOrDefault(cfgPath, nil)
	require.NoError(t, err)
	acct := cfg.Accounts["user"]
	assert.NotEmpty(t, acct.PausedUntil)

	until, err := time.Parse(time.RFC3339, acct.PausedUntil)
	require.NoError(t, err)
	assert.True(t, until.After(time.Now()))
}

func TestRunPause_InvalidDuration(t *testing.T) {
	cfgPath := writeTestPauseConfig(t, `
[account.user]
username = "user@example.com"
`)

	cmd := newPauseCmd()
	cmd.Flags().String("config", cfgPath, "")
	cmd.Flags().String("account", "user", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("quiet", true, "")

	err := runPause(cmd, []string{"not-a-duration"})
	assert.Error(t, err)
}
