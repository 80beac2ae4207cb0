package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func TestNewResumeCmd_Structure(t *testing.T) {
	cmd := newResumeCmd()
	assert.Equal(t, "resume", cmd.Use)
	assert.Equal(t, "true", cmd.Annotations[skipConfigAnnotation])
}

func TestRunResume_ClearsPausedState(t *testing.T) {
	cfgPath := writeTestPauseConfig(t, `
[account.user]
username = "user@example.com"
paused = true
paused_until = "2026-08-01T00:00:00Z"
`)

	cmd := newResumeCmd()
	cmd.Flags().String("config", cfgPath, "")
	cmd.Flags().String("account", "user", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("quiet", true, "")

	require.NoError(t, runResume(cmd, nil))

	cfg, err := config.LoadOrDefault(cfgPath, nil)
	require.NoError(t, err)
	acct := cfg.Accounts["user"]
	require.NotNil(t, acct.Paused)
	assert.False(t, *acct.Paused)
	assert.Empty(t, acct.PausedUntil)
}
