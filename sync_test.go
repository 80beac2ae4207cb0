package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/filenames"
	"github.com/icloud-photos/icloudpd-go/internal/watch"
)

func TestFileMatchPolicyFromConfig(t *testing.T) {
	assert.Equal(t, filenames.PolicyNameOnly, fileMatchPolicyFromConfig("name_id7"))
	assert.Equal(t, filenames.PolicyNameSizeDedup, fileMatchPolicyFromConfig("name_size_dedup_with_suffix"))
	assert.Equal(t, filenames.PolicyNameSizeDedup, fileMatchPolicyFromConfig(""))
}

func TestRawAlignFromConfig(t *testing.T) {
	assert.Equal(t, filenames.RawAlignAsOriginal, rawAlignFromConfig("original"))
	assert.Equal(t, filenames.RawAlignAsAlternate, rawAlignFromConfig("alternative"))
	assert.Equal(t, filenames.RawAlignOff, rawAlignFromConfig("as_is"))
	assert.Equal(t, filenames.RawAlignOff, rawAlignFromConfig(""))
}

func TestFolderTemplateToGoLayout(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "none"},
		{"none", "none"},
		{"None", "none"},
		{"{:%Y/%m}", "2006/01"},
		{"{:%Y/%m/%d}", "2006/01/02"},
		{"%Y-%m-%d", "2006-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, folderTemplateToGoLayout(tt.input))
		})
	}
}

func TestParseConfigTime(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := parseConfigTime("")
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("RFC3339", func(t *testing.T) {
		got, err := parseConfigTime("2026-01-15T10:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 2026, got.Year())
	})

	t.Run("bare date", func(t *testing.T) {
		got, err := parseConfigTime("2026-01-15")
		require.NoError(t, err)
		assert.Equal(t, time.Month(1), got.Month())
		assert.Equal(t, 15, got.Day())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := parseConfigTime("not-a-date")
		assert.Error(t, err)
	})
}

func TestBuildSyncOptions(t *testing.T) {
	resolved := &config.ResolvedAccount{
		Account: config.Account{
			Directory:         "/photos",
			Sizes:             []string{"original"},
			FileMatchPolicy:   "name_id7",
			AlignRaw:          "original",
			FolderStructure:   "{:%Y/%m}",
			SkipCreatedBefore: "2026-01-01",
			Recent:            10,
		},
	}

	opts, err := buildSyncOptions(resolved, true)
	require.NoError(t, err)

	assert.Equal(t, "/photos", opts.Directory)
	assert.Equal(t, filenames.PolicyNameOnly, opts.FileMatchPolicy)
	assert.Equal(t, "2006/01", opts.FolderTemplate)
	assert.True(t, opts.DryRun)
	assert.Equal(t, 10, opts.Recent)
	assert.False(t, opts.SkipCreatedBefore.IsZero())
}

func TestBuildSyncOptions_InvalidDate(t *testing.T) {
	resolved := &config.ResolvedAccount{
		Account: config.Account{SkipCreatedAfter: "garbage"},
	}

	_, err := buildSyncOptions(resolved, false)
	assert.Error(t, err)
}

func TestCheckAndClearPause_NotPaused(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[account.user]
username = "user@example.com"
`), 0o600))

	resolved := &config.ResolvedAccount{Name: "user", Account: config.Account{Username: "user@example.com"}}

	paused, err := checkAndClearPause(cfgPath, resolved)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestCheckAndClearPause_CurrentlyPaused(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[account.user]
username = "user@example.com"
`), 0o600))

	isPaused := true
	resolved := &config.ResolvedAccount{Name: "user", Account: config.Account{Username: "user@example.com", Paused: &isPaused}}

	paused, err := checkAndClearPause(cfgPath, resolved)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestCheckAndClearPause_ElapsedDeadlineClears(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[account.user]
username = "user@example.com"
paused = true
paused_until = "2020-01-01T00:00:00Z"
`), 0o600))

	isPaused := true
	resolved := &config.ResolvedAccount{
		Name: "user",
		Account: config.Account{
			Username:    "user@example.com",
			Paused:      &isPaused,
			PausedUntil: "2020-01-01T00:00:00Z",
		},
	}

	paused, err := checkAndClearPause(cfgPath, resolved)
	require.NoError(t, err)
	assert.False(t, paused)

	cfg, err := config.LoadOrDefault(cfgPath, nil)
	require.NoError(t, err)
	acct := cfg.Accounts["user"]
	require.NotNil(t, acct.Paused)
	assert.False(t, *acct.Paused)
	assert.Empty(t, acct.PausedUntil)
}

func TestCheckAndClearPause_FutureDeadlineStaysPaused(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[account.user]
username = "user@example.com"
paused = true
paused_until = "2099-01-01T00:00:00Z"
`), 0o600))

	isPaused := true
	resolved := &config.ResolvedAccount{
		Name: "user",
		Account: config.Account{
			Username:    "user@example.com",
			Paused:      &isPaused,
			PausedUntil: "2099-01-01T00:00:00Z",
		},
	}

	paused, err := checkAndClearPause(cfgPath, resolved)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestForwardCommands_TranslatesKnownCommands(t *testing.T) {
	raw := make(chan string, 3)
	out := make(chan watch.Command, 3)

	raw <- "sync-now"
	raw <- "sync-all"
	raw <- "stop"
	close(raw)

	forwardCommands(raw, out)
	close(out)

	var got []watch.Command
	for cmd := range out {
		got = append(got, cmd)
	}

	assert.Equal(t, []watch.Command{watch.CommandSyncNow, watch.CommandSyncAll, watch.CommandStop}, got)
}

func TestForwardCommands_IgnoresUnknownCommand(t *testing.T) {
	raw := make(chan string, 1)
	out := make(chan watch.Command, 1)

	raw <- "bogus"
	close(raw)

	forwardCommands(raw, out)
	close(out)

	var got []watch.Command
	for cmd := range out {
		got = append(got, cmd)
	}

	assert.Empty(t, got)
}

func TestNewSyncCmd_Flags(t *testing.T) {
	cmd := newSyncCmd()

	assert.Equal(t, "sync", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
}

func TestCachedPassword_Caches(t *testing.T) {
	pw := &cachedPassword{}

	pw.value = "cached"
	pw.have = true

	assert.True(t, pw.have)
	assert.Equal(t, "cached", pw.value)
}
