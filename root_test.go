package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func TestBuildLogger_Default(t *testing.T) {
	flags := CLIFlags{}

	logger := buildLogger(nil, flags)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Verbose: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Debug: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Quiet(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Quiet: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_ConfigLevels(t *testing.T) {
	tests := []struct {
		configLevel string
		wantEnabled slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"error", slog.LevelError},
		{"bogus", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.configLevel, func(t *testing.T) {
			resolved := &config.ResolvedAccount{Logging: config.LoggingConfig{LogLevel: tt.configLevel}}
			logger := buildLogger(resolved, CLIFlags{})

			assert.True(t, logger.Handler().Enabled(context.Background(), tt.wantEnabled))
		})
	}
}

func TestBuildLogger_CLIOverridesConfig(t *testing.T) {
	resolved := &config.ResolvedAccount{Logging: config.LoggingConfig{LogLevel: "error"}}

	logger := buildLogger(resolved, CLIFlags{Verbose: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestCliContextFrom_NilContext(t *testing.T) {
	cc := cliContextFrom(context.Background())
	assert.Nil(t, cc)
}

func TestCliContextFrom_WithCLIContext(t *testing.T) {
	want := &CLIContext{Resolved: &config.ResolvedAccount{Name: "user@example.com"}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, want)

	cc := cliContextFrom(ctx)
	require.NotNil(t, cc)
	assert.Equal(t, "user@example.com", cc.Resolved.Name)
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestMustCLIContext_Returns(t *testing.T) {
	want := &CLIContext{Resolved: &config.ResolvedAccount{Name: "user@example.com"}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, want)

	cc := mustCLIContext(ctx)
	assert.Equal(t, want, cc)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"login", "logout", "whoami", "status", "pause", "resume", "sync", "config"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "account", "directory", "domain", "json", "verbose", "debug", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"status", "--verbose", "--debug"})
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stdout)

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.toml")

	err := os.WriteFile(cfgFile, []byte(`
[account.user]
username = "user@example.com"
directory = "`+tmpDir+`/Photos"
domain = "com"
`), 0o600)
	require.NoError(t, err)

	flags := &CLIFlags{ConfigPath: cfgFile, Account: "user"}
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err = loadConfig(cmd, flags)
	require.NoError(t, err)

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, "user@example.com", cc.Resolved.Account.Username)
	assert.Equal(t, cfgFile, cc.CfgPath)
}

func TestLoadConfig_MissingFile_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "does-not-exist.toml")

	flags := &CLIFlags{ConfigPath: cfgFile, Account: "anyone"}
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err := loadConfig(cmd, flags)
	require.NoError(t, err)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.toml")

	err := os.WriteFile(cfgFile, []byte("not valid toml [["), 0o600)
	require.NoError(t, err)

	flags := &CLIFlags{ConfigPath: cfgFile}
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err = loadConfig(cmd, flags)
	assert.Error(t, err)
}

func TestLoadConfig_AmbiguousAccount(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.toml")

	err := os.WriteFile(cfgFile, []byte(`
[account.first]
username = "first@example.com"

[account.second]
username = "second@example.com"
`), 0o600)
	require.NoError(t, err)

	flags := &CLIFlags{ConfigPath: cfgFile}
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err = loadConfig(cmd, flags)
	assert.Error(t, err)
}

func TestDefaultHTTPClient_HasTimeout(t *testing.T) {
	client := defaultHTTPClient()
	assert.Equal(t, httpClientTimeout, client.Timeout)
}
