package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SetAccountKey decodes the config file at path, sets a single field on the
// named account's entry, and re-encodes atomically (temp file + rename).
// Used by the pause/resume commands to flip the "paused" flag without
// requiring the caller to round-trip the whole Config struct.
func SetAccountKey(path, account, key, value string) error {
	cfg, err := LoadOrDefault(path, nil)
	if err != nil {
		return fmt.Errorf("loading config for update: %w", err)
	}

	acct := cfg.Accounts[account]

	switch key {
	case "paused":
		paused := value == "true"
		acct.Paused = &paused
	case "paused_until":
		acct.PausedUntil = value
	default:
		return fmt.Errorf("unsupported config key %q", key)
	}

	if cfg.Accounts == nil {
		cfg.Accounts = make(map[string]Account)
	}

	cfg.Accounts[account] = acct

	return saveConfig(path, cfg)
}

// saveConfig atomically writes cfg as TOML to path (temp file in the same
// directory, then rename), mirroring the SessionStore's atomic-write
// pattern so a crash never leaves a half-written config file.
func saveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil { //nolint:mnd // owner-only
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing config: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil { //nolint:mnd // owner-only
		return fmt.Errorf("setting config permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming config into place: %w", err)
	}

	success = true

	return nil
}
