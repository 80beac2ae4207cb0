package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and decodes the TOML config file at path. Missing file is not
// an error — returns DefaultConfig(). A malformed file is an error.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file found, using defaults", slog.String("path", path))
		return cfg, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	warnUnknownKeys(meta, logger)

	return cfg, nil
}

// LoadOrDefault is Load with a nil-safe logger (discards output).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return Load(path, logger)
}

// ResolveAccount resolves the effective configuration for one account,
// applying CLI overrides on top of the config-file account entry and
// global defaults. An empty account name selects the only configured
// account and is an error when zero or several are configured; a name
// that matches no key in cfg.Accounts resolves to a new Account whose
// Username is that name, filled from the global defaults.
func ResolveAccount(cfg *Config, accountName string, cli CLIOverrides, env EnvOverrides) (*ResolvedAccount, error) {
	name := firstNonEmpty(cli.Account, env.Account, accountName)

	if name == "" {
		if len(cfg.Accounts) == 1 {
			for k := range cfg.Accounts {
				name = k
			}
		} else {
			return nil, fmt.Errorf("no account specified and %d accounts configured (use --account)", len(cfg.Accounts))
		}
	}

	acct, ok := cfg.Accounts[name]
	if !ok {
		acct = Account{Username: name}
	}

	acct = applyAccountDefaults(acct, cfg)

	if cli.Directory != "" {
		acct.Directory = cli.Directory
	}

	if cli.Domain != "" {
		acct.Domain = cli.Domain
	}

	if acct.Username == "" {
		acct.Username = name
	}

	return &ResolvedAccount{
		Name:    name,
		Account: acct,
		Logging: cfg.Logging,
		Network: cfg.Network,
		Download: cfg.Download,
		Safety:  cfg.Safety,
		Watch:   cfg.Watch,
	}, nil
}

// ResolvedAccount is the fully-resolved, immutable configuration for one
// sync run: the four-layer chain collapsed into concrete values.
type ResolvedAccount struct {
	Name     string
	Account  Account
	Logging  LoggingConfig
	Network  NetworkConfig
	Download DownloadConfig
	Safety   SafetyConfig
	Watch    WatchConfig
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
