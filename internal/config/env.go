package config

import (
	"log/slog"
	"os"
)

// EnvOverrides holds configuration values sourced from environment
// variables — layer 2 of the four-layer chain (CLI flags > env > file >
// defaults).
type EnvOverrides struct {
	ConfigPath string
	Account    string
	ClientID   string
}

// ReadEnvOverrides reads recognized ICLOUDPD_* environment variables, plus
// CLIENT_ID which is honored bare for compatibility with existing scripts.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	e := EnvOverrides{
		ConfigPath: os.Getenv("ICLOUDPD_CONFIG"),
		Account:    os.Getenv("ICLOUDPD_ACCOUNT"),
		ClientID:   os.Getenv("CLIENT_ID"),
	}

	if e.ClientID != "" {
		logger.Debug("CLIENT_ID override present in environment")
	}

	return e
}

// CLIOverrides holds configuration values sourced from CLI flags — layer 1,
// the highest priority.
type CLIOverrides struct {
	ConfigPath string
	Account    string
	Directory  string
	Domain     string
}
