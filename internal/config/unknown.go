package config

import (
	"log/slog"

	"github.com/BurntSushi/toml"
)

// warnUnknownKeys logs (but does not fail on) TOML keys present in the file
// that don't map to a known Config field — typically a typo or a
// not-yet-wired option. Config files should survive version skew.
func warnUnknownKeys(meta toml.MetaData, logger *slog.Logger) {
	for _, key := range meta.Undecoded() {
		logger.Warn("unknown config key, ignoring", slog.String("key", key.String()))
	}
}
