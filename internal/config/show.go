package config

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// redactedSecret replaces a configured secret in Show's output.
const redactedSecret = "<redacted>"

// Show renders the effective Config as TOML text, for `icloudpd-go config
// show`. Password sources are never dereferenced here — only the source
// descriptor (e.g. "keyring") is shown, never a resolved secret. The
// watch-notification secrets (SMTP password, Telegram bot token) are
// redacted the same way.
func Show(cfg *Config) (string, error) {
	redacted := *cfg

	if redacted.Watch.SMTPPassword != "" {
		redacted.Watch.SMTPPassword = redactedSecret
	}

	if redacted.Watch.TelegramBotToken != "" {
		redacted.Watch.TelegramBotToken = redactedSecret
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&redacted); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	return buf.String(), nil
}

// AccountNames returns the configured account names in stable order.
func AccountNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Accounts))
	for name := range cfg.Accounts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
