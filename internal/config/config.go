// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for icloudpd-go.
package config

// Config is the top-level configuration structure. It contains one entry
// per configured account plus global sections whose values seed an
// account's defaults; an account-level field that is set overrides the
// matching global field entirely (no field-by-field merge).
type Config struct {
	Accounts map[string]Account `toml:"account"`
	Filter   FilterConfig       `toml:"filter"`
	Download DownloadConfig     `toml:"download"`
	Safety   SafetyConfig       `toml:"safety"`
	Watch    WatchConfig        `toml:"watch"`
	Logging  LoggingConfig      `toml:"logging"`
	Network  NetworkConfig      `toml:"network"`
}

// Account holds the per-account configuration: identity, target directory,
// and every SyncDriver option. A zero value for any field falls back to
// the matching global-section default.
type Account struct {
	Username          string   `toml:"username"`
	PasswordSource    string   `toml:"password_source"` // "keyring" | "prompt" | "env:VARNAME"
	Directory         string   `toml:"directory"`
	Domain            string   `toml:"domain"` // "com" | "cn"
	Library           string   `toml:"library"`
	Album             string   `toml:"album"`
	Sizes             []string `toml:"sizes"`
	LivePhotoSize     string   `toml:"live_photo_size"`
	ForceSize         bool     `toml:"force_size"`
	SkipVideos        bool     `toml:"skip_videos"`
	SkipLivePhotos    bool     `toml:"skip_live_photos"`
	SkipPhotos        bool     `toml:"skip_photos"`
	Recent            int      `toml:"recent"`
	UntilFound        int      `toml:"until_found"`
	SkipCreatedBefore string   `toml:"skip_created_before"`
	SkipCreatedAfter  string   `toml:"skip_created_after"`
	FolderStructure   string   `toml:"folder_structure"`
	FileMatchPolicy   string   `toml:"file_match_policy"` // "name_size_dedup_with_suffix" | "name_id7"
	AlignRaw          string   `toml:"align_raw"`         // "original" | "alternative" | "as_is"
	SetExifDatetime   bool     `toml:"set_exif_datetime"`
	AutoDelete        bool     `toml:"auto_delete"`
	DeleteAfterDownload bool   `toml:"delete_after_download"`
	KeepICloudRecentDays int   `toml:"keep_icloud_recent_days"`
	OnlyPrintFilenames bool    `toml:"only_print_filenames"`
	WatchIntervalSeconds int   `toml:"watch_interval_seconds"`
	NotificationEmail string   `toml:"notification_email"`
	Paused            *bool    `toml:"paused"`
	PausedUntil       string   `toml:"paused_until"` // RFC3339; cleared by the watch loop once elapsed
}

// FilterConfig holds global default asset-selection filters.
type FilterConfig struct {
	SkipVideos     bool `toml:"skip_videos"`
	SkipLivePhotos bool `toml:"skip_live_photos"`
	SkipPhotos     bool `toml:"skip_photos"`
}

// DownloadConfig controls the Downloader's retry/resume behavior.
type DownloadConfig struct {
	MaxRetries    int    `toml:"max_retries"`
	WaitSeconds   int    `toml:"wait_seconds"`
	ChunkSize     int    `toml:"chunk_size"`
	RequestTimeout string `toml:"request_timeout"`
}

// SafetyConfig controls protective defaults.
type SafetyConfig struct {
	SessionDirPermissions string `toml:"session_dir_permissions"`
	SessionFilePermissions string `toml:"session_file_permissions"`
}

// WatchConfig controls the outer WatchLoop and its notification sinks.
// Bot tokens and SMTP credentials are plain TOML fields rather than
// keyring entries: unlike the account password, they are service-wide
// and have no per-account identity to key a keyring lookup on.
type WatchConfig struct {
	DefaultIntervalSeconds int    `toml:"default_interval_seconds"`
	MFATimeoutSeconds      int    `toml:"mfa_timeout_seconds"`
	WebhookEnabled         bool   `toml:"webhook_enabled"`
	WebhookListenAddr      string `toml:"webhook_listen_addr"`
	WebhookOutboundURL     string `toml:"webhook_outbound_url"`
	TelegramEnabled        bool   `toml:"telegram_enabled"`
	TelegramBotToken       string `toml:"telegram_bot_token"`
	TelegramChatID         int64  `toml:"telegram_chat_id"`
	SMTPEnabled            bool   `toml:"smtp_enabled"`
	SMTPAddr               string `toml:"smtp_addr"`
	SMTPUsername           string `toml:"smtp_username"`
	SMTPPassword           string `toml:"smtp_password"`
	SMTPFrom               string `toml:"smtp_from"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "auto" | "text" | "json"
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}
