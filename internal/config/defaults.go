package config

// Default values for configuration options. These form layer 0 of the
// four-layer override chain (CLI flags > env > config file > defaults).
const (
	defaultSize                  = "original"
	defaultLivePhotoSize         = "original"
	defaultFolderStructure       = "{:%Y/%m}"
	defaultFileMatchPolicy       = "name_size_dedup_with_suffix"
	defaultAlignRaw              = "as_is"
	defaultDomain                = "com"
	defaultMaxRetries            = 5
	defaultWaitSeconds           = 5
	defaultChunkSize             = 1024
	defaultRequestTimeout        = "60s"
	defaultSessionDirPermissions  = "0700"
	defaultSessionFilePermissions = "0600"
	defaultWatchIntervalSeconds  = 300
	defaultMFATimeoutSeconds     = 600
	defaultLogLevel              = "info"
	defaultLogFormat             = "auto"
	defaultConnectTimeout        = "10s"
	defaultKeepICloudRecentDays  = 0
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding and as the fallback when no
// config file exists.
func DefaultConfig() *Config {
	return &Config{
		Accounts: make(map[string]Account),
		Filter:   FilterConfig{},
		Download: defaultDownloadConfig(),
		Safety:   defaultSafetyConfig(),
		Watch:    defaultWatchConfig(),
		Logging:  defaultLoggingConfig(),
		Network:  defaultNetworkConfig(),
	}
}

func defaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxRetries:     defaultMaxRetries,
		WaitSeconds:    defaultWaitSeconds,
		ChunkSize:      defaultChunkSize,
		RequestTimeout: defaultRequestTimeout,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		SessionDirPermissions:  defaultSessionDirPermissions,
		SessionFilePermissions: defaultSessionFilePermissions,
	}
}

func defaultWatchConfig() WatchConfig {
	return WatchConfig{
		DefaultIntervalSeconds: defaultWatchIntervalSeconds,
		MFATimeoutSeconds:      defaultMFATimeoutSeconds,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		RequestTimeout: defaultRequestTimeout,
		UserAgent:      "icloudpd-go/0.1",
	}
}

// applyAccountDefaults fills unset Account fields from global defaults.
// Mutates a copy, never the stored config.
func applyAccountDefaults(a Account, cfg *Config) Account {
	if len(a.Sizes) == 0 {
		a.Sizes = []string{defaultSize}
	}

	if a.LivePhotoSize == "" {
		a.LivePhotoSize = defaultLivePhotoSize
	}

	if a.FolderStructure == "" {
		a.FolderStructure = defaultFolderStructure
	}

	if a.FileMatchPolicy == "" {
		a.FileMatchPolicy = defaultFileMatchPolicy
	}

	if a.AlignRaw == "" {
		a.AlignRaw = defaultAlignRaw
	}

	if a.Domain == "" {
		a.Domain = defaultDomain
	}

	if a.WatchIntervalSeconds == 0 {
		a.WatchIntervalSeconds = cfg.Watch.DefaultIntervalSeconds
	}

	if !a.SkipVideos {
		a.SkipVideos = cfg.Filter.SkipVideos
	}

	if !a.SkipLivePhotos {
		a.SkipLivePhotos = cfg.Filter.SkipLivePhotos
	}

	if !a.SkipPhotos {
		a.SkipPhotos = cfg.Filter.SkipPhotos
	}

	return a
}
