package config

const (
	defaultLogDir                = "~/.local/share/rebind/logs"
	defaultTempRoot              = "~/.local/share/rebind/work"
	defaultProfileDir            = "~/.config/rebind/profiles"
	defaultEnhancementTimeout    = 600
	defaultPackagingAttempts     = 3
	defaultPackagingBackoffMS    = 500
	defaultOrderConflictFraction = 0.0
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNotifyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:     defaultLogDir,
			TempRoot:   defaultTempRoot,
			ProfileDir: defaultProfileDir,
		},
		Enhancement: Enhancement{
			TimeoutSeconds: defaultEnhancementTimeout,
		},
		Packaging: Packaging{
			RetryAttempts:  defaultPackagingAttempts,
			RetryBackoffMS: defaultPackagingBackoffMS,
		},
		Ordering: Ordering{
			ConflictThreshold: defaultOrderConflictFraction,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
	}
}
