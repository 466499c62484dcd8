package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	TempRoot   string `toml:"temp_root"`
	ProfileDir string `toml:"profile_dir"`
}

// Enhancement contains configuration for the external image enhancement engine.
type Enhancement struct {
	Binary         string   `toml:"binary"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	BundledToolDir string   `toml:"bundled_tool_dir"`
	ExtraArgs      []string `toml:"extra_args"`
}

// Packaging contains configuration for CBZ packaging and its retry policy.
type Packaging struct {
	RetryAttempts  int `toml:"retry_attempts"`
	RetryBackoffMS int `toml:"retry_backoff_ms"`
}

// Ordering contains configuration for page order resolution.
type Ordering struct {
	// ConflictThreshold is the fraction of manifest/filename disagreements
	// above which manifest order overrides filename order. Zero means any
	// single disagreement triggers the override.
	ConflictThreshold float64 `toml:"conflict_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for rebind.
//
// Configuration sections by subsystem:
//   - Paths: log, temp-root, and device-profile directories
//   - Enhancement: external engine binary, timeout, bundled tool dir
//   - Packaging: CBZ write retry policy
//   - Ordering: page order conflict threshold
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Enhancement   Enhancement   `toml:"enhancement"`
	Packaging     Packaging     `toml:"packaging"`
	Ordering      Ordering      `toml:"ordering"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rebind/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rebind.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories rebind needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.TempRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ProfileDir) != "" {
		// Best-effort so a missing profile dir does not block conversions
		// that use built-in profiles.
		_ = os.MkdirAll(c.Paths.ProfileDir, 0o755)
	}
	return nil
}

// EnhancementBinary returns the enhancement engine executable name.
func (c *Config) EnhancementBinary() string {
	binary := strings.TrimSpace(c.Enhancement.Binary)
	if binary == "" {
		return "inkpress"
	}
	return binary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
