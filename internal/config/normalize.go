package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEnhancement()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempRoot) == "" {
		c.Paths.TempRoot = defaultTempRoot
	}
	if c.Paths.TempRoot, err = expandPath(c.Paths.TempRoot); err != nil {
		return fmt.Errorf("paths.temp_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProfileDir) != "" {
		if c.Paths.ProfileDir, err = expandPath(c.Paths.ProfileDir); err != nil {
			return fmt.Errorf("paths.profile_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEnhancement() {
	c.Enhancement.Binary = strings.TrimSpace(c.Enhancement.Binary)
	if dir := strings.TrimSpace(c.Enhancement.BundledToolDir); dir != "" {
		if expanded, err := expandPath(dir); err == nil {
			c.Enhancement.BundledToolDir = expanded
		}
	}
	if c.Enhancement.TimeoutSeconds <= 0 {
		c.Enhancement.TimeoutSeconds = defaultEnhancementTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
