package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validateOrdering(); err != nil {
		return err
	}
	if err := c.validateEnhancement(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePackaging() error {
	if c.Packaging.RetryAttempts < 1 {
		return errors.New("packaging.retry_attempts must be at least 1")
	}
	if c.Packaging.RetryBackoffMS < 0 {
		return errors.New("packaging.retry_backoff_ms must not be negative")
	}
	return nil
}

func (c *Config) validateOrdering() error {
	if c.Ordering.ConflictThreshold < 0 || c.Ordering.ConflictThreshold >= 1 {
		return errors.New("ordering.conflict_threshold must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateEnhancement() error {
	if c.Enhancement.TimeoutSeconds <= 0 {
		return errors.New("enhancement.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
