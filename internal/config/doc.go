// Package config loads and validates rebind's TOML configuration. Values are
// resolved from an explicit --config path, ~/.config/rebind/config.toml, or a
// rebind.toml in the working directory, in that order, with defaults applied
// for anything unset.
package config
