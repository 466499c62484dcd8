// Package logging configures structured logging for rebind on top of
// log/slog. It provides a human-oriented console handler, a JSON handler for
// machine consumption, typed attribute helpers, and context helpers that
// stamp job and stage identifiers onto every record emitted during a
// conversion.
package logging
