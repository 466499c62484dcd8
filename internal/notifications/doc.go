// Package notifications pushes conversion lifecycle events to an ntfy topic
// when one is configured. Without a topic the service degrades to a noop so
// callers never branch on configuration.
package notifications
