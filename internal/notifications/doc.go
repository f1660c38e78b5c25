// Package notifications delivers export events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Each
// event can be toggled in the [notifications] section so a busy server only
// reports failures.
package notifications
