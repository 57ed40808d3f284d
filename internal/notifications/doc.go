// Package notifications sends push notifications via ntfy. When no topic is
// configured every call is a noop.
package notifications
