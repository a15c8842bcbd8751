// Package notifications posts a short notice when a mirror or verify run
// finishes. The default implementation publishes to the ntfy topic URL from
// config.toml and is a no-op when no topic is configured.
package notifications
