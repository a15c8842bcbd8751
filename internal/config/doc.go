// Package config loads, normalizes, and validates assetmirror configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASSETMIRROR_ORIGINAL_ROOT and ASSETMIRROR_POLICY_ID. Backend roots, base
// URLs, fetch limits and the verification specification table all live on
// Config so engines receive them explicitly at construction time.
package config
