// Package config loads, normalizes, and validates MetaMender configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// JELLYFIN_API_KEY and OPENAI_API_KEY. The Config type centralizes every knob
// the enrichment run needs, so the Jellyfin connection, catalog scope,
// provider selection, prompt templates, and pricing are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
