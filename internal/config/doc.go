// Package config loads, normalizes, and validates Pixguard configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SERPAPI_API_KEY and SMTP_PASSWORD. The Config type centralizes every knob
// the daemon and CLI need, from model paths and scoring thresholds to
// storage backends and delivery credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
