// Package config loads runtime configuration for the securedrop CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file given with --config.
//  3. Command-line flags, applied by the cli package, which override
//     earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "https://drop.example.com",
//	  "request_timeout": "30s",
//	  "default_expires_in_hours": 24,
//	  "max_download_bytes": 5242880
//	}
package config
