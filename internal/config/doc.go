// SPDX-License-Identifier: MPL-2.0

// Package config handles lifespand configuration using Viper with CUE as the
// file format.
//
// Configuration is loaded from ~/.config/lifespan/config.cue (or the XDG
// equivalent on Linux, ~/Library/Application Support/lifespan/config.cue on
// macOS, %APPDATA%\lifespan\config.cue on Windows), falling back to
// ./config.cue and then to built-in defaults. Every key can be overridden
// from the environment with the LIFESPAN_ prefix, dots replaced by
// underscores (LIFESPAN_SERVER_PORT=9090).
//
// Files are validated against an embedded CUE schema (config_schema.cue)
// before being merged into Viper, and the decoded Config is validated again
// for constraints CUE does not express.
package config
