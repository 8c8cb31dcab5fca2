// Package config handles configuration loading for the hearth server.
//
// # Overview
//
// Configuration is loaded from a YAML file (or a TOML file when the path ends
// in .toml) with environment variable expansion, defaults for every optional
// field, and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HEARTH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/hearth/hearth.yaml
//  3. ~/.config/hearth/hearth.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${HEARTH_DATA}/hearth.db"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	queue:
//	  cleanup_interval: "1m"
//	  max_age: "1h"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"   # sync websocket, API, wiki, metrics
//
//	database:
//	  path: "/var/lib/hearth/hearth.db"
//	  compact_on_start: true
//
//	document:
//	  name: "general"
//
//	bots:
//	  - name: "ai"                  # mentioned as @ai
//	    display_name: "AI"
//	  - name: "scribe"
//	    remote: true                # answered by an external process
//
//	workers:
//	  concurrency: 4
//	  rate_per_second: 2
//	  burst: 4
//	  context_messages: 20
//	  reply_timeout: "2m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	mcp:
//	  enabled: true
//	  tokens:                       # omit for anonymous sessions
//	    - token: "${HEARTH_MCP_TOKEN}"
//	      username: "claude"
//
// Omitting the bots section declares the single bot "ai". An explicit empty
// list disables mentions.
package config
