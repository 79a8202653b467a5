// Package logging provides structured logging for the Bluetooth skill and
// satellite binaries.
//
// This package wraps Go's standard log/slog package so every component logs
// the same way.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Rotating file output via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/snips-bluetooth/skill.log"
//	    max_size: 10
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "bluetooth-skill", version)
//	defer logger.Close()
//	logger.Info("scan requested", "site_id", siteID)
//
// Never log broker passwords or InfluxDB tokens.
package logging
