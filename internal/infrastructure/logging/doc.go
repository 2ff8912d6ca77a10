// Package logging provides structured logging for the Teslemetry bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	siteLog := logger.Component("energy-site")
//	siteLog.Info("subscribed", "site_id", id)
//
// Never log the Teslemetry access token or MQTT credentials.
package logging
