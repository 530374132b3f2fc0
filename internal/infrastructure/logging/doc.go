// Package logging provides structured logging for synthd.
//
// It wraps log/slog. JSON output suits production; text output is easier to
// read at a terminal. Every entry carries service and version fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/synthd.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	sup := logger.Component("supervisor")
//	sup.Info("engine running", "pid", pid)
//
// Never log the engine password or broker credentials.
package logging
