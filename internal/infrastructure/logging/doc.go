// Package logging provides structured logging for the IoT client.
//
// This package wraps Go's standard log/slog package. Loggers are built
// explicitly and handed to each client at construction; nothing here keeps
// process-wide state.
//
// # Features
//
//   - JSON or text output
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error, critical)
//   - Console output plus a size-bounded rotating file (lumberjack)
//   - Substitute handlers via NewWithHandler
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error, critical
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr, none
//	  file:
//	    path: "d_org1_sensor_s-01.log"
//	    max_size: 1      # megabytes
//	    max_backups: 1
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Platform.ClientID, "1.0.0")
//	defer logger.Close()
//	logger.Info("publishing", "topic", topic)
//	logger.Critical("connect failed", "error", err)
package logging
