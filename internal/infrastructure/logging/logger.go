package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
)

// LevelCritical sits above slog.LevelError. Connection and configuration
// failures are logged at this level before being returned.
const LevelCritical = slog.Level(12)

// Logger wraps slog.Logger with IoT client specific functionality.
//
// It provides structured logging with default fields, a critical level and
// an optional size-bounded rotating file next to the console stream.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	// file is the rotating file sink, nil when file logging is off.
	file io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON or text)
//   - Log level filtering, including "critical"
//   - Default fields (service name, version)
//   - Console output plus an optional rotating file (see FilePath)
//
// Parameters:
//   - cfg: Logging configuration
//   - clientID: Names the log file when file logging has no explicit path
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, clientID, version string) *Logger {
	var writers []io.Writer
	switch strings.ToLower(cfg.Output) {
	case "none":
	case "stderr":
		writers = append(writers, os.Stderr)
	default:
		writers = append(writers, os.Stdout)
	}

	var file *lumberjack.Logger
	if path := FilePath(cfg.File, clientID); path != "" {
		file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, file)
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = io.Discard
	case 1:
		output = writers[0]
	default:
		output = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: replaceLevelName,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "iotf"),
		slog.String("version", version),
	})

	l := &Logger{Logger: slog.New(handler)}
	if file != nil {
		l.file = file
	}
	return l
}

// NewWithHandler wraps a caller-supplied handler.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithHandler(slog.DiscardHandler)
}

// FilePath returns the rotating log file for cfg, or "" when file logging
// is off. An explicit path always enables it; otherwise Enabled selects
// DefaultFilePath(clientID).
func FilePath(cfg config.FileLoggingConfig, clientID string) string {
	switch {
	case cfg.Path != "":
		return cfg.Path
	case cfg.Enabled:
		return DefaultFilePath(clientID)
	default:
		return ""
	}
}

// DefaultFilePath returns the log file name used for a client: the client
// ID with ':' replaced by '_', plus ".log".
func DefaultFilePath(clientID string) string {
	return strings.ReplaceAll(clientID, ":", "_") + ".log"
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error, critical
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical", "fatal":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// replaceLevelName prints LevelCritical as "CRITICAL" instead of "ERROR+4".
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

// Critical logs at LevelCritical.
func (l *Logger) Critical(msg string, args ...any) {
	l.Log(context.Background(), LevelCritical, msg, args...)
}

// With returns a new Logger with additional default attributes.
//
// Parameters:
//   - args: Key-value pairs to add as default attributes
//
// Returns:
//   - *Logger: New logger with added attributes
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		file:   l.file,
	}
}

// Close releases the rotating file, if any. Loggers derived with With
// share the file, so close only the root logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
