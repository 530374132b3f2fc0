package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
)

// Logger wraps slog.Logger with synthd's default fields.
//
// It satisfies the small Logger interfaces declared by the process,
// transport, supervisor and bridge packages, so one value can be handed to
// all of them.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// Output "file" appends to cfg.File.Path; if the file cannot be opened the
// logger falls back to stderr and says so in its first entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	output, openErr := openOutput(cfg)
	logger := NewWithWriter(cfg, version, output)
	if openErr != nil {
		logger.Warn("log file unavailable, using stderr", "path", cfg.File.Path, "error", openErr)
	}
	return logger
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "synthd"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

func openOutput(cfg config.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stderr, err
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	supLogger := logger.With("component", "supervisor")
//	supLogger.Info("engine running") // Includes component=supervisor
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a default logger for use before configuration is loaded.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
