// Package logging builds the structured slog logger the whole service
// shares. Every record carries service and version attributes so mixed
// log streams stay attributable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/graymere/hublink/internal/infrastructure/config"
)

// Logger embeds *slog.Logger; callers use the slog methods directly.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml: JSON or
// text format, stdout or stderr, level-filtered.
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(newHandler(cfg, version, pickOutput(cfg.Output)))}
}

// NewWithWriter is New with an explicit destination, for tests that
// assert on emitted records.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	return &Logger{Logger: slog.New(newHandler(cfg, version, w))}
}

func pickOutput(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func newHandler(cfg config.LoggingConfig, version string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return h.WithAttrs([]slog.Attr{
		slog.String("service", "hublink"),
		slog.String("version", version),
	})
}

// parseLevel maps a config string onto a slog level, defaulting to
// info for anything unrecognised.
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

// With returns a child logger carrying extra default attributes, the
// usual way components tag their records:
//
//	mirrorLog := log.With("component", "mirror")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration loads:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
