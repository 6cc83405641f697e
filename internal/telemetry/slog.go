package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel is the level gate shared by every handler SetupLogger installs.
// Holding it in a LevelVar lets SetLevel adjust verbosity at runtime without
// rebuilding the handler, which is how config hot reload changes the level.
var logLevel = new(slog.LevelVar)

// SetupLogger configures the global slog default logger based on the supplied
// format, level, and output strings read from application configuration.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// output: "stderr" → os.Stderr; anything else → os.Stdout.
//
// The configured logger is installed as the default so all slog.Info/Warn/Error
// calls elsewhere in the application automatically use it without needing to
// carry a *slog.Logger in context.
func SetupLogger(format, level, output string) {
	logLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel.Level() == slog.LevelDebug, // include file:line only when debugging
	}

	var w io.Writer = os.Stdout
	if strings.ToLower(output) == "stderr" {
		w = os.Stderr
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", logLevel.Level().String())
}

// SetLevel changes the level of the already-installed logger. Used by the
// config file watcher; format and output changes still require a restart.
func SetLevel(level string) {
	lvl := parseLevel(level)
	if lvl == logLevel.Level() {
		return
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

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
