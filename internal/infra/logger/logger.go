package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"repochat/internal/infra/config"
)

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(newHandler(writer, cfg)), closer, nil
}

// ForTerminalUI returns a logger that never writes to the terminal. Output
// set to stdout or stderr is redirected to repochat.log under dataDir so the
// full-screen UI is not overwritten.
func ForTerminalUI(cfg config.LoggerConfig, dataDir string) (*slog.Logger, func() error, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		cfg.Output = filepath.Join(dataDir, "repochat.log")
	}
	return New(cfg)
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	case "discard":
		return io.Discard, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
