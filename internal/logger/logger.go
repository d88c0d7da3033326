// Package logger provides structured logging setup for LoopForge.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/LoopForge/internal/config"
)

// asyncBuffer is the record queue size in async mode.
const asyncBuffer = 1024

// New creates a *slog.Logger writing to stdout, plus a Closer that flushes
// buffered records on shutdown. The Closer is a no-op in synchronous mode.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter creates a *slog.Logger writing to w with a "service"
// attribute on every record. The stdio transport passes os.Stderr here so
// stdout stays reserved for JSON-RPC frames.
func NewWithWriter(w io.Writer, cfg config.Logging) (*slog.Logger, Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncBuffer)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
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
