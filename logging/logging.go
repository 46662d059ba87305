// Package logging builds the go-ethereum loggers used across tfagg.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Supported log formats
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

// ParseLevel converts a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit", "critical":
		return log.LevelCrit, nil
	}
	return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New creates a logger writing to w. The terminal format colors its output
// when color is set; the json format ignores it.
func New(w io.Writer, level slog.Level, format string, color bool) (log.Logger, error) {
	switch format {
	case "", FormatTerminal:
		return log.NewLogger(log.NewTerminalHandlerWithLevel(w, level, color)), nil
	case FormatJSON:
		return log.NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Discard returns a logger that drops everything.
func Discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}
