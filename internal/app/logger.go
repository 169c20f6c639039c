package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds an isolated logger for one App. Unknown levels fall back to
// info; NewConfig has already rejected them for CLI callers.
func newLogger(level, format string, outW io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(outW, opts))
	default:
		return slog.New(slog.NewTextHandler(outW, opts))
	}
}
