// Package logging builds the structured logger used by pdftools binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/config"
)

// New returns a logger writing to w, or stdout when w is nil, in the configured format and
// level. Unknown levels log at info; unknown formats use JSON.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: Level(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Level parses a level name.
func Level(name string) slog.Level {
	switch strings.ToLower(name) {
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
