package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skekre98/modrig/config"
)

// New builds the process logger from the logging config. Output defaults to
// stdout when w is nil.
func New(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog level, falling back to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ForModule returns a logger tagged with a module's identity.
func ForModule(l *slog.Logger, name, base string) *slog.Logger {
	return l.With(slog.String("module", name), slog.String("base", base))
}
