package slate

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// DefaultLogger builds the logger this library recommends for embedding
// hosts: human-readable text when w is an interactive terminal, JSON
// otherwise (log shippers want one object per line). Install it with
// WithLogger or slog.SetDefault.
func DefaultLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}
