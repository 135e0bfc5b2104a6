// Package logging builds the structured loggers injected into the ifucube
// packages.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text logger writing to w at Info level, or Debug when verbose.
// A nil writer means stderr.
func New(verbose bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OrDiscard returns l, or a logger that drops every record when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
