package logger

import (
	"io"
	"log/slog"
	"os"
)

func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewTokenMasker(h))
}
