package logging

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Action-log sizing: roll at 10 MB and keep a single previous
// generation next to the collection file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 1
)

// NewFileLogger returns a debug-level logger writing to path with
// size-based rotation. The returned closer releases the underlying
// file; close it after the collection is closed.
func NewFileLogger(path string) (*SlogLogger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
	}
	h := slog.NewTextHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), lj
}

// Discard returns a logger that drops everything. Used when no log
// destination is configured.
func Discard() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
