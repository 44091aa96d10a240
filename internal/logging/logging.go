// Package logging builds the structured logger shared by the binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a slog.Logger backed by a rotating file
type Logger struct {
	*slog.Logger
	LogFile string
	Start   time.Time

	file *lumberjack.Logger
}

// ParseLevel maps a LOG_LEVEL value to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
}

// New creates a JSON logger writing to <dir>/<name>.slog and to stderr. An
// invalid level is reported on stderr and falls back to info.
func New(name, level, dir string) *Logger {
	return newLogger(name, level, dir, os.Stderr)
}

func newLogger(name, level, dir string, console io.Writer) *Logger {
	if dir == "" {
		dir = "."
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".slog"),
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	if level == "debug" {
		w.MaxSize = 256
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintf(console, "%v, using info\n", err)
	}

	var out io.Writer = w
	if console != nil {
		out = io.MultiWriter(w, console)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	l := &Logger{
		Logger:  slog.New(h).With(slog.String("component", name)),
		LogFile: w.Filename,
		Start:   time.Now(),
		file:    w,
	}

	l.Info("logging started",
		slog.String("file", w.Filename),
		slog.String("level", lvl.String()),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH))

	return l
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
