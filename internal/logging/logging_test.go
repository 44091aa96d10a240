package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_WritesJSONToFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l := newLogger("groundstation", "warn", dir, &console)
	l.Info("hidden")
	l.Warn("battery low", slog.Float64("level", 15))
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if l.LogFile != filepath.Join(dir, "groundstation.slog") {
		t.Errorf("unexpected log file %s", l.LogFile)
	}
	data, err := os.ReadFile(l.LogFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !bytes.Equal(data, console.Bytes()) {
		t.Error("file and console output differ")
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected only the warning at warn level, got %d lines:\n%s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "battery low" || entry["component"] != "groundstation" || entry["level"] != "WARN" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	var console bytes.Buffer
	l := newLogger("sim", "loud", t.TempDir(), &console)
	defer l.Close()

	if !l.Enabled(context.Background(), slog.LevelInfo) || l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected info level after invalid level")
	}
	if !strings.Contains(console.String(), `invalid log level "loud"`) {
		t.Errorf("Expected warning on console, got %q", console.String())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := slog.Default()
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return a non-nil logger unchanged")
	}
}
