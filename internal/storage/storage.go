// Package storage writes relayed session events to daily JSON Lines files.
// The previous day's file is gzip-compressed when the day rolls over.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/saviobatista/groundstation/internal/logging"
)

const dateLayout = "2006-01-02"

// ErrStopped is returned by WriteEntry after Stop
var ErrStopped = errors.New("storage stopped")

// Entry is one line of the flight log
type Entry struct {
	Time      time.Time   `json:"time"`
	SessionID string      `json:"session_id"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
}

// Storage handles writing entries to the current day's file
type Storage struct {
	outputDir string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	file    *os.File
	date    string
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new Storage instance
func New(outputDir string, logger *slog.Logger) *Storage {
	logger = logging.OrDiscard(logger)
	return &Storage{
		outputDir: outputDir,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FileName returns the log file name for a day
func FileName(date string) string {
	return fmt.Sprintf("flight_%s.jsonl", date)
}

// Start creates the output directory and opens today's file
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	return s.openFile(s.now().Format(dateLayout))
}

// Stop closes the current file and waits for pending compression. Later
// writes fail with ErrStopped until Start is called again.
func (s *Storage) Stop() error {
	s.mu.Lock()
	s.stopped = true
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// WriteEntry appends one entry, rotating first if the day changed
func (s *Storage) WriteEntry(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	today := s.now().Format(dateLayout)
	if s.file == nil || today != s.date {
		if err := s.rotate(today); err != nil {
			return err
		}
	}

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// rotate closes the current file, compresses it in the background and
// opens the file for date. Caller holds s.mu.
func (s *Storage) rotate(date string) error {
	if s.file != nil {
		prev := s.file.Name()
		if err := s.file.Close(); err != nil {
			s.logger.Warn("failed to close flight log", slog.String("file", prev), slog.Any("error", err))
		}
		s.file = nil

		if s.date != date {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := compressFile(prev); err != nil {
					s.logger.Warn("failed to compress flight log", slog.String("file", prev), slog.Any("error", err))
				}
			}()
		}
	}
	return s.openFile(date)
}

func (s *Storage) openFile(date string) error {
	path := filepath.Join(s.outputDir, FileName(date))
	//nolint:gosec // path is built from the output dir and a date
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open flight log: %w", err)
	}
	s.file = file
	s.date = date
	return nil
}

// compressFile replaces path with path.gz
func compressFile(path string) error {
	//nolint:gosec // path is one of our own log files
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gz := gzip.NewWriter(target)
	if _, err := io.Copy(gz, source); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
