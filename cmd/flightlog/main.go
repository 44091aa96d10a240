package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/nats"
	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/storage"
	"github.com/saviobatista/groundstation/internal/types"
)

// Subscriber interface for testability
type Subscriber interface {
	SubscribeTelemetry(handler func(sessionID string, rec types.Record)) error
	SubscribeCommandResults(handler func(types.CommandResult)) error
}

// EntryWriter interface for testability
type EntryWriter interface {
	WriteEntry(e storage.Entry) error
}

// Recorder writes every relayed record and command outcome to the flight log
type Recorder struct {
	out     EntryWriter
	logger  *slog.Logger
	now     func() time.Time
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder creates a recorder writing to out
func NewRecorder(out EntryWriter, logger *slog.Logger) *Recorder {
	return &Recorder{
		out:    out,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe attaches the recorder to the relay
func (r *Recorder) Subscribe(sub Subscriber) error {
	if err := sub.SubscribeTelemetry(r.RecordTelemetry); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry: %w", err)
	}
	if err := sub.SubscribeCommandResults(r.RecordCommand); err != nil {
		return fmt.Errorf("failed to subscribe to command results: %w", err)
	}
	return nil
}

// RecordTelemetry writes one relayed record
func (r *Recorder) RecordTelemetry(sessionID string, rec types.Record) {
	data, err := parser.EncodePayload(rec)
	if err != nil {
		r.logger.Warn("failed to encode record", slog.Any("error", err))
		r.failed.Add(1)
		return
	}
	r.write(storage.Entry{
		Time:      r.now(),
		SessionID: sessionID,
		Event:     string(rec.Event()),
		Data:      data,
	})
}

// RecordCommand writes one command outcome
func (r *Recorder) RecordCommand(res types.CommandResult) {
	r.write(storage.Entry{
		Time:      res.Finished,
		SessionID: res.Request.SessionID,
		Event:     "command",
		Data:      res,
	})
}

func (r *Recorder) write(e storage.Entry) {
	if err := r.out.WriteEntry(e); err != nil {
		r.logger.Warn("failed to write flight log entry", slog.String("event", e.Event), slog.Any("error", err))
		r.failed.Add(1)
		return
	}
	r.written.Add(1)
}

// Counts returns the number of entries written and failed
func (r *Recorder) Counts() (written, failed uint64) {
	return r.written.Load(), r.failed.Load()
}

// parseEnvironment extracts environment variables with defaults
func parseEnvironment() (outputDir, natsURL, logLevel, logDir string) {
	_ = godotenv.Load()

	outputDir = os.Getenv("OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "./flightlogs"
	}

	natsURL = os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	logLevel = os.Getenv("LOG_LEVEL")
	logDir = os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "./logs"
	}
	return outputDir, natsURL, logLevel, logDir
}

func main() {
	outputDir, natsURL, logLevel, logDir := parseEnvironment()
	logger := logging.New("flightlog", logLevel, logDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, outputDir, natsURL, logger.Logger)
	stop()

	if err != nil {
		log.Printf("Flight log failed: %v", err)
		logger.Error("flight log failed", slog.Any("error", err))
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

func run(ctx context.Context, outputDir, natsURL string, logger *slog.Logger) error {
	store := storage.New(outputDir, logger)
	if err := store.Start(); err != nil {
		return err
	}
	defer func() {
		if err := store.Stop(); err != nil {
			logger.Warn("failed to close flight log", slog.Any("error", err))
		}
	}()

	client, err := nats.New(natsURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	// Drained before the store closes so in-flight handlers can still write.
	defer client.Close()

	rec := NewRecorder(store, logger)
	if err := rec.Subscribe(client); err != nil {
		return err
	}

	logger.Info("recording flight log", slog.String("dir", outputDir))
	<-ctx.Done()

	written, failed := rec.Counts()
	logger.Info("shutting down", slog.Uint64("written", written), slog.Uint64("failed", failed))
	return nil
}
