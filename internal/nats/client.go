package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/types"
)

const (
	StreamName           = "GROUNDSTATION"
	SubjectTelemetryBase = "telemetry"
	SubjectTelemetryAll  = "telemetry.>"
	SubjectCommandResult = "command.result"
)

// SubjectForEvent returns the subject a record of the given event is relayed on
func SubjectForEvent(event types.EventName) string {
	return SubjectTelemetryBase + "." + string(event)
}

// Envelope carries one relayed telemetry record. Data is the record in its
// push-channel wire form.
type Envelope struct {
	SessionID string          `json:"session_id"`
	Event     types.EventName `json:"event"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data"`
}

// Client represents a NATS client
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
	closed chan struct{}
}

// drainTimeout bounds how long Close waits for in-flight messages
const drainTimeout = 5 * time.Second

// New creates a new NATS client. The relay stream is kept in memory; it is a
// live feed, not a store.
func New(url string, logger *slog.Logger) (*Client, error) {
	logger = logging.OrDiscard(logger)

	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("groundstation"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(
		nats.PublishAsyncMaxPending(256),
		nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
			logger.Warn("relay publish failed", slog.String("subject", msg.Subject), slog.Any("error", err))
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectTelemetryAll, SubjectCommandResult},
		Storage:  nats.MemoryStorage,
		MaxAge:   time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   nc,
		js:     js,
		logger: logger,
		closed: closed,
	}, nil
}

// EncodeRecord wraps a record in an Envelope
func EncodeRecord(sessionID string, rec types.Record, at time.Time) ([]byte, error) {
	data, err := parser.EncodePayload(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Event(), err)
	}
	return json.Marshal(Envelope{
		SessionID: sessionID,
		Event:     rec.Event(),
		Time:      at,
		Data:      data,
	})
}

// DecodeRecord unwraps an Envelope into its session id and typed record
func DecodeRecord(raw []byte) (string, types.Record, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	rec, err := parser.ParsePayload(env.Event, env.Data)
	if err != nil {
		return env.SessionID, nil, err
	}
	return env.SessionID, rec, nil
}

// PublishRecord relays a telemetry record without waiting for the ack.
// Ack failures are logged by the client.
func (c *Client) PublishRecord(sessionID string, rec types.Record) error {
	data, err := EncodeRecord(sessionID, rec, time.Now().UTC())
	if err != nil {
		return err
	}

	if _, err := c.js.PublishAsync(SubjectForEvent(rec.Event()), data); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// PublishCommandResult relays a command outcome without waiting for the ack
func (c *Client) PublishCommandResult(res types.CommandResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal command result: %w", err)
	}

	if _, err := c.js.PublishAsync(SubjectCommandResult, data); err != nil {
		return fmt.Errorf("failed to publish command result: %w", err)
	}
	return nil
}

// Flush waits for outstanding publishes to be acknowledged
func (c *Client) Flush(timeout time.Duration) error {
	select {
	case <-c.js.PublishAsyncComplete():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for %d pending publishes", c.js.PublishAsyncPending())
	}
}

// SubscribeTelemetry subscribes to relayed records of every event
func (c *Client) SubscribeTelemetry(handler func(sessionID string, rec types.Record)) error {
	_, err := c.js.Subscribe(SubjectTelemetryAll, func(msg *nats.Msg) {
		sessionID, rec, err := DecodeRecord(msg.Data)
		if err != nil {
			c.logger.Warn("dropping relayed record", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		handler(sessionID, rec)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// SubscribeCommandResults subscribes to relayed command outcomes
func (c *Client) SubscribeCommandResults(handler func(types.CommandResult)) error {
	_, err := c.js.Subscribe(SubjectCommandResult, func(msg *nats.Msg) {
		var res types.CommandResult
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			c.logger.Warn("dropping relayed command result", slog.Any("error", err))
			return
		}
		handler(res)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// Close drains the NATS connection and returns once it is closed, so
// handlers for messages already delivered have finished.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	if c.closed == nil {
		return
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.logger.Warn("timed out waiting for NATS drain")
		c.conn.Close()
	}
}
