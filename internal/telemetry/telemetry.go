// Package telemetry owns the push connection to the vehicle's telemetry
// source and demultiplexes inbound frames into typed records.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/types"
)

var (
	// ErrClosed is returned by Connect after Disconnect was called
	ErrClosed = errors.New("telemetry channel closed")
	// ErrConnected is returned by Connect while a connection is open
	ErrConnected = errors.New("telemetry channel already connected")
)

const maxFrameSize = 1 << 20

// Handler receives one decoded record
type Handler func(types.Record)

// Option configures a Channel
type Option func(*Channel)

// WithLogger sets the channel logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithHeader adds headers to the websocket handshake, e.g. Authorization
func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h.Clone() }
}

// WithDialer overrides the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// Channel is a single persistent push connection. Handlers run on the read
// goroutine one frame at a time, in arrival order, so a handler's mutation
// completes before the next frame is delivered. Reconnection is left to the
// caller; a lost connection simply stops delivering frames.
type Channel struct {
	endpoint string
	dialer   *websocket.Dialer
	header   http.Header
	logger   *slog.Logger

	mu           sync.Mutex
	handlers     map[types.EventName]Handler
	onConnect    func()
	onDisconnect func(error)
	onError      func(error)
	conn         *websocket.Conn
	closed       bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// New creates a channel for endpoint; nothing is dialed until Connect
func New(endpoint string, opts ...Option) *Channel {
	c := &Channel{
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger:   slog.New(slog.DiscardHandler),
		handlers: make(map[types.EventName]Handler),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers the handler for a named event, replacing any previous one
func (c *Channel) On(event types.EventName, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// OnConnect registers a callback run after the connection opens
func (c *Channel) OnConnect(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = f
}

// OnDisconnect registers a callback run when the connection ends. err is
// nil after Disconnect and the transport error otherwise.
func (c *Channel) OnDisconnect(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = f
}

// OnError registers a callback for frames that could not be decoded.
// Decoding errors are never fatal to the connection.
func (c *Channel) OnError(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = f
}

// Connected reports whether a connection is open
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the endpoint and starts delivering frames. At most one
// connection is open per channel.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrConnected
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (HTTP %d): %w", c.endpoint, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	conn.SetReadLimit(maxFrameSize)

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		if c.closed {
			return ErrClosed
		}
		return ErrConnected
	}
	c.conn = conn
	onConnect := c.onConnect
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("telemetry connected", slog.String("endpoint", c.endpoint))
	if onConnect != nil {
		onConnect()
	}

	go c.readLoop(conn)
	return nil
}

// Disconnect releases the connection. It is safe to call more than once and
// from any goroutine, including a handler.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stopChan)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("close handshake failed", slog.Any("error", err))
		}
		conn.Close()
	}
}

// Wait blocks until the read loop has exited. It must not be called from a
// handler.
func (c *Channel) Wait() {
	c.wg.Wait()
}

// Done is closed once Disconnect has been called
func (c *Channel) Done() <-chan struct{} {
	return c.stopChan
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	var cause error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopChan:
			default:
				cause = err
			}
			break
		}
		c.deliver(data)
	}

	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	if cause != nil {
		c.logger.Warn("telemetry connection lost", slog.String("endpoint", c.endpoint), slog.Any("error", cause))
	} else {
		c.logger.Info("telemetry disconnected", slog.String("endpoint", c.endpoint))
	}
	if onDisconnect != nil {
		onDisconnect(cause)
	}
}

func (c *Channel) deliver(data []byte) {
	rec, err := parser.ParseFrame(data)

	c.mu.Lock()
	onError := c.onError
	var h Handler
	if err == nil {
		h = c.handlers[rec.Event()]
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, parser.ErrUnknownEvent) {
			c.logger.Debug("ignoring frame", slog.Any("error", err))
		} else {
			c.logger.Warn("dropping malformed frame", slog.Any("error", err))
		}
		if onError != nil {
			onError(err)
		}
		return
	}

	if h != nil {
		h(rec)
	}
}
