package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// snapshotEvent is replayed to clients when they register
const snapshotEvent = "snapshot"

// Client represents a single SSE client connection
type Client struct {
	ID   string
	Send chan []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Slow clients are dropped rather than allowed to stall the broadcast.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger

	mu   sync.Mutex
	last []byte
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.mu.Lock()
			last := h.last
			h.mu.Unlock()
			if last != nil {
				select {
				case client.Send <- last:
				default:
				}
			}
			h.logger.Debug("stream client registered", slog.String("client", client.ID))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Debug("stream client unregistered", slog.String("client", client.ID))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.logger.Warn("stream client too slow, dropping", slog.String("client", client.ID))
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Register adds a client, which first receives the latest snapshot. The
// client's Send channel is closed when it is unregistered or the hub stops.
// It returns false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish broadcasts an event without blocking. The latest snapshot event
// is kept and sent to new clients on registration. If the hub is backed up
// the message is dropped; every snapshot carries the full state, so the
// next one supersedes it.
func (h *Hub) Publish(event string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal stream event", slog.String("event", event), slog.Any("error", err))
		return
	}
	msg := []byte("event: " + event + "\ndata: " + string(data) + "\n\n")

	if event == snapshotEvent {
		h.mu.Lock()
		h.last = msg
		h.mu.Unlock()
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("stream backlog full, dropping event", slog.String("event", event))
	}
}
