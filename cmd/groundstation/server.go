package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/saviobatista/groundstation/internal/command"
	"github.com/saviobatista/groundstation/internal/mission"
	"github.com/saviobatista/groundstation/internal/session"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/types"
)

// ErrCommandInFlight is returned by Open while the current session awaits a
// command reply
var ErrCommandInFlight = errors.New("a command is in flight")

// SessionFactory builds a fresh, unstarted session
type SessionFactory func() (*session.Session, error)

// ActiveSessionStore records which session is current (interface for testability)
type ActiveSessionStore interface {
	SetActiveSession(ctx context.Context, sessionID string, ttl time.Duration) error
}

// Server exposes the current session over HTTP. The session can be
// replaced by an operator reconnect; handlers always act on the current one.
type Server struct {
	newSession SessionFactory
	hub        *Hub
	stats      *stats.Stats
	logger     *slog.Logger
	active     ActiveSessionStore
	activeTTL  time.Duration
	router     *httprouter.Router

	mu      sync.RWMutex
	current *session.Session
}

// NewServer creates a server; Open must be called before serving
func NewServer(factory SessionFactory, hub *Hub, st *stats.Stats, logger *slog.Logger) *Server {
	s := &Server{
		newSession: factory,
		hub:        hub,
		stats:      st,
		logger:     logger,
	}

	r := httprouter.New()
	r.GET("/api/state", s.handleState)
	r.GET("/api/stats", s.handleStats)
	r.GET("/api/stream", s.handleStream)
	r.POST("/api/command/:kind", s.handleCommand)
	r.POST("/api/mission/:id/complete", s.handleComplete)
	r.POST("/api/session/reset", s.handleReset)
	r.POST("/api/session/reconnect", s.handleReconnect)
	s.router = r

	return s
}

// WithActiveStore makes the server record every new session id
func (s *Server) WithActiveStore(store ActiveSessionStore, ttl time.Duration) *Server {
	s.active = store
	s.activeTTL = ttl
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Session returns the current session
func (s *Server) Session() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Open replaces the current session with a new one and starts it. The old
// session is closed first. A failed connect is reported but the new session
// stays current so the operator sees the error link state. The session is
// not replaced while one of its commands is in flight.
func (s *Server) Open(ctx context.Context) error {
	sess, err := s.newSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	old := s.current
	if old != nil && old.CommandInFlight() {
		s.mu.Unlock()
		sess.Close()
		return ErrCommandInFlight
	}
	s.current = sess
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	if s.active != nil {
		if err := s.active.SetActiveSession(ctx, sess.ID(), s.activeTTL); err != nil {
			s.logger.Warn("failed to record active session", slog.Any("error", err))
		}
	}

	s.logger.Info("opening session", slog.String("session", sess.ID()))
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect telemetry: %w", err)
	}
	return nil
}

// Close closes the current session
func (s *Server) Close() {
	if sess := s.Session(); sess != nil {
		sess.Close()
	}
}

// SetVideoStatus forwards a video label to the current session
func (s *Server) SetVideoStatus(label string) {
	if sess := s.Session(); sess != nil {
		sess.SetVideoStatus(label)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Session().Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.stats.GetStats())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, ok := types.ParseCommandKind(ps.ByName("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown command")
		return
	}

	// A dispatched command runs to completion even if the caller goes away.
	res, err := s.Session().Dispatch(context.WithoutCancel(r.Context()), kind)
	switch {
	case errors.Is(err, command.ErrBusy):
		writeJSON(w, http.StatusConflict, res)
	case errors.Is(err, command.ErrNotPermitted):
		writeJSON(w, http.StatusForbidden, res)
	case err != nil:
		writeJSON(w, http.StatusBadGateway, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.Atoi(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid waypoint id")
		return
	}

	sess := s.Session()
	changed, err := sess.MarkCompleted(id)
	if errors.Is(err, mission.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changed": changed,
		"mission": sess.Snapshot().Mission,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := s.Session()
	sess.Reset()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	err := s.Open(r.Context())
	if errors.Is(err, ErrCommandInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("reconnect failed", slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, s.Session().Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, s.Session().Snapshot())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &Client{
		ID:   r.RemoteAddr,
		Send: make(chan []byte, 256),
	}
	if !s.hub.Register(client) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	defer s.hub.Unregister(client)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case message, open := <-client.Send:
			if !open {
				return
			}
			if _, err := w.Write(message); err != nil {
				s.logger.Debug("stream write failed", slog.String("client", client.ID), slog.Any("error", err))
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
